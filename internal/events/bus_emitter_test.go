package events

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"p2pswap/internal/logging"
	"p2pswap/internal/messaging"
)

func TestBusEmitterPublishesEnvelope(t *testing.T) {
	bus := messaging.NewMemoryBus()
	var got []byte
	_, err := bus.Subscribe("swap.IntentCancelled", func(b []byte) { got = b })
	require.NoError(t, err)

	em := NewBusEmitter(bus, "swap", logging.NewNopLogger())
	em.Emit(IntentCancelled{
		IntentID: common.HexToHash("0x01"),
		Owner:    common.HexToAddress("0xa1"),
		Refunded: uint256.NewInt(42),
	})
	require.NotNil(t, got)

	var env Envelope
	require.NoError(t, json.Unmarshal(got, &env))
	assert.Equal(t, TypeIntentCancelled, env.Type)

	var ev IntentCancelled
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, uint64(42), ev.Refunded.Uint64())
	assert.Equal(t, common.HexToAddress("0xa1"), ev.Owner)
}

func TestMultiAndRecorder(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, NoopEmitter{}, &b}
	m.Emit(RelayerAuthorized{Relayer: common.HexToAddress("0xbb"), Authorized: true})
	m.Emit(ConfigurationUpdated{RewardBps: 5, FeeBps: 7})

	want := []string{TypeRelayerAuthorized, TypeConfigurationUpdated}
	assert.Equal(t, want, a.Types())
	assert.Equal(t, want, b.Types())

	a.Reset()
	assert.Empty(t, a.Events())
	assert.Len(t, b.Events(), 2)
}
