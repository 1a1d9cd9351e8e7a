package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDelivery(t *testing.T) {
	bus := NewMemoryBus()
	var exact, wildcard, tail []string

	c1, err := bus.Subscribe("swap.IntentSubmitted", func(b []byte) { exact = append(exact, string(b)) })
	require.NoError(t, err)
	_, err = bus.Subscribe("swap.*", func(b []byte) { wildcard = append(wildcard, string(b)) })
	require.NoError(t, err)
	_, err = bus.Subscribe("swap.>", func(b []byte) { tail = append(tail, string(b)) })
	require.NoError(t, err)

	require.NoError(t, bus.Publish("swap.IntentSubmitted", []byte("a")))
	require.NoError(t, bus.Publish("swap.IntentsMatched", []byte("b")))
	require.NoError(t, bus.Publish("swap.admin.RelayerAuthorized", []byte("c")))
	require.NoError(t, bus.Publish("other", []byte("d")))

	assert.Equal(t, []string{"a"}, exact)
	assert.Equal(t, []string{"a", "b"}, wildcard)
	assert.Equal(t, []string{"a", "b", "c"}, tail)

	require.NoError(t, c1.Close())
	require.NoError(t, c1.Close())
	require.NoError(t, bus.Publish("swap.IntentSubmitted", []byte("e")))
	assert.Equal(t, []string{"a"}, exact)
}

func TestSubjectMatches(t *testing.T) {
	cases := []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b", "a.b", true},
		{"a.b", "a.b.c", false},
		{"a.*", "a.b", true},
		{"a.*", "a", false},
		{"a.>", "a", false},
		{"a.>", "a.b.c", true},
		{"*.b", "x.b", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, subjectMatches(tc.pattern, tc.subject), "%s vs %s", tc.pattern, tc.subject)
	}
}
