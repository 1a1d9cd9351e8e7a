package messaging

import (
	"fmt"
	"io"
	"time"

	"github.com/nats-io/nats.go"

	"p2pswap/internal/logging"
)

type NATSBus struct {
	nc     *nats.Conn
	logger logging.Logger
}

// NewNATSBus connects to url. Reconnects are unlimited so a restarting broker
// does not take the engine down with it.
func NewNATSBus(url string, logger logging.Logger, opts ...nats.Option) (*NATSBus, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	base := []nats.Option{
		nats.Name("p2pswap"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSBus{nc: nc, logger: logger}, nil
}

func (b *NATSBus) Publish(subject string, data []byte) error { return b.nc.Publish(subject, data) }

func (b *NATSBus) Subscribe(subject string, handler func([]byte)) (io.Closer, error) {
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) { handler(m.Data) })
	if err != nil {
		return nil, err
	}
	return closerFunc(func() error { return sub.Unsubscribe() }), nil
}

// Close flushes pending publishes and drains the connection.
func (b *NATSBus) Close() error {
	if b.nc == nil {
		return nil
	}
	if err := b.nc.FlushTimeout(2 * time.Second); err != nil {
		b.logger.Warnf("NATS flush before close: %v", err)
	}
	return b.nc.Drain()
}
