package messaging

import (
	"io"
)

// Bus is a pluggable messaging interface for broadcast and subscription.
// Audit events leave the engine through it; NATS in production, memory in tests.
type Bus interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func([]byte)) (io.Closer, error)
}

type closerFunc func() error

func (c closerFunc) Close() error { return c() }
