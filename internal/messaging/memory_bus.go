package messaging

import (
	"io"
	"strings"
	"sync"
)

// MemoryBus delivers messages synchronously to in-process subscribers. It
// understands the NATS wildcards "*" (one token) and ">" (trailing tokens).
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]memorySub
}

type memorySub struct {
	pattern string
	handler func([]byte)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]memorySub)}
}

func (b *MemoryBus) Publish(subject string, data []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		s, ok := b.subs[id]
		if ok && subjectMatches(s.pattern, subject) {
			handlers = append(handlers, s.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		msg := make([]byte, len(data))
		copy(msg, data)
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler func([]byte)) (io.Closer, error) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = memorySub{pattern: subject, handler: handler}
	b.mu.Unlock()

	var once sync.Once
	return closerFunc(func() error {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
		return nil
	}), nil
}

func subjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
