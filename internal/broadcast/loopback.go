package broadcast

import (
	"path"
	"sync"
)

// Loopback is an in-process Publisher for single-node deployments and
// tests. Subjects match with the same single-token wildcard rules the
// wire transport uses.
type Loopback struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]loopbackSub
}

type loopbackSub struct {
	pattern string
	handler func(data []byte)
}

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{subs: make(map[int]loopbackSub)}
}

// Publish delivers data synchronously to every matching subscriber.
func (l *Loopback) Publish(subject string, data []byte) error {
	l.mu.RLock()
	handlers := make([]func([]byte), 0, len(l.subs))
	for _, sub := range l.subs {
		if subjectMatches(sub.pattern, subject) {
			handlers = append(handlers, sub.handler)
		}
	}
	l.mu.RUnlock()

	for _, h := range handlers {
		h(data)
	}
	return nil
}

// Subscribe registers a handler for all subjects matching pattern and
// returns its removal func.
func (l *Loopback) Subscribe(pattern string, handler func(data []byte)) (func(), error) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = loopbackSub{pattern: pattern, handler: handler}
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}, nil
}

// IsConnected always reports true: the loopback has no link to lose.
func (l *Loopback) IsConnected() bool { return true }

// subjectMatches applies dot-token matching where "*" matches exactly
// one token.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	// path.Match treats "*" as a single-segment wildcard once the dots
	// become slashes.
	ok, err := path.Match(dotsToSlashes(pattern), dotsToSlashes(subject))
	return err == nil && ok
}

func dotsToSlashes(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == '.' {
			out[i] = '/'
		}
	}
	return string(out)
}
