package event

import "sync"

// Bus is a set of emitters keyed by name. It backs per-method subscriptions where
// the set of names is not known ahead of time.
type Bus[T any] struct {
	mu       sync.Mutex
	emitters map[string]*Emitter[T]
}

// On registers fn for values emitted under key.
func (b *Bus[T]) On(key string, fn func(T)) Disposer {
	b.mu.Lock()
	if b.emitters == nil {
		b.emitters = make(map[string]*Emitter[T])
	}
	em, ok := b.emitters[key]
	if !ok {
		em = &Emitter[T]{}
		b.emitters[key] = em
	}
	b.mu.Unlock()

	return em.AddListener(fn)
}

// Emit delivers v to the listeners of key. Keys nobody subscribed to are ignored.
func (b *Bus[T]) Emit(key string, v T) {
	b.mu.Lock()
	em := b.emitters[key]
	b.mu.Unlock()

	if em != nil {
		em.Emit(v)
	}
}

// Len returns the number of listeners registered under key.
func (b *Bus[T]) Len(key string) int {
	b.mu.Lock()
	em := b.emitters[key]
	b.mu.Unlock()

	if em == nil {
		return 0
	}
	return em.Len()
}
