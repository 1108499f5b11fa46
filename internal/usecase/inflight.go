package usecase

import "sync"

// KeyedGuard allows at most one holder per key. A second caller for a held
// key is rejected rather than queued.
type KeyedGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func NewKeyedGuard() *KeyedGuard {
	return &KeyedGuard{running: make(map[string]struct{})}
}

// TryAcquire returns a release func and true if key was free.
func (g *KeyedGuard) TryAcquire(key string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.running[key]; busy {
		return nil, false
	}
	g.running[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, key)
			g.mu.Unlock()
		})
	}, true
}

func (g *KeyedGuard) Running(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.running[key]
	return busy
}
