// ABOUTME: Bounded TTL guard that rejects reuse of signed access proofs.
// ABOUTME: Keys are (wallet, nonce) pairs; a key can be claimed once per window.

package replay

import (
	"container/list"
	"sync"
	"time"
)

type claim struct {
	at   time.Time
	elem *list.Element
}

// Guard remembers claimed keys for a fixed window. When full, the oldest claim
// is evicted first, so the window is only guaranteed up to maxSize keys.
type Guard struct {
	mu      sync.Mutex
	claims  map[string]*claim
	order   *list.List // oldest claim at front
	window  time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a guard that remembers up to maxSize keys for window.
// A background goroutine sweeps expired claims once a minute until Close.
func New(window time.Duration, maxSize int) *Guard {
	if maxSize <= 0 {
		maxSize = 1
	}
	g := &Guard{
		claims:  make(map[string]*claim),
		order:   list.New(),
		window:  window,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go g.sweepLoop()
	return g
}

// Claim marks key as used. It returns false if key was already claimed within
// the window, in which case nothing changes.
func (g *Guard) Claim(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if c, ok := g.claims[key]; ok {
		if now.Sub(c.at) < g.window {
			return false
		}
		c.at = now
		g.order.MoveToBack(c.elem)
		return true
	}

	if len(g.claims) >= g.maxSize {
		g.evictOldestLocked()
	}
	g.claims[key] = &claim{at: now, elem: g.order.PushBack(key)}
	return true
}

// Len returns the number of remembered claims.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.claims)
}

func (g *Guard) evictOldestLocked() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.claims, key)
}

func (g *Guard) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.done:
			return
		}
	}
}

// sweep drops expired claims. The order list is oldest-first, so it stops at
// the first live claim.
func (g *Guard) sweep() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for e := g.order.Front(); e != nil; {
		key, _ := e.Value.(string)
		c := g.claims[key]
		if c != nil && now.Sub(c.at) < g.window {
			return
		}
		next := e.Next()
		g.order.Remove(e)
		delete(g.claims, key)
		e = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
