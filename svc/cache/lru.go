package cache

import (
	"context"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"linepaste/pkg/domain"
)

// LRU caches decrypted aggregates by UID. Entries must be invalidated
// whenever a comment is appended, since the aggregate on disk changed.
type LRU struct {
	c  *lru.Cache[string, *domain.Paste]
	mu sync.Mutex
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, *domain.Paste](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c}, nil
}

func (l *LRU) Get(ctx context.Context, uid string) *domain.Paste {
	select {
	case <-ctx.Done():
		return nil
	default:
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.c.Get(uid)
	if !ok {
		return nil
	}
	return p
}

func (l *LRU) Set(ctx context.Context, p *domain.Paste) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(p.UID, p)
}

func (l *LRU) Delete(uid string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(uid)
}
