package source

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Pool keeps loaded handles around between requests, keyed by the canonical
// form of their descriptor. Closing a pooled handle evicts it, so the next
// Load for the same descriptor reloads the source from scratch.
type Pool struct {
	loader  Loader
	handles *lru.Cache[string, *pooledHandle]
	group   singleflight.Group
}

func NewPool(loader Loader, size int) (*Pool, error) {
	handles, err := lru.NewWithEvict[string, *pooledHandle](size, func(_ string, ph *pooledHandle) {
		ph.closeUnderlying()
	})
	if err != nil {
		return nil, err
	}
	return &Pool{loader: loader, handles: handles}, nil
}

func (p *Pool) Load(ctx context.Context, d Descriptor) (Handle, error) {
	key := d.String()
	if ph, ok := p.handles.Get(key); ok {
		return ph, nil
	}

	v, err, _ := p.group.Do(key, func() (interface{}, error) {
		if ph, ok := p.handles.Get(key); ok {
			return ph, nil
		}
		h, err := p.loader.Load(ctx, d)
		if err != nil {
			return nil, err
		}
		ph := &pooledHandle{Handle: h, key: key, pool: p}
		p.handles.Add(key, ph)
		return ph, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pooledHandle), nil
}

// Len is the number of handles currently pooled.
func (p *Pool) Len() int {
	return p.handles.Len()
}

// Close evicts and closes every pooled handle.
func (p *Pool) Close() {
	p.handles.Purge()
}

type pooledHandle struct {
	Handle
	key  string
	pool *Pool

	once     sync.Once
	closeErr error
}

func (ph *pooledHandle) Close() error {
	if cur, ok := ph.pool.handles.Peek(ph.key); ok && cur == ph {
		// the evict callback closes the underlying handle
		ph.pool.handles.Remove(ph.key)
	}
	return ph.closeUnderlying()
}

func (ph *pooledHandle) closeUnderlying() error {
	ph.once.Do(func() {
		ph.closeErr = ph.Handle.Close()
	})
	return ph.closeErr
}
