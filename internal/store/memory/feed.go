package memory

import (
	"context"
	"sync"

	"gastos/internal/store"
)

// Feed is an in-process change feed. Each watcher holds at most one pending
// signal, so a slow watcher sees one notification for any burst of publishes.
type Feed struct {
	mu       sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

var _ store.ChangeFeed = (*Feed)(nil)

func NewFeed() *Feed {
	return &Feed{watchers: map[string]map[chan struct{}]struct{}{}}
}

func (f *Feed) Publish(_ context.Context, uid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.watchers[uid] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

func (f *Feed) Watch(ctx context.Context, uid string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	f.mu.Lock()
	if f.watchers[uid] == nil {
		f.watchers[uid] = map[chan struct{}]struct{}{}
	}
	f.watchers[uid][ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.watchers[uid], ch)
		if len(f.watchers[uid]) == 0 {
			delete(f.watchers, uid)
		}
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}
