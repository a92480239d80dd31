package ledger

import (
	"context"
	"time"

	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/store"
)

// Options tune a subscriber. Zero values pick defaults.
type Options struct {
	Interval time.Duration   // polling period, default 30s
	Backoff  []time.Duration // retry ladder after failed reads
	Query    store.Query     // optional lower bound and limit
	Logger   *log.Logger
	Now      func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	if len(o.Backoff) == 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Logger == nil {
		o.Logger = log.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PollingSubscriber re-reads the ledger on a fixed interval and on Refresh.
type PollingSubscriber struct {
	store store.ExpenseStore
	opts  Options
}

func NewPollingSubscriber(s store.ExpenseStore, opts Options) *PollingSubscriber {
	return &PollingSubscriber{store: s, opts: opts.withDefaults()}
}

// Subscribe starts polling for uid. The first snapshot is read immediately.
func (p *PollingSubscriber) Subscribe(ctx context.Context, uid string) (Stream, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s := newStream(uid, cancel)
	go p.run(runCtx, s)
	return s, nil
}

func (p *PollingSubscriber) run(ctx context.Context, s *stream) {
	defer s.finish()

	logger := p.opts.Logger.WithComponent(log.ComponentLedger).WithUser(s.uid)
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()
	r := newRetry(p.opts.Backoff)
	defer r.stop()

	attempt := func() {
		if err := fetch(ctx, p.store, p.opts, s); err != nil {
			if ctx.Err() != nil {
				return
			}
			d := r.schedule()
			logger.WarnContext(ctx, "Ledger read failed", log.FieldError, err, log.FieldRetryIn, d)
			return
		}
		r.reset()
	}

	attempt()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.manual:
			r.stop()
			attempt()
		case <-ticker.C:
			if r.pending() {
				continue
			}
			attempt()
		case <-r.C:
			r.C = nil
			attempt()
		}
	}
}

// PushSubscriber re-reads the ledger whenever the change feed signals a write
// for the user.
type PushSubscriber struct {
	store store.ExpenseStore
	feed  store.ChangeFeed
	opts  Options
}

func NewPushSubscriber(s store.ExpenseStore, feed store.ChangeFeed, opts Options) *PushSubscriber {
	return &PushSubscriber{store: s, feed: feed, opts: opts.withDefaults()}
}

// Subscribe registers with the feed before the first read so no write can
// slip between the two.
func (p *PushSubscriber) Subscribe(ctx context.Context, uid string) (Stream, error) {
	runCtx, cancel := context.WithCancel(ctx)
	changes, err := p.feed.Watch(runCtx, uid)
	if err != nil {
		cancel()
		return nil, core.Persistence("watch ledger", err)
	}
	s := newStream(uid, cancel)
	go p.run(runCtx, s, changes)
	return s, nil
}

func (p *PushSubscriber) run(ctx context.Context, s *stream, changes <-chan struct{}) {
	defer s.finish()

	logger := p.opts.Logger.WithComponent(log.ComponentLedger).WithUser(s.uid)
	r := newRetry(p.opts.Backoff)
	defer r.stop()

	attempt := func() {
		if err := fetch(ctx, p.store, p.opts, s); err != nil {
			if ctx.Err() != nil {
				return
			}
			d := r.schedule()
			logger.WarnContext(ctx, "Ledger read failed", log.FieldError, err, log.FieldRetryIn, d)
			return
		}
		r.reset()
	}

	attempt()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			r.stop()
			attempt()
		case <-s.manual:
			r.stop()
			attempt()
		case <-r.C:
			r.C = nil
			attempt()
		}
	}
}

func fetch(ctx context.Context, es store.ExpenseStore, opts Options, s *stream) error {
	expenses, err := es.QueryExpenses(ctx, s.uid, opts.Query)
	if err != nil {
		return core.Persistence("query ledger", err)
	}
	if s.offer(ctx, expenses, opts.Now()) {
		opts.Logger.DebugContext(ctx, "Ledger snapshot delivered",
			log.FieldUserID, s.uid, log.FieldSnapshotSize, len(expenses))
	}
	return nil
}
