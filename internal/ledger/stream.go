// Package ledger mirrors a user's expense ledger from the store and delivers
// it as a sequence of full snapshots.
//
// Two subscribers are interchangeable behind the Subscriber interface: one
// polls the store on an interval, the other re-reads it whenever the change
// feed signals a write. Consumers never see diffs.
package ledger

import (
	"context"
	"sync"
	"time"

	"gastos/internal/core"
)

// Snapshot is the complete ordered ledger of a user at one point in time.
type Snapshot struct {
	UserID   string
	Seq      uint64 // increases by one per delivered snapshot of a stream
	At       time.Time
	Expenses []core.Expense // date desc, ties by insertion order
}

// Stream delivers snapshots until closed. Delivery coalesces: a consumer that
// falls behind only ever receives the newest snapshot.
type Stream interface {
	Snapshots() <-chan Snapshot
	// Close stops delivery and waits for the producer to exit. The
	// Snapshots channel is closed afterwards. Close is idempotent.
	Close()
}

// Refresher is implemented by streams that can be asked to re-read now.
type Refresher interface {
	Refresh()
}

// Subscriber opens snapshot streams.
type Subscriber interface {
	Subscribe(ctx context.Context, uid string) (Stream, error)
}

// DefaultBackoff is the retry ladder used after a failed read.
var DefaultBackoff = []time.Duration{time.Second, 2 * time.Second, 5 * time.Second, 15 * time.Second, 60 * time.Second}

// stream is the producer side shared by both subscribers.
type stream struct {
	uid    string
	out    chan Snapshot
	manual chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	seq  uint64
	last []core.Expense
	sent bool
}

func newStream(uid string, cancel context.CancelFunc) *stream {
	return &stream{
		uid:    uid,
		out:    make(chan Snapshot, 1),
		manual: make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *stream) Snapshots() <-chan Snapshot { return s.out }

func (s *stream) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *stream) Refresh() {
	select {
	case s.manual <- struct{}{}:
	default:
	}
}

// finish is deferred by the producer goroutine.
func (s *stream) finish() {
	close(s.out)
	close(s.done)
}

// offer delivers expenses when they differ from the last delivered ledger.
// It reports whether a snapshot was sent.
func (s *stream) offer(ctx context.Context, expenses []core.Expense, now time.Time) bool {
	if s.sent && sameLedger(s.last, expenses) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	s.seq++
	s.last = expenses
	s.sent = true
	snap := Snapshot{UserID: s.uid, Seq: s.seq, At: now, Expenses: expenses}

	// Only this goroutine sends, so replacing a pending value terminates.
	for {
		select {
		case s.out <- snap:
			return true
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}

func sameLedger(a, b []core.Expense) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		if x.ID != y.ID || x.CategoryID != y.CategoryID || x.Note != y.Note ||
			!x.Amount.Equal(y.Amount) || !x.Date.Equal(y.Date) || !x.CreatedAt.Equal(y.CreatedAt) {
			return false
		}
	}
	return true
}

// retry schedules the next attempt on the backoff ladder. It mirrors a
// ticker driven loop: a pending retry suppresses regular ticks.
type retry struct {
	backoff []time.Duration
	idx     int
	timer   *time.Timer
	C       <-chan time.Time
}

func newRetry(backoff []time.Duration) *retry {
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	return &retry{backoff: backoff}
}

func (r *retry) schedule() time.Duration {
	r.stop()
	d := r.backoff[r.idx]
	if r.idx < len(r.backoff)-1 {
		r.idx++
	}
	r.timer = time.NewTimer(d)
	r.C = r.timer.C
	return d
}

func (r *retry) pending() bool { return r.C != nil }

func (r *retry) stop() {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = nil
	r.C = nil
}

func (r *retry) reset() {
	r.stop()
	r.idx = 0
}
