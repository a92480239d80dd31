package aggregate

import (
	"encoding/binary"
	"hash/fnv"
	"strconv"
	"time"

	"gastos/internal/cache"
)

// Memo remembers recently computed views keyed by a fingerprint of their
// inputs. It is safe for concurrent use.
type Memo struct {
	views *cache.LRUCache[View]
}

// NewMemo keeps up to size views for ttl each.
func NewMemo(size int, ttl time.Duration) *Memo {
	return &Memo{views: cache.NewLRUCache[View](size, ttl)}
}

// Cache exposes the backing cache so it can be registered for sweeping.
func (m *Memo) Cache() *cache.LRUCache[View] {
	return m.views
}

// Compute returns the memoized view for in, computing it on a miss.
func (m *Memo) Compute(in Inputs) View {
	if m == nil {
		return Compute(in)
	}
	key := Fingerprint(in)
	if v, ok := m.views.Get(key); ok {
		return v
	}
	v := Compute(in)
	m.views.Set(key, v)
	return v
}

// Fingerprint hashes every input a view depends on. Now only contributes the
// local day it falls on, since no view is finer grained than a day.
func Fingerprint(in Inputs) string {
	loc := in.Location
	if loc == nil {
		loc = time.UTC
	}
	h := fnv.New64a()
	var buf [8]byte
	str := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	num := func(n int64) {
		binary.LittleEndian.PutUint64(buf[:], uint64(n))
		h.Write(buf[:])
	}

	str(loc.String())
	str(string(in.Period))
	str(in.Budget.String())
	y, mo, d := in.Now.In(loc).Date()
	num(int64(y)*10000 + int64(mo)*100 + int64(d))

	num(int64(len(in.Custom)))
	for _, c := range in.Custom {
		str(c.ID)
		str(c.Name)
		str(c.Icon)
		str(c.Color)
	}
	num(int64(len(in.Expenses)))
	for _, e := range in.Expenses {
		str(e.ID)
		str(e.Amount.String())
		str(e.CategoryID)
		str(e.Note)
		num(e.Date.UnixNano())
		num(e.CreatedAt.UnixNano())
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
