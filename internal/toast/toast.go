package toast

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	GenericTTL      = 4500 * time.Millisecond
	ChatTTL         = 6500 * time.Millisecond
	DefaultCapacity = 5
)

type Entry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type item struct {
	Entry
	timer *time.Timer
}

// Queue holds at most capacity entries; the oldest is dropped first. Each
// entry expires on its own timer. With capacity 1 a new toast replaces the
// visible one together with its pending auto-dismiss.
type Queue struct {
	capacity int
	ttl      time.Duration
	onChange func()
	Now      func() time.Time

	mu      sync.Mutex
	items   []*item
	stopped bool
}

func NewQueue(capacity int, ttl time.Duration, onChange func()) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = GenericTTL
	}
	return &Queue{
		capacity: capacity,
		ttl:      ttl,
		onChange: onChange,
		Now:      time.Now,
	}
}

func newID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func (q *Queue) Push(message string) Entry {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return Entry{}
	}
	now := q.Now()
	it := &item{Entry: Entry{
		ID:        newID(),
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(q.ttl),
	}}
	for len(q.items) >= q.capacity {
		q.items[0].timer.Stop()
		q.items = q.items[1:]
	}
	id := it.ID
	it.timer = time.AfterFunc(q.ttl, func() { q.expire(id) })
	q.items = append(q.items, it)
	entry := it.Entry
	q.mu.Unlock()

	q.notify()
	return entry
}

func (q *Queue) expire(id string) {
	if q.remove(id) {
		q.notify()
	}
}

// Dismiss removes an entry before its TTL. An empty id dismisses the newest.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	if id == "" && len(q.items) > 0 {
		id = q.items[len(q.items)-1].ID
	}
	q.mu.Unlock()
	if id == "" {
		return false
	}
	if !q.remove(id) {
		return false
	}
	q.notify()
	return true
}

func (q *Queue) remove(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.ID == id {
			it.timer.Stop()
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Active returns the newest visible entry.
func (q *Queue) Active() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Entry{}, false
	}
	return q.items[len(q.items)-1].Entry, true
}

// Entries returns visible entries, newest first.
func (q *Queue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, 0, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out = append(out, q.items[i].Entry)
	}
	return out
}

// Stop clears the queue and cancels every pending expiry.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	for _, it := range q.items {
		it.timer.Stop()
	}
	q.items = nil
}

func (q *Queue) notify() {
	if q.onChange != nil {
		q.onChange()
	}
}
