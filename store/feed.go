package store

import "sync"

// ChangeKind names the document that changed.
type ChangeKind string

const (
	ChangeAccount     ChangeKind = "account"
	ChangeTasks       ChangeKind = "tasks"
	ChangeLeaderboard ChangeKind = "leaderboard"
)

// Change announces that a user's stored state moved. It carries no payload;
// subscribers re-read the latest snapshot.
type Change struct {
	UserID uint
	Kind   ChangeKind
}

type subscriber struct {
	userID uint
	ch     chan Change
}

// Feed fans committed changes out to subscribers. Each subscription holds at most one
// pending change: a newer change replaces an undelivered one, so a slow reader always
// sees the latest state at least once. There is no ordering across users.
type Feed struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]subscriber
}

// NewFeed returns an empty Feed.
func NewFeed() *Feed {
	return &Feed{subs: map[uint64]subscriber{}}
}

// Subscribe registers for userID's changes. userID 0 receives every change.
// The returned cancel closes the channel.
func (f *Feed) Subscribe(userID uint) (<-chan Change, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	ch := make(chan Change, 1)
	f.subs[id] = subscriber{userID: userID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers c without blocking.
func (f *Feed) Publish(c Change) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		if s.userID != 0 && s.userID != c.UserID {
			continue
		}
		select {
		case s.ch <- c:
			continue
		default:
		}
		// drop the stale pending change and retry once
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- c:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
