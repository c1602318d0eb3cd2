package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/taskquest/utils"
)

// Notification categories.
const (
	CategorySuccess = "success"
	CategoryError   = "error"
	CategoryInfo    = "info"
)

// Notification is one toast shown to the user.
type Notification struct {
	ID       string    `json:"id"`
	UserID   uint      `json:"user_id"`
	Category string    `json:"category"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Delta    int       `json:"delta,omitempty"`
	TaskID   uint      `json:"task_id,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier receives notifications produced by accounting and reminders.
type Notifier interface {
	Notify(userID uint, n Notification)
}

const hubBuffer = 16

// Hub fans notifications out to every live subscription of a user.
// A subscriber that falls hubBuffer messages behind loses the overflow.
type Hub struct {
	mu    sync.RWMutex
	next  uint64
	subs  map[uint]map[uint64]chan Notification
	clock utils.Clock
}

// NewHub creates an empty hub.
func NewHub(clock utils.Clock) *Hub {
	if clock == nil {
		clock = utils.RealClock{}
	}
	return &Hub{subs: map[uint]map[uint64]chan Notification{}, clock: clock}
}

// Subscribe returns a channel of userID's notifications and a func that closes it.
func (h *Hub) Subscribe(userID uint) (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan Notification, hubBuffer)
	if h.subs[userID] == nil {
		h.subs[userID] = map[uint64]chan Notification{}
	}
	h.subs[userID][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], id)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Notify stamps n and delivers it without blocking.
func (h *Hub) Notify(userID uint, n Notification) {
	n.ID = uuid.NewString()
	n.UserID = userID
	if n.At.IsZero() {
		n.At = h.clock.Now()
	}
	utils.Sugar.Debugw("notification", "user_id", userID, "title", n.Title, "delta", n.Delta)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[userID] {
		select {
		case ch <- n:
		default:
			utils.Sugar.Warnf("dropping notification %s for user %d: subscriber is full", n.ID, userID)
		}
	}
}

// Listeners reports how many subscriptions userID has.
func (h *Hub) Listeners(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
