package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/taskquest/utils"
)

func TestHubDeliversToEverySubscriptionOfUser(t *testing.T) {
	clock := utils.NewFakeClock(time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC))
	h := NewHub(clock)
	a, cancelA := h.Subscribe(1)
	defer cancelA()
	b, cancelB := h.Subscribe(1)
	defer cancelB()
	other, cancelOther := h.Subscribe(2)
	defer cancelOther()

	h.Notify(1, Notification{Title: "Points Update!", Delta: 20})

	na, nb := <-a, <-b
	assert.Equal(t, na.ID, nb.ID)
	assert.NotEmpty(t, na.ID)
	assert.Equal(t, uint(1), na.UserID)
	assert.Equal(t, clock.Now(), na.At)
	select {
	case n := <-other:
		t.Fatalf("user 2 received %+v", n)
	default:
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe(7)
	for i := 0; i < hubBuffer+5; i++ {
		h.Notify(7, Notification{Title: "x"})
	}
	assert.Len(t, ch, hubBuffer)

	cancel()
	assert.Equal(t, 0, h.Listeners(7))
	h.Notify(7, Notification{Title: "after cancel"})
}

func TestHubCancelClosesChannel(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe(3)
	require.Equal(t, 1, h.Listeners(3))
	cancel()
	_, open := <-ch
	assert.False(t, open)
}
