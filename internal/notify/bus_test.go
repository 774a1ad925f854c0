package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus()
	var got []Kind
	sub := bus.Subscribe(func(ev Event) { got = append(got, ev.Kind) })
	defer sub.Cancel()

	bus.Publish(Event{Kind: KindVisibility})
	bus.Publish(Event{Kind: KindFullscreen})
	bus.Publish(Event{Kind: KindVisibility})

	assert.Equal(t, []Kind{KindVisibility, KindFullscreen, KindVisibility}, got)
}

func TestBusFiltersByKind(t *testing.T) {
	bus := NewBus()
	var got []Event
	bus.Subscribe(func(ev Event) { got = append(got, ev) }, KindNarrationEnded)

	bus.Publish(Event{Kind: KindVisibility})
	bus.Publish(Event{Kind: KindNarrationEnded, Token: 7})

	require.Len(t, got, 1)
	assert.Equal(t, uint64(7), got[0].Token)
	assert.False(t, got[0].At.IsZero(), "publish stamps the event time")
}

func TestCancelStopsDelivery(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.Subscribe(func(Event) { calls++ })

	bus.Publish(Event{Kind: KindVisibility})
	sub.Cancel()
	sub.Cancel()
	bus.Publish(Event{Kind: KindVisibility})

	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Len())
}

func TestCancelKeepsOtherSubscribers(t *testing.T) {
	bus := NewBus()
	var a, b int
	subA := bus.Subscribe(func(Event) { a++ })
	bus.Subscribe(func(Event) { b++ })

	subA.Cancel()
	bus.Publish(Event{Kind: KindFullscreen})

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, 1, bus.Len())
}
