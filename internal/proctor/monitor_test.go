package proctor

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mockai/mockai-backend/internal/notify"
)

type fakeHost struct {
	err   error
	calls int
}

func (h *fakeHost) RequestFullscreen(context.Context) error {
	h.calls++
	return h.err
}

func newStartedMonitor(t *testing.T, opts ...Option) (*notify.Bus, *Monitor) {
	t.Helper()
	bus := notify.NewBus()
	m := NewMonitor(bus, zerolog.Nop(), opts...)
	m.Start()
	t.Cleanup(m.Stop)
	return bus, m
}

func hide(bus *notify.Bus) { bus.Publish(notify.Event{Kind: notify.KindVisibility, Active: false}) }
func show(bus *notify.Bus) { bus.Publish(notify.Event{Kind: notify.KindVisibility, Active: true}) }

func exitFullscreen(bus *notify.Bus) {
	bus.Publish(notify.Event{Kind: notify.KindFullscreen, Active: false})
}

func enterFullscreen(bus *notify.Bus) {
	bus.Publish(notify.Event{Kind: notify.KindFullscreen, Active: true})
}

func TestIntegrityScore(t *testing.T) {
	cases := map[int]int{0: 100, 1: 85, 3: 55, 6: 10, 7: 0, 50: 0}
	for count, want := range cases {
		assert.Equal(t, want, IntegrityScore(count), "count=%d", count)
	}
}

func TestMonitorInitialState(t *testing.T) {
	_, m := newStartedMonitor(t)
	s := m.State()
	assert.Zero(t, s.ViolationCount)
	assert.Empty(t, s.Violations)
	assert.True(t, s.IsInFullscreen)
	assert.Equal(t, 100, m.IntegrityScore())
}

func TestTabSwitchesThenFullscreenExit(t *testing.T) {
	bus, m := newStartedMonitor(t)

	hide(bus)
	hide(bus)
	exitFullscreen(bus)

	s := m.State()
	assert.Equal(t, 3, s.ViolationCount)
	assert.Equal(t, 55, m.IntegrityScore())
	assert.False(t, s.IsInFullscreen)
	require.Len(t, s.Violations, 3)
	assert.Equal(t, ReasonFullscreenExit, s.Violations[0].Reason, "most recent first")
	assert.Equal(t, ReasonTabSwitch, s.Violations[1].Reason)
	assert.Equal(t, ReasonTabSwitch, s.Violations[2].Reason)
}

func TestVisibleAndFullscreenRestoreAreNotViolations(t *testing.T) {
	bus, m := newStartedMonitor(t)

	exitFullscreen(bus)
	enterFullscreen(bus)
	show(bus)

	s := m.State()
	assert.Equal(t, 1, s.ViolationCount)
	assert.True(t, s.IsInFullscreen)
}

func TestFullscreenStateIgnoresTabSwitches(t *testing.T) {
	bus, m := newStartedMonitor(t)

	hide(bus)
	assert.True(t, m.State().IsInFullscreen)
}

func TestStartIsIdempotent(t *testing.T) {
	bus, m := newStartedMonitor(t)
	m.Start()
	m.Start()

	hide(bus)
	assert.Equal(t, 1, m.ViolationCount())
	assert.Equal(t, 1, bus.Len())
}

func TestStopTwiceThenNoViolations(t *testing.T) {
	bus, m := newStartedMonitor(t)
	hide(bus)

	m.Stop()
	m.Stop()
	hide(bus)
	exitFullscreen(bus)

	assert.Equal(t, 1, m.ViolationCount())
	assert.False(t, m.Running())
	assert.Zero(t, bus.Len())
}

func TestViolationHookReceivesSnapshot(t *testing.T) {
	var seen []State
	bus, _ := newStartedMonitor(t, WithViolationHook(func(v ViolationEvent, s State) {
		assert.Equal(t, s.Violations[0], v)
		seen = append(seen, s)
	}))

	hide(bus)
	exitFullscreen(bus)

	require.Len(t, seen, 2)
	assert.Equal(t, 1, seen[0].ViolationCount)
	assert.Equal(t, 2, seen[1].ViolationCount)
}

func TestStateIsACopy(t *testing.T) {
	bus, m := newStartedMonitor(t)
	hide(bus)

	s := m.State()
	s.Violations[0].Reason = "tampered"
	assert.Equal(t, ReasonTabSwitch, m.State().Violations[0].Reason)
}

func TestRequestFullscreenDeniedIsRecoverable(t *testing.T) {
	host := &fakeHost{err: errors.New("NotAllowedError")}
	_, m := newStartedMonitor(t, WithHost(host))

	err := m.RequestFullscreen(context.Background())
	require.ErrorIs(t, err, ErrFullscreenDenied)
	assert.Equal(t, 1, m.State().FullscreenDenials)
	assert.Zero(t, m.ViolationCount())

	host.err = nil
	require.NoError(t, m.RequestFullscreen(context.Background()))
	assert.Equal(t, 2, host.calls)
	assert.True(t, m.Running())
}

func TestRequestFullscreenWithoutHost(t *testing.T) {
	_, m := newStartedMonitor(t)
	assert.ErrorIs(t, m.RequestFullscreen(context.Background()), ErrFullscreenDenied)
}

func TestDeniedNotificationCounted(t *testing.T) {
	bus, m := newStartedMonitor(t)
	bus.Publish(notify.Event{Kind: notify.KindFullscreenDenied, Detail: "permission"})

	assert.Equal(t, 1, m.State().FullscreenDenials)
	assert.Zero(t, m.ViolationCount())
}

func TestHistorySeedsCount(t *testing.T) {
	earlier := []ViolationEvent{
		{Reason: ReasonFullscreenExit, Message: "exit"},
		{Reason: ReasonTabSwitch, Message: "tab"},
	}
	bus, m := newStartedMonitor(t, WithHistory(earlier))

	hide(bus)

	s := m.State()
	assert.Equal(t, 3, s.ViolationCount)
	require.Len(t, s.Violations, 3)
	assert.Equal(t, ReasonTabSwitch, s.Violations[0].Reason)
	assert.Equal(t, "exit", s.Violations[1].Message)
	assert.Equal(t, 55, m.IntegrityScore())

	earlier[0].Message = "changed"
	assert.Equal(t, "exit", m.State().Violations[1].Message)
}
