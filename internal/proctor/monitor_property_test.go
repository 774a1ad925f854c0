//go:build property
// +build property

package proctor

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	"github.com/mockai/mockai-backend/internal/notify"
)

// TestViolationCountTracksHiddenNotifications checks that N visibility-lost
// notifications always yield N violations and the matching score.
func TestViolationCountTracksHiddenNotifications(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("count == N and score == max(0, 100-15N)", prop.ForAll(
		func(n int) bool {
			bus := notify.NewBus()
			m := NewMonitor(bus, zerolog.Nop())
			m.Start()
			defer m.Stop()

			for i := 0; i < n; i++ {
				bus.Publish(notify.Event{Kind: notify.KindVisibility, Active: false})
			}

			want := 100 - 15*n
			if want < 0 {
				want = 0
			}
			s := m.State()
			return s.ViolationCount == n && len(s.Violations) == n && m.IntegrityScore() == want
		},
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}

// TestOnlyLossesCount checks arbitrary interleavings: only hidden and
// fullscreen-off notifications count, and fullscreen state follows the last
// fullscreen notification.
func TestOnlyLossesCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("violations == losses, invariant holds", prop.ForAll(
		func(ops []int) bool {
			bus := notify.NewBus()
			m := NewMonitor(bus, zerolog.Nop())
			m.Start()
			defer m.Stop()

			losses := 0
			fullscreen := true
			for _, op := range ops {
				switch op {
				case 0:
					bus.Publish(notify.Event{Kind: notify.KindVisibility, Active: false})
					losses++
				case 1:
					bus.Publish(notify.Event{Kind: notify.KindVisibility, Active: true})
				case 2:
					bus.Publish(notify.Event{Kind: notify.KindFullscreen, Active: false})
					losses++
					fullscreen = false
				default:
					bus.Publish(notify.Event{Kind: notify.KindFullscreen, Active: true})
					fullscreen = true
				}
			}

			s := m.State()
			return s.ViolationCount == losses &&
				len(s.Violations) == s.ViolationCount &&
				s.IsInFullscreen == fullscreen
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
