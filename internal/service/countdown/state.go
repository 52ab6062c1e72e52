package countdown

import (
	"fmt"
	"time"
)

type State int

const (
	StatePending State = iota
	StateActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	LabelStartsIn = "Starts in: "
	LabelTimeLeft = "Time Left: "
	LabelEnded    = "Event Ended"
)

const (
	msPerMinute = int64(60 * 1000)
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

type Evaluation struct {
	State     State
	Label     string
	Remaining time.Duration
}

// Evaluate derives the full display state from (now, start, end). It keeps no
// memory between calls.
func Evaluate(now, start, end time.Time) (Evaluation, error) {
	if start.IsZero() || end.IsZero() {
		return Evaluation{}, fmt.Errorf("window bounds must be set")
	}
	if end.Before(start) {
		return Evaluation{}, fmt.Errorf("window end %s is before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	switch {
	case now.Before(start):
		remaining := start.Sub(now)
		return Evaluation{
			State:     StatePending,
			Label:     LabelStartsIn + FormatDuration(remaining),
			Remaining: remaining,
		}, nil
	case now.Before(end):
		remaining := end.Sub(now)
		return Evaluation{
			State:     StateActive,
			Label:     LabelTimeLeft + FormatDuration(remaining),
			Remaining: remaining,
		}, nil
	default:
		return Evaluation{State: StateEnded, Label: LabelEnded}, nil
	}
}

// FormatTimeRemaining renders milliseconds as "[Dd ]Hh Mm", truncating each
// component. Negative input renders as zero.
func FormatTimeRemaining(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	days := ms / msPerDay
	hours := (ms % msPerDay) / msPerHour
	minutes := (ms % msPerHour) / msPerMinute

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

func FormatDuration(d time.Duration) string {
	return FormatTimeRemaining(d.Milliseconds())
}
