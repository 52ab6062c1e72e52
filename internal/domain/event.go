package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// EventID accepts both JSON strings and numbers.
type EventID string

func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("event id must be a string or number: %w", err)
	}
	*id = EventID(n.String())
	return nil
}

func (id EventID) String() string {
	return string(id)
}

// Event is a time-bounded entry shown with a countdown.
type Event struct {
	ID    EventID   `json:"eventId"`
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Link  string    `json:"link,omitempty"`
}

// TargetID is the display target lookup key for this event.
func (e Event) TargetID(prefix string) string {
	return prefix + e.ID.String()
}

func (e Event) Window(prefix string) TimerWindow {
	return TimerWindow{
		Start:    e.Start,
		End:      e.End,
		TargetID: e.TargetID(prefix),
	}
}

// TimerWindow drives one countdown.
type TimerWindow struct {
	Start    time.Time
	End      time.Time
	TargetID string
}

func (w TimerWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window bounds must be set (start=%v end=%v)", w.Start, w.End)
	}
	if w.End.Before(w.Start) {
		return fmt.Errorf("window end %s is before start %s", w.End.Format(time.RFC3339), w.Start.Format(time.RFC3339))
	}
	return nil
}
