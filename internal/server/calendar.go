package server

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/kapu/hololive-widget-go/internal/domain"
)

const (
	calendarProdID = "-//Hololive Widgets//Birthdays//EN"
	calendarName   = "Hololive Birthdays"
	emptyCalendar  = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:" + calendarProdID + "\r\nEND:VCALENDAR\r\n"
)

var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://hololive.tv/widgets/birthdays"))

// BuildCalendar renders one yearly recurring all-day event per display entry.
// UIDs derive from name and date so they stay stable across refreshes.
func BuildCalendar(idx *domain.BirthdayIndex, now time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, calendarProdID)
	cal.Props.SetText("X-WR-CALNAME", calendarName)
	cal.Props.SetText(ical.PropCalendarScale, "GREGORIAN")
	cal.Props.SetText(ical.PropMethod, "PUBLISH")

	stamp := ical.NewProp(ical.PropDateTimeStamp)
	stamp.SetDateTime(now.UTC())

	idx.Each(func(month, day int, entries []domain.DisplayEntry) {
		for _, entry := range entries {
			event := ical.NewEvent()
			key := fmt.Sprintf("%02d-%02d/%s", month, day, entry.Name)
			event.Props.SetText(ical.PropUID, uuid.NewSHA1(uidNamespace, []byte(key)).String())
			event.Props.SetText(ical.PropSummary, entry.Name+" Birthday")
			event.Props.Set(stamp)

			start := ical.NewProp(ical.PropDateTimeStart)
			start.SetDate(firstOccurrence(now.Year(), month, day, now.Location()))
			event.Props.Set(start)

			rule := ical.NewProp(ical.PropRecurrenceRule)
			rule.Value = "FREQ=YEARLY"
			event.Props.Set(rule)

			if len(entry.Images) > 0 {
				image := ical.NewProp("IMAGE")
				image.Params.Set(ical.ParamValue, "URI")
				image.Value = entry.Images[0]
				event.Props.Set(image)
			}

			cal.Children = append(cal.Children, event.Component)
		}
	})

	if len(cal.Children) == 0 {
		return []byte(emptyCalendar), nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode iCalendar data: %w", err)
	}
	return buf.Bytes(), nil
}

// firstOccurrence anchors the recurrence in year. February 29 falls back to
// the latest leap year so the date stays valid.
func firstOccurrence(year, month, day int, loc *time.Location) time.Time {
	if month == 2 && day == 29 {
		for !isLeap(year) {
			year--
		}
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
