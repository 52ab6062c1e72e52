package birthday

import (
	"strconv"
	"strings"
	"time"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/util"
)

type IndexStats struct {
	Indexed int
	Skipped int // missing or unparsable birthday
}

// BuildIndex groups records by birthday. Within a day, records sharing a
// display name collapse into one entry whose images are the distinct images
// of those records in encounter order.
func BuildIndex(set *domain.UnifiedSet, builtAt time.Time) (*domain.BirthdayIndex, IndexStats) {
	buckets := make(map[int]map[int][]domain.DisplayEntry)
	var stats IndexStats

	for _, record := range set.Records() {
		month, day, ok := ParseMonthDay(record.Birthday)
		if !ok {
			stats.Skipped++
			continue
		}

		days, exists := buckets[month]
		if !exists {
			days = make(map[int][]domain.DisplayEntry)
			buckets[month] = days
		}

		name := record.DisplayName()
		entries := days[day]
		found := false
		for i := range entries {
			if entries[i].Name == name {
				entries[i].Images = util.AppendUnique(entries[i].Images, record.Image)
				found = true
				break
			}
		}
		if !found {
			entries = append(entries, domain.DisplayEntry{
				Name:   name,
				Images: util.AppendUnique([]string{}, record.Image),
			})
		}
		days[day] = entries
		stats.Indexed++
	}

	return domain.NewBirthdayIndex(buckets, builtAt), stats
}

// ParseMonthDay parses "M/D" with one or two digit components.
func ParseMonthDay(value string) (month, day int, ok bool) {
	monthPart, dayPart, found := strings.Cut(strings.TrimSpace(value), "/")
	if !found {
		return 0, 0, false
	}

	month, ok = parseSmallInt(monthPart)
	if !ok || month < 1 || month > 12 {
		return 0, 0, false
	}
	day, ok = parseSmallInt(dayPart)
	if !ok || day < 1 || day > 31 {
		return 0, 0, false
	}
	return month, day, true
}

func parseSmallInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 1 || len(s) > 2 {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
