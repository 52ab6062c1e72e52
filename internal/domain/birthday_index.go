package domain

import (
	"encoding/json"
	"time"
)

// DisplayEntry is one name shown in a day bucket with the distinct images of
// every record sharing that name.
type DisplayEntry struct {
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

func (e DisplayEntry) clone() DisplayEntry {
	return DisplayEntry{
		Name:   e.Name,
		Images: append([]string{}, e.Images...),
	}
}

// BirthdayIndex maps month (1-12) to day (1-31) to display entries. It is
// never mutated after construction; accessors hand out copies.
type BirthdayIndex struct {
	buckets map[int]map[int][]DisplayEntry
	builtAt time.Time
	size    int
}

// NewBirthdayIndex takes ownership of buckets.
func NewBirthdayIndex(buckets map[int]map[int][]DisplayEntry, builtAt time.Time) *BirthdayIndex {
	if buckets == nil {
		buckets = make(map[int]map[int][]DisplayEntry)
	}
	size := 0
	for _, days := range buckets {
		for _, entries := range days {
			size += len(entries)
		}
	}
	return &BirthdayIndex{
		buckets: buckets,
		builtAt: builtAt,
		size:    size,
	}
}

func (idx *BirthdayIndex) Lookup(month, day int) []DisplayEntry {
	if idx == nil {
		return nil
	}
	entries := idx.buckets[month][day]
	if len(entries) == 0 {
		return nil
	}
	out := make([]DisplayEntry, len(entries))
	for i, entry := range entries {
		out[i] = entry.clone()
	}
	return out
}

func (idx *BirthdayIndex) OnDate(t time.Time) []DisplayEntry {
	return idx.Lookup(int(t.Month()), t.Day())
}

// DayEntries groups the entries of one calendar day.
type DayEntries struct {
	Date    time.Time      `json:"date"`
	Month   int            `json:"month"`
	Day     int            `json:"day"`
	Entries []DisplayEntry `json:"entries"`
}

// Upcoming lists non-empty days in [from, from+days).
func (idx *BirthdayIndex) Upcoming(from time.Time, days int) []DayEntries {
	if idx == nil || days <= 0 {
		return nil
	}
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())
	out := make([]DayEntries, 0)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i)
		entries := idx.OnDate(date)
		if len(entries) == 0 {
			continue
		}
		out = append(out, DayEntries{
			Date:    date,
			Month:   int(date.Month()),
			Day:     date.Day(),
			Entries: entries,
		})
	}
	return out
}

// Each visits every bucket in calendar order.
func (idx *BirthdayIndex) Each(fn func(month, day int, entries []DisplayEntry)) {
	if idx == nil {
		return
	}
	for month := 1; month <= 12; month++ {
		days, ok := idx.buckets[month]
		if !ok {
			continue
		}
		for day := 1; day <= 31; day++ {
			if entries := days[day]; len(entries) > 0 {
				fn(month, day, idx.Lookup(month, day))
			}
		}
	}
}

// Len returns the total number of display entries.
func (idx *BirthdayIndex) Len() int {
	if idx == nil {
		return 0
	}
	return idx.size
}

func (idx *BirthdayIndex) BuiltAt() time.Time {
	if idx == nil {
		return time.Time{}
	}
	return idx.builtAt
}

func (idx *BirthdayIndex) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BuiltAt time.Time                      `json:"built_at"`
		Buckets map[int]map[int][]DisplayEntry `json:"buckets"`
	}{
		BuiltAt: idx.builtAt,
		Buckets: idx.buckets,
	})
}
