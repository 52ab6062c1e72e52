package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleIndex() *BirthdayIndex {
	return NewBirthdayIndex(map[int]map[int][]DisplayEntry{
		3: {
			5: {{Name: "Alice Smith", Images: []string{"img1", "img2"}}},
			6: {{Name: "Bob", Images: []string{"b"}}, {Name: "Carol", Images: nil}},
		},
		12: {31: {{Name: "Eve", Images: []string{"e"}}}},
	}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestBirthdayIndexLookupReturnsCopies(t *testing.T) {
	idx := sampleIndex()

	entries := idx.Lookup(3, 5)
	require.Len(t, entries, 1)
	entries[0].Images[0] = "mutated"
	entries[0].Name = "mutated"

	again := idx.Lookup(3, 5)
	assert.Equal(t, "Alice Smith", again[0].Name)
	assert.Equal(t, []string{"img1", "img2"}, again[0].Images)
	assert.Nil(t, idx.Lookup(4, 1))
	assert.Equal(t, 4, idx.Len())
}

func TestBirthdayIndexUpcomingCrossesYearEnd(t *testing.T) {
	idx := sampleIndex()
	from := time.Date(2025, 12, 30, 15, 0, 0, 0, time.UTC)

	days := idx.Upcoming(from, 3)
	require.Len(t, days, 1)
	assert.Equal(t, 12, days[0].Month)
	assert.Equal(t, 31, days[0].Day)
	assert.Equal(t, "Eve", days[0].Entries[0].Name)
}

func TestBirthdayIndexEachInCalendarOrder(t *testing.T) {
	var visited []string
	sampleIndex().Each(func(month, day int, entries []DisplayEntry) {
		visited = append(visited, entries[0].Name)
	})
	assert.Equal(t, []string{"Alice Smith", "Bob", "Eve"}, visited)
}

func TestBirthdayIndexNilSafe(t *testing.T) {
	var idx *BirthdayIndex
	assert.Nil(t, idx.Lookup(1, 1))
	assert.Equal(t, 0, idx.Len())
	assert.True(t, idx.BuiltAt().IsZero())
}

func TestBirthdayIndexMarshal(t *testing.T) {
	data, err := json.Marshal(sampleIndex())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"3":{"5":[{"name":"Alice Smith","images":["img1","img2"]}]`)
}
