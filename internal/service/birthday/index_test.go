package birthday

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unified(records ...domain.UnifiedRecord) *domain.UnifiedSet {
	set := domain.NewUnifiedSet(len(records))
	for _, r := range records {
		set.Put(r)
	}
	return set
}

func rec(id, first, last, birthday, image string) domain.UnifiedRecord {
	return domain.UnifiedRecord{
		ID: id,
		OfficialRecord: domain.OfficialRecord{
			FirstName: first,
			LastName:  last,
			Birthday:  birthday,
			Image:     image,
		},
	}
}

func TestBuildIndexDedupsSameNameInBucket(t *testing.T) {
	set := unified(
		rec("1", "Alice", "Smith", "3/5", "img1"),
		rec("2", "Alice", "Smith", "3/5", "img2"),
		rec("3", "Alice", "Smith", "3/5", "img1"),
	)

	idx, stats := BuildIndex(set, time.Now())

	entries := idx.Lookup(3, 5)
	require.Len(t, entries, 1)
	assert.Equal(t, "Alice Smith", entries[0].Name)
	assert.Equal(t, []string{"img1", "img2"}, entries[0].Images)
	assert.Equal(t, 3, stats.Indexed)
}

func TestBuildIndexKeepsDistinctNamesInOrder(t *testing.T) {
	set := unified(
		rec("1", "Bob", "", "03/05", "b"),
		rec("2", "Alice", "Smith", "3/5", ""),
	)

	idx, _ := BuildIndex(set, time.Now())
	entries := idx.Lookup(3, 5)
	require.Len(t, entries, 2)
	assert.Equal(t, "Bob", entries[0].Name)
	assert.Equal(t, "Alice Smith", entries[1].Name)
	assert.NotNil(t, entries[1].Images)
	assert.Empty(t, entries[1].Images)
}

func TestBuildIndexEntryWithoutImageEncodesEmptyList(t *testing.T) {
	idx, _ := BuildIndex(unified(rec("1", "Alice", "", "3/5", "")), time.Now())

	data, err := json.Marshal(idx.Lookup(3, 5))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"name":"Alice","images":[]}]`, string(data))

	data, err = json.Marshal(idx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"images":[]`)
}

func TestBuildIndexSkipsUnparsableDates(t *testing.T) {
	set := unified(
		rec("1", "Missing", "", "", "x"),
		rec("2", "Text", "", "March 5", "x"),
		rec("3", "Month", "", "13/1", "x"),
		rec("4", "Day", "", "1/32", "x"),
		rec("5", "Padded", "", "003/1", "x"),
		rec("6", "Ok", "", " 12/31 ", "x"),
	)

	idx, stats := BuildIndex(set, time.Now())
	assert.Equal(t, 5, stats.Skipped)
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, idx.Len())
	assert.Len(t, idx.Lookup(12, 31), 1)
}

func TestBuildIndexFromMerge(t *testing.T) {
	official := domain.NewOfficialSet()
	official.Add("pekora", domain.OfficialRecord{FirstName: "Usada", LastName: "Pekora", Birthday: "1/12", Image: "p.png"})

	result := Merge(official, []domain.CustomRecord{
		{ID: "pekora", Image: strPtr("p2.png")},
		{FirstName: strPtr("Usada"), LastName: strPtr("Pekora"), Birthday: strPtr("1/12"), Image: strPtr("p.png")},
	})

	idx, _ := BuildIndex(result.Records, time.Now())
	entries := idx.Lookup(1, 12)
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"p2.png", "p.png"}, entries[0].Images)
}

func TestParseMonthDay(t *testing.T) {
	tests := []struct {
		in    string
		month int
		day   int
		ok    bool
	}{
		{"1/1", 1, 1, true},
		{"01/09", 1, 9, true},
		{"12/31", 12, 31, true},
		{"2/30", 2, 30, true},
		{"0/1", 0, 0, false},
		{"1/", 0, 0, false},
		{"1-1", 0, 0, false},
		{"1/1/2000", 0, 0, false},
		{"a/b", 0, 0, false},
	}
	for _, tt := range tests {
		month, day, ok := ParseMonthDay(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.month, month, tt.in)
		assert.Equal(t, tt.day, day, tt.in)
	}
}
