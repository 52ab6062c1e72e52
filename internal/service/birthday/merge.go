package birthday

import (
	"strconv"
	"strings"

	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/pkg/errors"
)

// MergeResult is the unified set plus the custom records that were rejected
// for referencing an unknown id.
type MergeResult struct {
	Records    *domain.UnifiedSet
	Rejected   []*errors.MergeReferenceError
	Overridden int
	Added      int
}

// Merge applies customs, in list order, on top of a copy of official.
//
// A custom record with an id overwrites the name parts, birthday and image of
// the official record with that id, field by field, only for fields it
// carries. Later overrides win. A custom record without an id becomes a new
// record under a synthetic "custom:<n>" id. Ids in the synthetic namespace
// never match an override, so customs can only target official records.
//
// Neither input is modified.
func Merge(official *domain.OfficialSet, customs []domain.CustomRecord) *MergeResult {
	result := &MergeResult{
		Records: domain.NewUnifiedSet(official.Len() + len(customs)),
	}

	for _, id := range official.IDs() {
		record, _ := official.Get(id)
		result.Records.Put(domain.UnifiedRecord{
			ID:             id,
			OfficialRecord: record,
			Source:         domain.SourceOfficial,
		})
	}

	nextSynthetic := 1
	for position, custom := range customs {
		if custom.HasID() {
			id := strings.TrimSpace(custom.ID)
			existing, ok := result.Records.Get(id)
			if !ok || strings.HasPrefix(id, constants.SyntheticIDPrefix) {
				result.Rejected = append(result.Rejected, errors.NewMergeReferenceError(id, position))
				continue
			}
			applyCustomFields(&existing.OfficialRecord, custom)
			existing.Overridden = true
			result.Records.Put(existing)
			result.Overridden++
			continue
		}

		var id string
		id, nextSynthetic = allocateSyntheticID(result.Records, nextSynthetic)

		added := domain.UnifiedRecord{
			ID:     id,
			Source: domain.SourceCustom,
		}
		applyCustomFields(&added.OfficialRecord, custom)
		result.Records.Put(added)
		result.Added++
	}

	return result
}

func applyCustomFields(record *domain.OfficialRecord, custom domain.CustomRecord) {
	if custom.FirstName != nil {
		record.FirstName = *custom.FirstName
	}
	if custom.LastName != nil {
		record.LastName = *custom.LastName
	}
	if custom.Birthday != nil {
		record.Birthday = *custom.Birthday
	}
	if custom.Image != nil {
		record.Image = *custom.Image
	}
}

// allocateSyntheticID returns the first unused synthetic id at or after n and
// the counter value to continue from.
func allocateSyntheticID(set *domain.UnifiedSet, n int) (string, int) {
	for {
		id := constants.SyntheticIDPrefix + strconv.Itoa(n)
		n++
		if !set.Has(id) {
			return id, n
		}
	}
}
