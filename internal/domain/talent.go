package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kapu/hololive-widget-go/internal/util"
)

// OfficialRecord is one talent entry of the bulk official dataset.
type OfficialRecord struct {
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Birthday   string `json:"birthday"` // "M/D"
	Image      string `json:"image"`
	Generation string `json:"generation,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Link       string `json:"link,omitempty"`
}

// OfficialSet is the official dataset keyed by talent id. It remembers the
// key order of the source document.
type OfficialSet struct {
	ids     []string
	records map[string]OfficialRecord
}

func NewOfficialSet() *OfficialSet {
	return &OfficialSet{records: make(map[string]OfficialRecord)}
}

// Add inserts or replaces a record. A replaced id keeps its first position.
func (s *OfficialSet) Add(id string, record OfficialRecord) {
	if s.records == nil {
		s.records = make(map[string]OfficialRecord)
	}
	if _, exists := s.records[id]; !exists {
		s.ids = append(s.ids, id)
	}
	s.records[id] = record
}

func (s *OfficialSet) Get(id string) (OfficialRecord, bool) {
	if s == nil {
		return OfficialRecord{}, false
	}
	record, ok := s.records[id]
	return record, ok
}

func (s *OfficialSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (s *OfficialSet) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.ids...)
}

func (s *OfficialSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("official records: expected JSON object, got %v", tok)
	}

	s.ids = nil
	s.records = make(map[string]OfficialRecord)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		id, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("official records: unexpected key %v", keyTok)
		}

		var record OfficialRecord
		if err := dec.Decode(&record); err != nil {
			return fmt.Errorf("official record %q: %w", id, err)
		}
		s.Add(id, record)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func (s *OfficialSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range s.ids {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(s.records[id])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CustomRecord is an entry of the sparse custom list. With an ID it
// overrides the matching official record; without one it adds a new record.
// Only non-nil fields are applied.
type CustomRecord struct {
	ID        string  `json:"Id,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Birthday  *string `json:"birthday,omitempty"`
	Image     *string `json:"image,omitempty"`
}

func (c CustomRecord) HasID() bool {
	return strings.TrimSpace(c.ID) != ""
}

type RecordSource string

const (
	SourceOfficial RecordSource = "official"
	SourceCustom   RecordSource = "custom"
)

// UnifiedRecord is a merged talent record.
type UnifiedRecord struct {
	ID string `json:"id"`
	OfficialRecord
	Source     RecordSource `json:"source"`
	Overridden bool         `json:"overridden,omitempty"`
}

// DisplayName joins the name parts with a single space.
func (r UnifiedRecord) DisplayName() string {
	return util.JoinNonEmpty(r.FirstName, r.LastName)
}

// UnifiedSet holds exactly one record per id, in insertion order.
type UnifiedSet struct {
	ids     []string
	records map[string]UnifiedRecord
}

func NewUnifiedSet(capacity int) *UnifiedSet {
	return &UnifiedSet{
		ids:     make([]string, 0, capacity),
		records: make(map[string]UnifiedRecord, capacity),
	}
}

func (s *UnifiedSet) Put(record UnifiedRecord) {
	if _, exists := s.records[record.ID]; !exists {
		s.ids = append(s.ids, record.ID)
	}
	s.records[record.ID] = record
}

func (s *UnifiedSet) Get(id string) (UnifiedRecord, bool) {
	if s == nil {
		return UnifiedRecord{}, false
	}
	record, ok := s.records[id]
	return record, ok
}

func (s *UnifiedSet) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.records[id]
	return ok
}

func (s *UnifiedSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

func (s *UnifiedSet) IDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.ids...)
}

// Records returns the records in insertion order.
func (s *UnifiedSet) Records() []UnifiedRecord {
	if s == nil {
		return nil
	}
	out := make([]UnifiedRecord, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.records[id])
	}
	return out
}
