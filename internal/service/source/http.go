package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/service/fetch"
	"go.uber.org/zap"
)

// OfficialHTTPSource reads the bulk official dataset, a JSON object keyed by
// talent id.
type OfficialHTTPSource struct {
	fetcher fetch.JSONFetcher
	url     string
	logger  *zap.Logger
}

func NewOfficialHTTPSource(fetcher fetch.JSONFetcher, url string, logger *zap.Logger) *OfficialHTTPSource {
	return &OfficialHTTPSource{fetcher: fetcher, url: url, logger: orNop(logger)}
}

func (s *OfficialHTTPSource) FetchOfficial(ctx context.Context) (*domain.OfficialSet, error) {
	set := domain.NewOfficialSet()
	if err := s.fetcher.FetchJSON(ctx, s.url, fetch.Options{}, set); err != nil {
		return nil, err
	}
	s.logger.Debug("Official records loaded", zap.Int("count", set.Len()))
	return set, nil
}

// CustomHTTPSource reads the sparse custom override/addition list.
type CustomHTTPSource struct {
	fetcher fetch.JSONFetcher
	url     string
	logger  *zap.Logger
}

func NewCustomHTTPSource(fetcher fetch.JSONFetcher, url string, logger *zap.Logger) *CustomHTTPSource {
	return &CustomHTTPSource{fetcher: fetcher, url: url, logger: orNop(logger)}
}

// FetchCustom drops entries that carry neither an id nor any field, since
// they can neither override nor add anything.
func (s *CustomHTTPSource) FetchCustom(ctx context.Context) ([]domain.CustomRecord, error) {
	var raw []domain.CustomRecord
	if err := s.fetcher.FetchJSON(ctx, s.url, fetch.Options{}, &raw); err != nil {
		return nil, err
	}

	records := make([]domain.CustomRecord, 0, len(raw))
	for i, record := range raw {
		if !record.HasID() && isEmptyCustom(record) {
			s.logger.Warn("Ignoring empty custom record", zap.Int("position", i))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func isEmptyCustom(r domain.CustomRecord) bool {
	return r.FirstName == nil && r.LastName == nil && r.Birthday == nil && r.Image == nil
}

// EventHTTPSource reads [{eventId,name,start,end}] with RFC 3339 instants.
type EventHTTPSource struct {
	fetcher fetch.JSONFetcher
	url     string
	logger  *zap.Logger
}

func NewEventHTTPSource(fetcher fetch.JSONFetcher, url string, logger *zap.Logger) *EventHTTPSource {
	return &EventHTTPSource{fetcher: fetcher, url: url, logger: orNop(logger)}
}

func (s *EventHTTPSource) Name() string {
	return "events-http"
}

// FetchEvents drops events without an id or with an unusable window.
func (s *EventHTTPSource) FetchEvents(ctx context.Context) ([]domain.Event, error) {
	var raw []domain.Event
	if err := s.fetcher.FetchJSON(ctx, s.url, fetch.Options{}, &raw); err != nil {
		return nil, err
	}

	events := make([]domain.Event, 0, len(raw))
	for _, event := range raw {
		if err := validateEvent(event); err != nil {
			s.logger.Warn("Ignoring event", zap.String("event_id", event.ID.String()), zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func validateEvent(event domain.Event) error {
	if strings.TrimSpace(event.ID.String()) == "" {
		return fmt.Errorf("missing event id")
	}
	return event.Window("").Validate()
}

func orNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}
