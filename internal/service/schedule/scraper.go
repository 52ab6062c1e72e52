package schedule

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/kapu/hololive-widget-go/internal/constants"
	"github.com/kapu/hololive-widget-go/internal/domain"
	"github.com/kapu/hololive-widget-go/internal/service/fetch"
	"github.com/kapu/hololive-widget-go/internal/util"
	"go.uber.org/zap"
)

// Scraper turns the official schedule page into countdown events. Each live
// becomes an event of a fixed default length starting at its scheduled time.
type Scraper struct {
	fetcher  fetch.JSONFetcher
	url      string
	location *time.Location
	duration time.Duration
	clock    util.Clock
	logger   *zap.Logger
}

type ScraperConfig struct {
	URL      string
	Timezone string
	Duration time.Duration
}

func NewScraper(fetcher fetch.JSONFetcher, cfg ScraperConfig, clock util.Clock, logger *zap.Logger) *Scraper {
	if cfg.URL == "" {
		cfg.URL = constants.ScheduleConfig.BaseURL + constants.ScheduleConfig.Path
	}
	if cfg.Timezone == "" {
		cfg.Timezone = constants.ScheduleConfig.Timezone
	}
	if cfg.Duration <= 0 {
		cfg.Duration = constants.EventsConfig.DefaultDuration
	}
	if clock == nil {
		clock = util.RealClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scraper{
		fetcher:  fetcher,
		url:      cfg.URL,
		location: util.LoadLocation(cfg.Timezone),
		duration: cfg.Duration,
		clock:    clock,
		logger:   logger,
	}
}

func (s *Scraper) Name() string {
	return "schedule-page"
}

func (s *Scraper) FetchEvents(ctx context.Context) ([]domain.Event, error) {
	body, err := s.fetcher.FetchRaw(ctx, s.url, fetch.Options{TTL: constants.CacheTTL.SchedulePage})
	if err != nil {
		return nil, fmt.Errorf("schedule page: %w", err)
	}
	return s.Parse(body)
}

// Parse extracts events from a schedule page document. Date headers apply to
// the entries that follow them.
func (s *Scraper) Parse(body []byte) ([]domain.Event, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTML parse failed: %w", err)
	}

	events := make([]domain.Event, 0)
	seen := make(map[domain.EventID]bool)
	parseErrors := 0
	currentDate := ""

	doc.Find(".container .col-12").Each(func(i int, container *goquery.Selection) {
		dateHeader := container.Find(".navbar-inverse .holodule.navbar-text")
		if dateHeader.Length() > 0 {
			dateText := strings.TrimSpace(dateHeader.Text())
			dateText = strings.Split(dateText, "(")[0]
			currentDate = strings.TrimSpace(dateText)
			return
		}

		container.Find("a.thumbnail").Each(func(j int, sel *goquery.Selection) {
			event, err := s.parseEntry(sel, currentDate)
			if err != nil {
				parseErrors++
				s.logger.Debug("Failed to parse schedule entry",
					zap.String("date", currentDate),
					zap.Error(err))
				return
			}
			if seen[event.ID] {
				return
			}
			seen[event.ID] = true
			events = append(events, event)
		})
	})

	if len(events) == 0 {
		return nil, &StructureChangedError{
			Message:     "No schedule entries found - HTML structure may have changed",
			ParseErrors: parseErrors,
		}
	}

	if parseErrors > len(events)/2 {
		s.logger.Warn("High parse error rate detected",
			zap.Int("successes", len(events)),
			zap.Int("errors", parseErrors))
	}

	s.logger.Debug("Schedule page parsed",
		zap.Int("events", len(events)),
		zap.Int("parse_errors", parseErrors))

	return events, nil
}

func (s *Scraper) parseEntry(sel *goquery.Selection, currentDate string) (domain.Event, error) {
	videoURL, exists := sel.Attr("href")
	if !exists || !strings.Contains(videoURL, "youtube.com/watch?v=") {
		return domain.Event{}, fmt.Errorf("invalid video URL")
	}

	videoID := extractVideoID(videoURL)
	if videoID == "" {
		return domain.Event{}, fmt.Errorf("could not extract video ID from %s", videoURL)
	}

	name := strings.TrimSpace(sel.Find(".name").Text())
	if name == "" {
		name = strings.TrimSpace(sel.Find(".text").Text())
	}
	if onclick, exists := sel.Attr("onclick"); exists {
		if extracted := extractNameFromOnClick(onclick); extracted != "" {
			name = extracted
		}
	}

	start, err := s.parseDatetime(currentDate, strings.TrimSpace(sel.Find(".datetime").Text()))
	if err != nil {
		return domain.Event{}, err
	}

	return domain.Event{
		ID:    domain.EventID("live-" + videoID),
		Name:  name,
		Start: start,
		End:   start.Add(s.duration),
		Link:  videoURL,
	}, nil
}

// parseDatetime reads "MM/DD" and "HH:MM" in the schedule timezone. The page
// carries no year; dates far in the past belong to next year.
func (s *Scraper) parseDatetime(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("empty date or time")
	}

	combined := date + " " + clock
	t, err := time.ParseInLocation("01/02 15:04", combined, s.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse %s: %w", combined, err)
	}

	now := s.clock.Now().In(s.location)
	result := time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, s.location)
	if result.Before(now.Add(-90 * 24 * time.Hour)) {
		result = result.AddDate(1, 0, 0)
	}
	return result, nil
}

func extractVideoID(videoURL string) string {
	parts := strings.SplitN(videoURL, "?v=", 2)
	if len(parts) < 2 {
		return ""
	}
	videoID := parts[1]
	if idx := strings.Index(videoID, "&"); idx != -1 {
		videoID = videoID[:idx]
	}
	return videoID
}

func extractNameFromOnClick(onclick string) string {
	startMarker := "event_category':'"
	startIdx := strings.Index(onclick, startMarker)
	if startIdx == -1 {
		startMarker = `event_category":"`
		startIdx = strings.Index(onclick, startMarker)
	}
	if startIdx == -1 {
		return ""
	}

	startIdx += len(startMarker)
	endIdx := strings.IndexAny(onclick[startIdx:], `'"`)
	if endIdx == -1 {
		return ""
	}
	return onclick[startIdx : startIdx+endIdx]
}

type StructureChangedError struct {
	Message     string
	ParseErrors int
}

func (e *StructureChangedError) Error() string {
	return fmt.Sprintf("%s (parse errors: %d)", e.Message, e.ParseErrors)
}

func IsStructureError(err error) bool {
	_, ok := err.(*StructureChangedError)
	return ok
}
