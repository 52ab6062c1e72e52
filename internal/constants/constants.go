package constants

import "time"

var CacheTTL = struct {
	SourceData    time.Duration
	SchedulePage  time.Duration
	IndexSnapshot time.Duration
}{
	SourceData:    60 * time.Minute, // official/custom/events JSON
	SchedulePage:  30 * time.Minute,
	IndexSnapshot: 60 * time.Minute,
}

var PipelineConfig = struct {
	RefreshCron string
	RetryDelay  time.Duration
}{
	RefreshCron: "0 * * * *",
	RetryDelay:  30 * time.Second,
}

var CountdownConfig = struct {
	TickInterval time.Duration
	SetupDelay   time.Duration
}{
	TickInterval: 1 * time.Second,
	SetupDelay:   100 * time.Millisecond,
}

var EventsConfig = struct {
	SyncInterval    time.Duration
	TargetPrefix    string
	DefaultDuration time.Duration
}{
	SyncInterval:    5 * time.Minute,
	TargetPrefix:    "event-",
	DefaultDuration: 1 * time.Hour,
}

var APIConfig = struct {
	HTTPTimeout     time.Duration
	UserAgent       string
	MaxResponseSize int64
}{
	HTTPTimeout:     10 * time.Second,
	UserAgent:       "Mozilla/5.0 (compatible; HololiveWidgets/1.0)",
	MaxResponseSize: 8 << 20,
}

var ScheduleConfig = struct {
	BaseURL  string
	Path     string
	Timezone string
}{
	BaseURL:  "https://schedule.hololive.tv",
	Path:     "/lives/hololive",
	Timezone: "Asia/Tokyo",
}

var RedisKeys = struct {
	TargetPrefix   string
	IndexSnapshot  string
	LabelField     string
	UpdatedAtField string
}{
	TargetPrefix:   "widgets:target:",
	IndexSnapshot:  "widgets:birthdays:index",
	LabelField:     "label",
	UpdatedAtField: "updated_at",
}

// SyntheticIDPrefix namespaces ids allocated for custom additions away from
// official ids.
const SyntheticIDPrefix = "custom:"
