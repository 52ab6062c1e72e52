package util

import (
	"time"
)

var fixedZones = map[string]int{
	"Asia/Tokyo": 9 * 60 * 60,
	"Asia/Seoul": 9 * 60 * 60,
	"UTC":        0,
}

// LoadLocation resolves an IANA zone name, falling back to a fixed offset
// for the zones the widgets care about when tzdata is unavailable.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if offset, ok := fixedZones[name]; ok {
		return time.FixedZone(name, offset)
	}
	return time.UTC
}
