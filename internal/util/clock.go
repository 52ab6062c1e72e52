package util

import "time"

// Clock abstracts time.Now so cache expiry and countdown labels can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
