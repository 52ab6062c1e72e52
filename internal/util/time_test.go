package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadLocationFallback(t *testing.T) {
	_, offset := time.Date(2025, 1, 1, 0, 0, 0, 0, LoadLocation("Asia/Tokyo")).Zone()
	assert.Equal(t, 9*60*60, offset)
	assert.Equal(t, "UTC", LoadLocation("Nowhere/Invalid").String())
	assert.Equal(t, time.Local, LoadLocation(""))
}
