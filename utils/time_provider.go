package utils

import (
	"time"
)

// TimeProvider is the clock used to stamp receipts and events and to check signed requests
type TimeProvider interface {
	Now() time.Time
}

// TimeProviderSystemLocalTime reads the system clock
type TimeProviderSystemLocalTime struct{}

// NewTimeProviderSystemLocalTime returns the system clock
func NewTimeProviderSystemLocalTime() *TimeProviderSystemLocalTime {
	return &TimeProviderSystemLocalTime{}
}

// Now returns the current time in UTC
func (TimeProviderSystemLocalTime) Now() time.Time {
	return time.Now().UTC()
}

// TimeProviderFixedTime always returns FixedTime
type TimeProviderFixedTime struct {
	FixedTime time.Time
}

// Now returns FixedTime
func (d TimeProviderFixedTime) Now() time.Time {
	return d.FixedTime
}
