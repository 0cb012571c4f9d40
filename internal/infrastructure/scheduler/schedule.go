package scheduler

import "time"

// Schedule decides when a job is next due.
type Schedule interface {
	// Next returns the first due time after a run that started at t.
	Next(t time.Time) time.Time
	String() string
}

// Every is a fixed-interval Schedule.
type Every time.Duration

// NewIntervalSchedule returns an Every. A non-positive interval means one minute.
func NewIntervalSchedule(interval time.Duration) Every {
	if interval <= 0 {
		interval = time.Minute
	}
	return Every(interval)
}

func (e Every) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func (e Every) String() string { return "@every " + time.Duration(e).String() }
