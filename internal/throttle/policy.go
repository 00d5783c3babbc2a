// Package throttle decides when a campaign may send its next message.
//
// The policy is a pure function of the campaign timing, the number of sends
// in the current batch and the current time. It never touches recipients;
// the dispatcher only uses its decision to schedule the next attempt.
package throttle

import (
	"math/rand"
	"sync"
	"time"

	"crmdispatch/internal/models"
)

// Reason explains a decision
type Reason string

const (
	ReasonInterval      Reason = "interval"
	ReasonOutsideWindow Reason = "outside_window"
	ReasonBatchPause    Reason = "batch_pause"
)

// Decision is the outcome of evaluating the policy.
// When SendNow is true, Until is the earliest time of the following send.
type Decision struct {
	SendNow    bool
	Until      time.Time
	ResetBatch bool
	Reason     Reason
}

// Policy evaluates campaign timing rules
type Policy struct {
	loc *time.Location

	mu  sync.Mutex
	rnd *rand.Rand
}

// Option configures a Policy
type Option func(*Policy)

// WithLocation sets the timezone business hours are expressed in
func WithLocation(loc *time.Location) Option {
	return func(p *Policy) {
		if loc != nil {
			p.loc = loc
		}
	}
}

// WithRand injects the random source used for interval jitter
func WithRand(r *rand.Rand) Option {
	return func(p *Policy) {
		if r != nil {
			p.rnd = r
		}
	}
}

// New creates a policy. Defaults to UTC and a time-seeded random source.
func New(opts ...Option) *Policy {
	p := &Policy{
		loc: time.UTC,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Location returns the configured timezone
func (p *Policy) Location() *time.Location {
	return p.loc
}

// Evaluate applies the business-hours, batch-pause and interval rules in order
func (p *Policy) Evaluate(t models.Timing, sendsInCurrentBatch int, now time.Time) Decision {
	if open, opensAt := p.Window(t, now); !open {
		return Decision{Until: opensAt, Reason: ReasonOutsideWindow}
	}

	if t.BatchSize != nil && *t.BatchSize > 0 && sendsInCurrentBatch >= *t.BatchSize {
		pause := 0
		if t.BatchPauseMinutes != nil {
			pause = *t.BatchPauseMinutes
		}
		return Decision{
			Until:      now.Add(time.Duration(pause) * time.Minute),
			ResetBatch: true,
			Reason:     ReasonBatchPause,
		}
	}

	return Decision{
		SendNow: true,
		Until:   now.Add(p.Jitter(t)),
		Reason:  ReasonInterval,
	}
}

// Window reports whether now falls inside the business-hours window.
// When it does not, opensAt is the next start time on an allowed weekday.
func (p *Policy) Window(t models.Timing, now time.Time) (open bool, opensAt time.Time) {
	if !t.BusinessHoursEnabled {
		return true, now
	}

	// Validation guarantees parseable clocks; a broken timing never blocks sends.
	start, err := models.ParseClock(t.StartTime)
	if err != nil {
		return true, now
	}
	end, err := models.ParseClock(t.EndTime)
	if err != nil {
		return true, now
	}

	local := now.In(p.loc)
	allowed := make(map[time.Weekday]bool, len(t.DaysOfWeek))
	for _, d := range t.DaysOfWeek {
		allowed[time.Weekday(d)] = true
	}

	secondOfDay := local.Hour()*3600 + local.Minute()*60 + local.Second()
	if allowed[local.Weekday()] && secondOfDay >= start*60 && secondOfDay <= end*60 {
		return true, now
	}

	for offset := 0; offset <= 7; offset++ {
		candidate := time.Date(local.Year(), local.Month(), local.Day()+offset,
			start/60, start%60, 0, 0, p.loc)
		if candidate.After(local) && allowed[candidate.Weekday()] {
			return false, candidate
		}
	}

	// No allowed weekday at all.
	return false, now.Add(24 * time.Hour)
}

// Jitter returns a uniform random interval in [min, max] seconds
func (p *Policy) Jitter(t models.Timing) time.Duration {
	lo, hi := t.MinIntervalSeconds, t.MaxIntervalSeconds
	if hi < lo {
		hi = lo
	}
	if lo < 0 {
		lo = 0
	}

	seconds := lo
	if hi > lo {
		p.mu.Lock()
		seconds = lo + p.rnd.Intn(hi-lo+1)
		p.mu.Unlock()
	}
	return time.Duration(seconds) * time.Second
}
