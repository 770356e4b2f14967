package connection

import (
	"math"
	"sync"
	"time"
)

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Backoff computes min(Cap, Base * Multiplier^(attempt-1)).
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
}

// Delay returns the wait before the given 1-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(b.Multiplier, float64(attempt-1))
	if d > float64(b.Cap) || math.IsInf(d, 0) {
		return b.Cap
	}
	return time.Duration(d)
}

// ScheduleResult describes the outcome of Scheduler.Schedule.
type ScheduleResult int

const (
	Scheduled ScheduleResult = iota
	AlreadyPending
	Exhausted
)

// Scheduler owns the reconnect attempt counter and its timers.
//
// Timer callbacks receive a token; the owner must call claim (or
// claimCooldown) with it while holding its own lock, which rejects
// callbacks that raced with Cancel or Reset.
type Scheduler struct {
	backoff     Backoff
	maxAttempts int
	cooldown    time.Duration
	afterFunc   AfterFunc
	fire        func(token uint64)
	cooled      func(token uint64)

	mu            sync.Mutex
	attempts      int
	epoch         uint64
	pending       Timer
	pendingToken  uint64
	cooldownTimer Timer
	cooldownToken uint64
}

// NewScheduler creates a Scheduler. fire runs when a reconnect delay elapses;
// cooled runs when the post-exhaustion cooldown elapses. Both run on timer
// goroutines without the Scheduler's lock held.
func NewScheduler(backoff Backoff, maxAttempts int, cooldown time.Duration, afterFunc AfterFunc, fire, cooled func(token uint64)) *Scheduler {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Scheduler{
		backoff:     backoff,
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		afterFunc:   afterFunc,
		fire:        fire,
		cooled:      cooled,
	}
}

// Schedule arms the next reconnect attempt. At most one attempt is pending.
// When attempts are exhausted it arms the cooldown instead.
func (s *Scheduler) Schedule() (ScheduleResult, int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		return AlreadyPending, s.attempts, 0
	}

	if s.maxAttempts > 0 && s.attempts >= s.maxAttempts {
		if s.cooldownTimer == nil {
			s.epoch++
			token := s.epoch
			s.cooldownToken = token
			s.cooldownTimer = s.afterFunc(s.cooldown, func() { s.cooled(token) })
		}
		return Exhausted, s.attempts, 0
	}

	s.attempts++
	delay := s.backoff.Delay(s.attempts)

	s.epoch++
	token := s.epoch
	s.pendingToken = token
	s.pending = s.afterFunc(delay, func() { s.fire(token) })

	return Scheduled, s.attempts, delay
}

// claim consumes a fired reconnect timer. Returns false for stale tokens.
func (s *Scheduler) claim(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pendingToken != token {
		return false
	}
	s.pending = nil
	return true
}

// claimCooldown consumes a fired cooldown timer and resets attempts.
// Returns false for stale tokens.
func (s *Scheduler) claimCooldown(token uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cooldownTimer == nil || s.cooldownToken != token {
		return false
	}
	s.cooldownTimer = nil
	s.attempts = 0
	return true
}

// Reset zeroes the attempt counter and stops the cooldown timer.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = 0
	if s.cooldownTimer != nil {
		s.cooldownTimer.Stop()
		s.cooldownTimer = nil
	}
}

// CancelPending stops a pending reconnect timer, leaving the cooldown alone.
func (s *Scheduler) CancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// Cancel stops both the reconnect and cooldown timers.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	if s.cooldownTimer != nil {
		s.cooldownTimer.Stop()
		s.cooldownTimer = nil
	}
}

// Attempts returns the current attempt count.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Pending reports whether a reconnect timer is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// CoolingDown reports whether the cooldown timer is armed.
func (s *Scheduler) CoolingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cooldownTimer != nil
}
