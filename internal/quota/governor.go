// Package quota computes remaining remote-call budget from the call ledger and
// holds callers back until the budget allows another call.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tuml/internal/blog"
	"github.com/JakeFAU/tuml/internal/metrics"
)

// SafetyMargin is how many calls below each ceiling the governor stops admitting.
const SafetyMargin = 5

// ErrInvalidCeiling is returned for ceilings that leave no room above SafetyMargin.
var ErrInvalidCeiling = errors.New("quota ceilings must exceed the safety margin")

// Ceilings caps calls per calendar window.
type Ceilings struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour" yaml:"per_hour"`
	PerDay    int `json:"per_day" yaml:"per_day"`
}

// Validate rejects ceilings that would block forever.
func (c Ceilings) Validate() error {
	if c.PerMinute <= SafetyMargin || c.PerHour <= SafetyMargin || c.PerDay <= SafetyMargin {
		return fmt.Errorf("%w (%d): minute=%d hour=%d day=%d",
			ErrInvalidCeiling, SafetyMargin, c.PerMinute, c.PerHour, c.PerDay)
	}
	return nil
}

// Windows holds one value per quota window.
type Windows struct {
	Minute int `json:"minute" yaml:"minute"`
	Hour   int `json:"hour" yaml:"hour"`
	Day    int `json:"day" yaml:"day"`
}

// Usage is a snapshot of the governor's view of the ledger.
type Usage struct {
	At        time.Time `json:"at" yaml:"at"`
	Ceilings  Ceilings  `json:"ceilings" yaml:"ceilings"`
	Used      Windows   `json:"used" yaml:"used"`
	Remaining Windows   `json:"remaining" yaml:"remaining"`
	Exceeding bool      `json:"exceeding" yaml:"exceeding"`
}

// Sleeper pauses the caller; implementations must return early when ctx ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Governor admits remote calls while every window keeps its safety margin.
type Governor struct {
	ledger   blog.Ledger
	ceilings Ceilings
	clock    blog.Clock
	sleeper  Sleeper
	logger   *zap.Logger
}

// NewGovernor validates the ceilings and constructs a Governor.
func NewGovernor(
	ledger blog.Ledger,
	ceilings Ceilings,
	clock blog.Clock,
	sleeper Sleeper,
	logger *zap.Logger,
) (*Governor, error) {
	if ledger == nil {
		return nil, errors.New("quota: ledger is required")
	}
	if clock == nil || sleeper == nil {
		return nil, errors.New("quota: clock and sleeper are required")
	}
	if err := ceilings.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{
		ledger:   ledger,
		ceilings: ceilings,
		clock:    clock,
		sleeper:  sleeper,
		logger:   logger,
	}, nil
}

// Ceilings returns the configured ceilings.
func (g *Governor) Ceilings() Ceilings {
	return g.ceilings
}

// CurrentUsage counts ledger rows since the start of the current UTC minute,
// hour, and day.
func (g *Governor) CurrentUsage(ctx context.Context, now time.Time) (Usage, error) {
	now = now.UTC()
	minuteStart, hourStart, dayStart := windowStarts(now)

	var used Windows
	var err error
	if used.Minute, err = g.ledger.CountSince(ctx, minuteStart); err != nil {
		return Usage{}, fmt.Errorf("count calls this minute: %w", err)
	}
	if used.Hour, err = g.ledger.CountSince(ctx, hourStart); err != nil {
		return Usage{}, fmt.Errorf("count calls this hour: %w", err)
	}
	if used.Day, err = g.ledger.CountSince(ctx, dayStart); err != nil {
		return Usage{}, fmt.Errorf("count calls today: %w", err)
	}

	remaining := Windows{
		Minute: g.ceilings.PerMinute - used.Minute,
		Hour:   g.ceilings.PerHour - used.Hour,
		Day:    g.ceilings.PerDay - used.Day,
	}
	metrics.SetQuotaRemaining("minute", remaining.Minute)
	metrics.SetQuotaRemaining("hour", remaining.Hour)
	metrics.SetQuotaRemaining("day", remaining.Day)

	return Usage{
		At:        now,
		Ceilings:  g.ceilings,
		Used:      used,
		Remaining: remaining,
		Exceeding: remaining.Minute < SafetyMargin ||
			remaining.Hour < SafetyMargin ||
			remaining.Day < SafetyMargin,
	}, nil
}

// Usage reports CurrentUsage at the clock's current time.
func (g *Governor) Usage(ctx context.Context) (Usage, error) {
	return g.CurrentUsage(ctx, g.clock.Now())
}

// Admit blocks until the quota allows another call. It sleeps to the next
// minute boundary between checks and returns ctx's error if ctx ends first.
func (g *Governor) Admit(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("admit: %w", err)
		}
		now := g.clock.Now().UTC()
		usage, err := g.CurrentUsage(ctx, now)
		if err != nil {
			return err
		}
		if !usage.Exceeding {
			return nil
		}
		wait := time.Duration(60-now.Second()) * time.Second
		g.logger.Warn("Call quota close to ceiling; waiting for next minute",
			zap.Int("remaining_minute", usage.Remaining.Minute),
			zap.Int("remaining_hour", usage.Remaining.Hour),
			zap.Int("remaining_day", usage.Remaining.Day),
			zap.Duration("wait", wait),
		)
		metrics.ObserveQuotaWait(wait)
		if err := g.sleeper.Sleep(ctx, wait); err != nil {
			return fmt.Errorf("wait for quota: %w", err)
		}
	}
}

func windowStarts(now time.Time) (minute, hour, day time.Time) {
	y, m, d := now.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	hour = day.Add(time.Duration(now.Hour()) * time.Hour)
	minute = hour.Add(time.Duration(now.Minute()) * time.Minute)
	return minute, hour, day
}
