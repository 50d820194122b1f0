// Package timer publishes time-based trigger messages. It scans the
// catalog for time.HHMM and time.interval.N trigger labels and fires
// each label into the ingress queue on its schedule. No scheduling state
// lives anywhere else: the timer is just one more bus publisher.
package timer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"github.com/angora-org/angora/internal/bus"
	"github.com/angora-org/angora/internal/catalog"
	"github.com/angora-org/angora/internal/logger"
)

var (
	clockRe    = regexp.MustCompile(`^time\.(\d{2})(\d{2})$`)
	intervalRe = regexp.MustCompile(`^time\.interval\.(\d+)$`)
)

// Schedule is one derived cron entry.
type Schedule struct {
	// Label is the trigger label published when the entry fires.
	Label string
	// Spec is the cron expression derived from the label.
	Spec string
}

// ParseLabel derives the cron spec for a time-based trigger label.
// time.HHMM fires daily at HH:MM; time.interval.N fires every N minutes.
// Any other label is not time-based.
func ParseLabel(label string) (Schedule, bool) {
	if m := clockRe.FindStringSubmatch(label); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return Schedule{}, false
		}
		return Schedule{Label: label, Spec: fmt.Sprintf("%d %d * * *", minute, hour)}, true
	}
	if m := intervalRe.FindStringSubmatch(label); m != nil {
		minutes, err := strconv.Atoi(m[1])
		if err != nil || minutes < 1 {
			return Schedule{}, false
		}
		return Schedule{Label: label, Spec: fmt.Sprintf("@every %dm", minutes)}, true
	}
	return Schedule{}, false
}

// ClockTime returns the HH:MM display form of a time.HHMM label.
func ClockTime(label string) (string, bool) {
	m := clockRe.FindStringSubmatch(label)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", false
	}
	return m[1] + ":" + m[2], true
}

// IntervalMinutes returns the minute period of a time.interval.N label.
func IntervalMinutes(label string) (int, bool) {
	m := intervalRe.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[1])
	if err != nil || minutes < 1 {
		return 0, false
	}
	return minutes, true
}

// Schedules derives the distinct cron entries for every time-based
// trigger label in the catalog.
func Schedules(cat *catalog.Catalog) []Schedule {
	labels := lo.Uniq(lo.FlatMap(cat.Tasks(), func(t *catalog.Task, _ int) []string {
		return t.Triggers
	}))

	var out []Schedule
	for _, label := range labels {
		if sched, ok := ParseLabel(label); ok {
			out = append(out, sched)
		}
	}
	return out
}

// Timer fires time-based trigger messages into the ingress queue.
type Timer struct {
	catalog    *catalog.Catalog
	publisher  bus.Publisher
	exchange   string
	ingressKey string
}

// New builds a timer publishing to the given exchange and ingress key.
func New(cat *catalog.Catalog, publisher bus.Publisher, exchange, ingressKey string) *Timer {
	return &Timer{
		catalog:    cat,
		publisher:  publisher,
		exchange:   exchange,
		ingressKey: ingressKey,
	}
}

// Run schedules every derived entry and blocks until the context is
// canceled.
func (t *Timer) Run(ctx context.Context) error {
	c := cron.New()
	for _, sched := range Schedules(t.catalog) {
		label := sched.Label
		if _, err := c.AddFunc(sched.Spec, func() {
			t.fire(ctx, label)
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", label, err)
		}
		logger.Info(ctx, "Scheduled trigger", "label", label, "spec", sched.Spec)
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}

func (t *Timer) fire(ctx context.Context, label string) {
	env := bus.NewEnvelope(t.exchange, t.ingressKey, label, nil)
	if err := t.publisher.Publish(ctx, t.ingressKey, env); err != nil {
		logger.Error(ctx, "Failed to publish timed trigger", "label", label, "err", err)
		return
	}
	logger.Info(ctx, "Timed trigger published", "label", label)
}
