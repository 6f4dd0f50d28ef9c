package clock

import (
	"fmt"
	"sort"
	"sync"

	"quantflow/internal/model"
)

type testTimer struct {
	name       string
	nextNs     model.UnixNanos
	intervalNs uint64
	stopNs     model.UnixNanos
	oneShot    bool
	handler    TimerHandler
}

// TestClock is a deterministic clock for backtests and tests. Time only moves
// when SetTime or AdvanceTime is called; advancing fires every timer event
// that falls inside the advanced window, in timestamp order.
type TestClock struct {
	mu     sync.Mutex
	nowNs  model.UnixNanos
	timers map[string]*testTimer
}

func NewTestClock() *TestClock {
	return &TestClock{timers: make(map[string]*testTimer)}
}

func (c *TestClock) TimestampNs() model.UnixNanos {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowNs
}

// SetTime moves the clock without firing timers.
func (c *TestClock) SetTime(ns model.UnixNanos) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowNs = ns
}

func (c *TestClock) SetTimer(name string, intervalNs uint64, startNs, stopNs model.UnixNanos, handler TimerHandler) error {
	if intervalNs == 0 {
		return fmt.Errorf("timer %q: interval must be positive", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.timers[name]; exists {
		return fmt.Errorf("timer %q already exists", name)
	}
	next := startNs
	if next == 0 {
		next = c.nowNs + model.UnixNanos(intervalNs)
	}
	c.timers[name] = &testTimer{
		name:       name,
		nextNs:     next,
		intervalNs: intervalNs,
		stopNs:     stopNs,
		handler:    handler,
	}
	return nil
}

func (c *TestClock) SetTimeAlert(name string, alertNs model.UnixNanos, handler TimerHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.timers[name]; exists {
		return fmt.Errorf("timer %q already exists", name)
	}
	c.timers[name] = &testTimer{
		name:    name,
		nextNs:  alertNs,
		oneShot: true,
		handler: handler,
	}
	return nil
}

// AdvanceTime moves the clock to ns and fires every due timer event in
// timestamp order. It returns the fired events.
func (c *TestClock) AdvanceTime(ns model.UnixNanos) []TimeEvent {
	type pending struct {
		event   TimeEvent
		handler TimerHandler
	}

	c.mu.Lock()
	var due []pending
	for name, timer := range c.timers {
		for timer.nextNs <= ns {
			if timer.stopNs != 0 && timer.nextNs > timer.stopNs {
				break
			}
			due = append(due, pending{
				event:   TimeEvent{Name: timer.name, TsEvent: timer.nextNs},
				handler: timer.handler,
			})
			if timer.oneShot {
				delete(c.timers, name)
				break
			}
			timer.nextNs += model.UnixNanos(timer.intervalNs)
		}
	}
	c.nowNs = ns
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].event.TsEvent < due[j].event.TsEvent
	})

	events := make([]TimeEvent, 0, len(due))
	for _, p := range due {
		p.handler(p.event)
		events = append(events, p.event)
	}
	return events
}

func (c *TestClock) CancelTimer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, name)
}

func (c *TestClock) CancelTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = make(map[string]*testTimer)
}

func (c *TestClock) TimerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.timers))
	for name := range c.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
