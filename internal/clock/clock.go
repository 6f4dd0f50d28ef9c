package clock

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"quantflow/internal/model"
)

// TimeEvent is delivered to a timer handler when the timer fires.
type TimeEvent struct {
	Name    string
	TsEvent model.UnixNanos
}

// TimerHandler consumes timer fires.
type TimerHandler func(event TimeEvent)

// Clock abstracts time so live and backtest nodes share the same engine code.
type Clock interface {
	TimestampNs() model.UnixNanos
	// SetTimer installs a repeating timer. startNs of zero means now; stopNs
	// of zero means never.
	SetTimer(name string, intervalNs uint64, startNs, stopNs model.UnixNanos, handler TimerHandler) error
	// SetTimeAlert installs a one-shot timer firing at alertNs.
	SetTimeAlert(name string, alertNs model.UnixNanos, handler TimerHandler) error
	CancelTimer(name string)
	CancelTimers()
	TimerNames() []string
}

// LiveClock reads the wall clock and fires timers on background goroutines.
type LiveClock struct {
	mu     sync.Mutex
	timers map[string]chan struct{}
}

func NewLiveClock() *LiveClock {
	return &LiveClock{timers: make(map[string]chan struct{})}
}

func (c *LiveClock) TimestampNs() model.UnixNanos {
	return model.UnixNanos(time.Now().UnixNano())
}

func (c *LiveClock) SetTimer(name string, intervalNs uint64, startNs, stopNs model.UnixNanos, handler TimerHandler) error {
	if intervalNs == 0 {
		return fmt.Errorf("timer %q: interval must be positive", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.timers[name]; exists {
		return fmt.Errorf("timer %q already exists", name)
	}

	stop := make(chan struct{})
	c.timers[name] = stop

	go func() {
		now := c.TimestampNs()
		next := startNs
		if next == 0 || next < now {
			next = now + model.UnixNanos(intervalNs)
		}
		for {
			delay := time.Duration(next.SaturatingSub(uint64(c.TimestampNs())))
			select {
			case <-stop:
				return
			case <-time.After(delay):
			}
			if stopNs != 0 && next > stopNs {
				c.CancelTimer(name)
				return
			}
			handler(TimeEvent{Name: name, TsEvent: next})
			next += model.UnixNanos(intervalNs)
		}
	}()
	return nil
}

func (c *LiveClock) SetTimeAlert(name string, alertNs model.UnixNanos, handler TimerHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.timers[name]; exists {
		return fmt.Errorf("timer %q already exists", name)
	}

	stop := make(chan struct{})
	c.timers[name] = stop

	go func() {
		delay := time.Duration(alertNs.SaturatingSub(uint64(c.TimestampNs())))
		select {
		case <-stop:
			return
		case <-time.After(delay):
		}
		handler(TimeEvent{Name: name, TsEvent: alertNs})
		c.CancelTimer(name)
	}()
	return nil
}

func (c *LiveClock) CancelTimer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stop, ok := c.timers[name]; ok {
		close(stop)
		delete(c.timers, name)
	}
}

func (c *LiveClock) CancelTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, stop := range c.timers {
		close(stop)
		delete(c.timers, name)
	}
}

func (c *LiveClock) TimerNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.timers))
	for name := range c.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
