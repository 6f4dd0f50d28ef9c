package aggregation

import (
	"fmt"
	"time"

	"quantflow/internal/clock"
	"quantflow/internal/model"
)

// IntervalType selects which boundary an update landing exactly on a bar
// close belongs to.
type IntervalType string

const (
	// RightOpen intervals are [open, close): a boundary update opens the
	// next bar.
	RightOpen IntervalType = "right-open"
	// LeftOpen intervals are (open, close]: a boundary update closes the
	// current bar.
	LeftOpen IntervalType = "left-open"
)

// TimeBarConfig carries the engine's time bar behavior knobs.
type TimeBarConfig struct {
	BuildWithNoUpdates bool
	TimestampOnClose   bool
	IntervalType       IntervalType
	Origin             time.Duration
}

// TimeBarAggregator emits a bar at each aligned interval boundary. Data
// updates drive closes deterministically; a clock timer additionally fires
// closes in live mode when no update arrives.
type TimeBarAggregator struct {
	barType     model.BarType
	builder     *BarBuilder
	handler     BarHandler
	cfg         TimeBarConfig
	intervalNs  uint64
	nextCloseNs model.UnixNanos
	clk         clock.Clock
	timerName   string
}

func NewTimeBarAggregator(c clock.Clock, barType model.BarType, cfg TimeBarConfig, handler BarHandler) (*TimeBarAggregator, error) {
	if !barType.Spec.Aggregation.IsTimeBased() {
		return nil, fmt.Errorf("bar type %s is not time aggregated", barType)
	}
	if barType.Spec.Aggregation == model.Month {
		return nil, fmt.Errorf("month bars are not timer schedulable")
	}
	if cfg.IntervalType == "" {
		cfg.IntervalType = RightOpen
	}

	now := time.Unix(0, int64(c.TimestampNs())).UTC()
	start, err := GetTimeBarStart(now, barType.Spec, cfg.Origin)
	if err != nil {
		return nil, err
	}
	intervalNs := barType.Spec.TimedeltaNanos()
	return &TimeBarAggregator{
		barType:     barType,
		builder:     NewBarBuilder(barType),
		handler:     handler,
		cfg:         cfg,
		intervalNs:  intervalNs,
		nextCloseNs: model.UnixNanos(uint64(start.UnixNano()) + intervalNs),
		clk:         c,
		timerName:   "bars-" + barType.String(),
	}, nil
}

func (a *TimeBarAggregator) BarType() model.BarType { return a.barType }

// NextCloseNs exposes the scheduled close of the working bar.
func (a *TimeBarAggregator) NextCloseNs() model.UnixNanos { return a.nextCloseNs }

// StartTimer schedules live boundary fires on the clock so bars close even
// with no inbound data.
func (a *TimeBarAggregator) StartTimer() error {
	return a.clk.SetTimer(a.timerName, a.intervalNs, a.nextCloseNs, 0, func(e clock.TimeEvent) {
		a.closeDue(e.TsEvent)
	})
}

func (a *TimeBarAggregator) Stop() {
	a.clk.CancelTimer(a.timerName)
}

func (a *TimeBarAggregator) HandleQuote(quote model.QuoteTick) {
	priceType := a.barType.Spec.PriceType
	a.apply(quote.ExtractPrice(priceType), quote.ExtractSize(priceType), quote.TsEvent)
}

func (a *TimeBarAggregator) HandleTrade(trade model.TradeTick) {
	a.apply(trade.Price, trade.Size, trade.TsEvent)
}

func (a *TimeBarAggregator) HandleBar(bar model.Bar) {
	a.advanceTo(bar.TsEvent)
	a.builder.UpdateBar(bar)
	if a.cfg.IntervalType == LeftOpen && bar.TsEvent == a.nextCloseNs {
		a.closeBar()
	}
}

func (a *TimeBarAggregator) apply(price model.Price, size model.Quantity, ts model.UnixNanos) {
	a.advanceTo(ts)
	a.builder.Update(price, size, ts)
	if a.cfg.IntervalType == LeftOpen && ts == a.nextCloseNs {
		a.closeBar()
	}
}

// advanceTo closes every interval the update timestamp has moved past.
func (a *TimeBarAggregator) advanceTo(ts model.UnixNanos) {
	for {
		boundary := ts > a.nextCloseNs
		if a.cfg.IntervalType == RightOpen {
			boundary = ts >= a.nextCloseNs
		}
		if !boundary {
			return
		}
		a.closeBar()
	}
}

// closeDue fires from the live timer.
func (a *TimeBarAggregator) closeDue(ts model.UnixNanos) {
	for ts >= a.nextCloseNs {
		a.closeBar()
	}
}

func (a *TimeBarAggregator) closeBar() {
	closeNs := a.nextCloseNs
	a.nextCloseNs += model.UnixNanos(a.intervalNs)

	if !a.builder.Initialized() {
		return
	}
	if a.builder.Count() == 0 && !a.cfg.BuildWithNoUpdates {
		return
	}
	tsEvent := closeNs
	if !a.cfg.TimestampOnClose {
		tsEvent = closeNs.SaturatingSub(a.intervalNs)
	}
	a.handler(a.builder.Build(tsEvent, closeNs))
}
