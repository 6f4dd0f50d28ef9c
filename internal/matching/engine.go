package matching

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quantflow/internal/book"
	"quantflow/internal/clock"
	"quantflow/internal/model"
	"quantflow/logger"
)

// Config carries the venue behavior knobs for one matching engine.
type Config struct {
	BarExecution      bool
	RejectStopOrders  bool
	SupportGtdOrders  bool
	SupportContingent bool
	UseReduceOnly     bool
	AccountType       model.AccountType
}

// EventHandler receives every order event the engine generates.
type EventHandler func(event model.OrderEvent)

// Engine matches orders for a single instrument against an internal book
// maintained from the market data stream.
//
// Validation rejects bad orders atomically: a rejected order leaves no
// partial state behind.
type Engine struct {
	instrument model.Instrument
	cfg        Config
	clk        clock.Clock
	accountId  model.AccountId
	feeModel   FeeModel
	handler    EventHandler

	book     *book.OrderBook
	orders   map[model.ClientOrderId]*model.Order
	position *model.Position

	venueOrderSeq uint64
	tradeSeq      uint64

	log *logger.Entry
}

func NewEngine(
	instrument model.Instrument,
	cfg Config,
	clk clock.Clock,
	accountId model.AccountId,
	feeModel FeeModel,
	handler EventHandler,
) *Engine {
	return &Engine{
		instrument: instrument,
		cfg:        cfg,
		clk:        clk,
		accountId:  accountId,
		feeModel:   feeModel,
		handler:    handler,
		book:       book.NewOrderBook(instrument.Id, model.L2_MBP),
		orders:     make(map[model.ClientOrderId]*model.Order),
		position:   &model.Position{Id: model.PositionId("P-" + instrument.Id.String()), InstrumentId: instrument.Id},
		log: logger.WithComponent("matching_engine").
			WithField("instrument", instrument.Id.String()),
	}
}

// Position exposes the engine's netted position.
func (e *Engine) Position() *model.Position { return e.position }

// Order returns a tracked order by client id.
func (e *Engine) Order(id model.ClientOrderId) (*model.Order, bool) {
	o, ok := e.orders[id]
	return o, ok
}

// OpenOrderCount returns the number of orders still working.
func (e *Engine) OpenOrderCount() int {
	n := 0
	for _, o := range e.orders {
		if o.IsOpen() {
			n++
		}
	}
	return n
}

// ProcessQuote refreshes the internal book touch and retries passive orders.
func (e *Engine) ProcessQuote(quote model.QuoteTick) {
	e.book.UpdateQuote(quote)
	e.iterateOrders(quote.TsEvent)
}

// ProcessDeltas applies a book delta batch and retries passive orders.
func (e *Engine) ProcessDeltas(deltas model.OrderBookDeltas) {
	if err := e.book.ApplyDeltas(deltas); err != nil {
		e.log.WithError(err).Warn("Dropping bad delta batch")
		return
	}
	var ts model.UnixNanos
	if n := len(deltas.Deltas); n > 0 {
		ts = deltas.Deltas[n-1].TsEvent
	}
	e.iterateOrders(ts)
}

// ProcessTrade uses the trade print to trigger stops.
func (e *Engine) ProcessTrade(trade model.TradeTick) {
	e.triggerStops(trade.Price, trade.TsEvent)
	e.iterateOrders(trade.TsEvent)
}

// ProcessBar replays the bar's OHLC path when bar execution is enabled.
func (e *Engine) ProcessBar(bar model.Bar) {
	if !e.cfg.BarExecution {
		return
	}
	size := e.instrument.MakeQty(1)
	for _, px := range []model.Price{bar.Open, bar.High, bar.Low, bar.Close} {
		quote := model.QuoteTick{
			InstrumentId: e.instrument.Id,
			BidPrice:     px,
			AskPrice:     px,
			BidSize:      size,
			AskSize:      size,
			TsEvent:      bar.TsEvent,
		}
		e.ProcessQuote(quote)
		e.triggerStops(px, bar.TsEvent)
	}
}

// ProcessOrder validates and executes a new order. Validation failures emit a
// single OrderRejected with a human-readable reason.
func (e *Engine) ProcessOrder(order *model.Order) {
	now := e.clk.TimestampNs()

	if reason := e.validate(order, now); reason != "" {
		e.reject(order, reason, now)
		return
	}

	e.orders[order.ClientOrderId] = order
	e.accept(order, now)

	switch order.Type {
	case model.Market:
		e.fillMarket(order, now)
	case model.Limit:
		e.tryFillLimit(order, now)
	case model.StopMarket, model.StopLimit, model.MarketIfTouched, model.LimitIfTouched:
		e.maybeTriggerNow(order, now)
	}
}

// CancelOrder cancels a working order.
func (e *Engine) CancelOrder(id model.ClientOrderId, reason string) error {
	order, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if order.IsClosed() {
		return fmt.Errorf("order %s already closed", id)
	}
	e.emit(order, model.NewOrderCanceledEvent(order.ClientOrderId, reason, e.clk.TimestampNs()))
	e.cancelLinked(order)
	return nil
}

// UpdateOrder amends quantity and prices of a working order.
func (e *Engine) UpdateOrder(id model.ClientOrderId, qty model.Quantity, px, trigger *model.Price) error {
	order, ok := e.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	if order.IsClosed() {
		return fmt.Errorf("order %s already closed", id)
	}
	now := e.clk.TimestampNs()
	e.emit(order, model.NewOrderUpdatedEvent(order.ClientOrderId, qty, px, trigger, now))
	e.tryFillLimit(order, now)
	return nil
}

func (e *Engine) validate(order *model.Order, now model.UnixNanos) string {
	inst := e.instrument
	if inst.ExpirationNs != 0 && now >= inst.ExpirationNs {
		return fmt.Sprintf("Contract %s has expired, expiration %d", inst.Id, inst.ExpirationNs)
	}
	if inst.ActivationNs != 0 && now < inst.ActivationNs {
		return fmt.Sprintf("Contract %s is not yet active, activation %d", inst.Id, inst.ActivationNs)
	}
	if order.Quantity.Precision != inst.SizePrecision {
		return fmt.Sprintf("Invalid order quantity precision for order %s, was %d when %s size precision is %d",
			order.ClientOrderId, order.Quantity.Precision, inst.Id, inst.SizePrecision)
	}
	if order.Price != nil && order.Price.Precision != inst.PricePrecision {
		return fmt.Sprintf("Invalid order price precision for order %s, was %d when %s price precision is %d",
			order.ClientOrderId, order.Price.Precision, inst.Id, inst.PricePrecision)
	}
	if order.TriggerPrice != nil && order.TriggerPrice.Precision != inst.PricePrecision {
		return fmt.Sprintf("Invalid order trigger price precision for order %s, was %d when %s price precision is %d",
			order.ClientOrderId, order.TriggerPrice.Precision, inst.Id, inst.PricePrecision)
	}
	if e.cfg.AccountType == model.CashAccount && inst.Class.IsDerivative() && order.Side == model.Sell {
		projected := e.position.SignedQty.Sub(order.Quantity.Decimal())
		if projected.IsNegative() {
			return fmt.Sprintf("CASH account cannot short %s instrument %s", inst.Class, inst.Id)
		}
	}
	if e.cfg.UseReduceOnly && order.ReduceOnly {
		if e.position.IsFlat() || sideSign(order.Side) == e.position.SignedQty.Sign() {
			return fmt.Sprintf("Reduce-only order %s would increase position", order.ClientOrderId)
		}
	}
	if e.cfg.SupportContingent && order.ContingencyType != model.NoContingency {
		if reason := e.validateContingency(order); reason != "" {
			return reason
		}
	}
	if order.PostOnly && order.Price != nil && e.wouldTake(order.Side, *order.Price) {
		bid, ask := e.touchStrings()
		return fmt.Sprintf("POST_ONLY %s %s order limit px of %s would have been a TAKER: bid=%s, ask=%s",
			order.Type, order.Side, order.Price, bid, ask)
	}
	if e.cfg.RejectStopOrders && order.TriggerPrice != nil && e.stopInMarket(order) {
		bid, ask := e.touchStrings()
		return fmt.Sprintf("%s %s order stop px of %s was in the market: bid=%s, ask=%s, but rejected because of configuration",
			order.Type, order.Side, order.TriggerPrice, bid, ask)
	}
	if order.TimeInForce == model.GTD && !e.cfg.SupportGtdOrders {
		return fmt.Sprintf("GTD orders are not supported, order %s", order.ClientOrderId)
	}
	return ""
}

func (e *Engine) validateContingency(order *model.Order) string {
	if order.ParentOrderId != "" {
		parent, ok := e.orders[order.ParentOrderId]
		if ok && parent.IsClosed() && parent.Status != model.OrderFilledStatus {
			return fmt.Sprintf("Parent order %s already closed", order.ParentOrderId)
		}
	}
	if order.ContingencyType == model.OCO {
		for _, linked := range order.LinkedOrderIds {
			sibling, ok := e.orders[linked]
			if ok && sibling.IsClosed() {
				return fmt.Sprintf("Linked OCO order %s already closed", linked)
			}
		}
	}
	return ""
}

func (e *Engine) maybeTriggerNow(order *model.Order, now model.UnixNanos) {
	if order.TriggerPrice == nil {
		return
	}
	if e.stopInMarket(order) {
		e.trigger(order, now)
	}
}

func (e *Engine) triggerStops(lastPx model.Price, ts model.UnixNanos) {
	for _, order := range e.orders {
		if !order.IsOpen() || order.IsTriggered || order.TriggerPrice == nil {
			continue
		}
		trigger := order.TriggerPrice.Raw
		hit := false
		switch order.Type {
		case model.StopMarket, model.StopLimit:
			// Buy stops arm at or above trigger, sell stops at or below.
			if order.Side == model.Buy {
				hit = lastPx.Raw >= trigger
			} else {
				hit = lastPx.Raw <= trigger
			}
		case model.MarketIfTouched, model.LimitIfTouched:
			// Touched orders arm on the favorable side.
			if order.Side == model.Buy {
				hit = lastPx.Raw <= trigger
			} else {
				hit = lastPx.Raw >= trigger
			}
		}
		if hit {
			e.trigger(order, ts)
		}
	}
}

func (e *Engine) trigger(order *model.Order, now model.UnixNanos) {
	e.emit(order, model.NewOrderTriggeredEvent(order.ClientOrderId, now))
	switch order.Type {
	case model.StopMarket, model.MarketIfTouched:
		e.fillMarket(order, now)
	case model.StopLimit, model.LimitIfTouched:
		e.tryFillLimit(order, now)
	}
}

// stopInMarket reports whether the stop trigger would fire against the touch.
func (e *Engine) stopInMarket(order *model.Order) bool {
	if order.TriggerPrice == nil {
		return false
	}
	bid, hasBid := e.book.BestBid()
	ask, hasAsk := e.book.BestAsk()
	switch order.Type {
	case model.StopMarket, model.StopLimit:
		if order.Side == model.Buy {
			return hasAsk && ask.Raw >= order.TriggerPrice.Raw
		}
		return hasBid && bid.Raw <= order.TriggerPrice.Raw
	case model.MarketIfTouched, model.LimitIfTouched:
		if order.Side == model.Buy {
			return hasAsk && ask.Raw <= order.TriggerPrice.Raw
		}
		return hasBid && bid.Raw >= order.TriggerPrice.Raw
	}
	return false
}

// wouldTake reports whether a limit price crosses the opposite touch.
func (e *Engine) wouldTake(side model.OrderSide, px model.Price) bool {
	if side == model.Buy {
		if ask, ok := e.book.BestAsk(); ok {
			return px.Raw >= ask.Raw
		}
		return false
	}
	if bid, ok := e.book.BestBid(); ok {
		return px.Raw <= bid.Raw
	}
	return false
}

func (e *Engine) touchStrings() (string, string) {
	bid := "None"
	ask := "None"
	if px, ok := e.book.BestBid(); ok {
		bid = px.String()
	}
	if px, ok := e.book.BestAsk(); ok {
		ask = px.String()
	}
	return bid, ask
}

func (e *Engine) fillMarket(order *model.Order, now model.UnixNanos) {
	levels := e.opposingLevels(order.Side)
	if len(levels) == 0 {
		e.emit(order, model.NewOrderCanceledEvent(order.ClientOrderId, "No market for order", now))
		return
	}
	if order.TimeInForce == model.FOK && !e.fullFillAvailable(order, levels, nil) {
		e.emit(order, model.NewOrderCanceledEvent(order.ClientOrderId,
			"Fill or kill order cannot be filled at full amount", now))
		return
	}
	e.walkLevels(order, levels, nil, now)
	if order.TimeInForce == model.IOC && order.IsOpen() {
		e.emit(order, model.NewOrderCanceledEvent(order.ClientOrderId, "IOC order partially filled", now))
	}
}

func (e *Engine) tryFillLimit(order *model.Order, now model.UnixNanos) {
	if order.Price == nil || order.IsClosed() {
		return
	}
	levels := e.opposingLevels(order.Side)
	limit := *order.Price
	if order.TimeInForce == model.FOK {
		if !e.fullFillAvailable(order, levels, &limit) {
			e.emit(order, model.NewOrderCanceledEvent(order.ClientOrderId,
				"Fill or kill order cannot be filled at full amount", now))
			return
		}
	}
	e.walkLevels(order, levels, &limit, now)
	if order.TimeInForce == model.IOC && order.IsOpen() {
		e.emit(order, model.NewOrderCanceledEvent(order.ClientOrderId, "IOC order partially filled", now))
	}
	// Otherwise the remainder rests in the market.
}

func (e *Engine) opposingLevels(side model.OrderSide) []model.BookLevel {
	if side == model.Buy {
		return e.book.AskLevels()
	}
	return e.book.BidLevels()
}

func (e *Engine) levelWithinLimit(side model.OrderSide, levelPx model.Price, limit *model.Price) bool {
	if limit == nil {
		return true
	}
	if side == model.Buy {
		return levelPx.Raw <= limit.Raw
	}
	return levelPx.Raw >= limit.Raw
}

func (e *Engine) fullFillAvailable(order *model.Order, levels []model.BookLevel, limit *model.Price) bool {
	available := decimal.Zero
	for _, lvl := range levels {
		if !e.levelWithinLimit(order.Side, lvl.Price, limit) {
			break
		}
		available = available.Add(lvl.Size.Decimal())
	}
	return available.GreaterThanOrEqual(order.LeavesQty().Decimal())
}

// walkLevels fills level by level from the touch, emitting one OrderFilled
// per level. Fills at the same level are FIFO by construction since the book
// aggregates per price.
func (e *Engine) walkLevels(order *model.Order, levels []model.BookLevel, limit *model.Price, now model.UnixNanos) {
	for _, lvl := range levels {
		if order.LeavesQty().IsZero() {
			break
		}
		if !e.levelWithinLimit(order.Side, lvl.Price, limit) {
			break
		}
		lastQty := order.LeavesQty().Min(lvl.Size)
		if lastQty.IsZero() {
			continue
		}
		e.fill(order, lvl.Price, lastQty, model.Taker, now)
	}
}

func (e *Engine) fill(order *model.Order, px model.Price, qty model.Quantity, liquidity model.LiquiditySide, now model.UnixNanos) {
	e.tradeSeq++
	commission := e.feeModel.Commission(e.instrument, qty, px, liquidity)
	event := model.NewOrderFilledEvent(
		order.ClientOrderId,
		order.VenueOrderId,
		model.TradeId(fmt.Sprintf("%s-T-%d", e.instrument.Id.Venue, e.tradeSeq)),
		order.Side,
		px,
		qty,
		commission,
		liquidity,
		e.accountId,
		now,
	)
	e.emit(order, event)
	e.position.ApplyFill(order.Side, qty.Decimal(), px.Decimal(), now)

	if order.IsClosed() {
		e.onOrderClosed(order, now)
	}
}

// iterateOrders retries resting limit orders against the refreshed book and
// expires GTD orders whose time has come.
func (e *Engine) iterateOrders(now model.UnixNanos) {
	clockNow := e.clk.TimestampNs()
	for _, order := range e.orders {
		if !order.IsOpen() {
			continue
		}
		if e.cfg.SupportGtdOrders && order.TimeInForce == model.GTD &&
			order.ExpireTime != 0 && clockNow >= order.ExpireTime {
			e.emit(order, model.NewOrderExpiredEvent(order.ClientOrderId, now))
			e.cancelLinked(order)
			continue
		}
		if order.Type == model.Limit || (order.IsTriggered && order.Type == model.StopLimit) {
			e.retryRestingLimit(order, now)
		}
	}
}

// retryRestingLimit fills a resting limit as maker when the market has come
// to it.
func (e *Engine) retryRestingLimit(order *model.Order, now model.UnixNanos) {
	if order.Price == nil {
		return
	}
	levels := e.opposingLevels(order.Side)
	for _, lvl := range levels {
		if order.LeavesQty().IsZero() {
			break
		}
		if !e.levelWithinLimit(order.Side, lvl.Price, order.Price) {
			break
		}
		lastQty := order.LeavesQty().Min(lvl.Size)
		if lastQty.IsZero() {
			continue
		}
		// The market crossed into the resting order: it provides liquidity.
		e.fill(order, *order.Price, lastQty, model.Maker, now)
	}
}

func (e *Engine) onOrderClosed(order *model.Order, now model.UnixNanos) {
	if !e.cfg.SupportContingent {
		return
	}
	switch order.ContingencyType {
	case model.OCO:
		e.cancelLinked(order)
	case model.OTO:
		if order.Status == model.OrderFilledStatus {
			e.releaseChildren(order, now)
		} else {
			e.cancelLinked(order)
		}
	}
}

// cancelLinked cancels the other side of an OCO pair and the children of a
// dead OTO parent.
func (e *Engine) cancelLinked(order *model.Order) {
	if !e.cfg.SupportContingent || order.ContingencyType == model.NoContingency {
		return
	}
	now := e.clk.TimestampNs()
	for _, linked := range order.LinkedOrderIds {
		sibling, ok := e.orders[linked]
		if !ok || sibling.IsClosed() {
			continue
		}
		e.emit(sibling, model.NewOrderCanceledEvent(sibling.ClientOrderId,
			fmt.Sprintf("Contingent order %s closed", order.ClientOrderId), now))
	}
}

// releaseChildren activates OTO children once the parent fully fills.
func (e *Engine) releaseChildren(parent *model.Order, now model.UnixNanos) {
	for _, linked := range parent.LinkedOrderIds {
		child, ok := e.orders[linked]
		if !ok || child.Status != model.OrderInitialized {
			continue
		}
		e.accept(child, now)
		switch child.Type {
		case model.Market:
			e.fillMarket(child, now)
		case model.Limit:
			e.tryFillLimit(child, now)
		default:
			e.maybeTriggerNow(child, now)
		}
	}
}

func (e *Engine) accept(order *model.Order, now model.UnixNanos) {
	e.venueOrderSeq++
	venueOrderId := model.VenueOrderId(fmt.Sprintf("%s-%d", e.instrument.Id.Venue, e.venueOrderSeq))
	e.emit(order, model.NewOrderSubmittedEvent(order.ClientOrderId, e.accountId, now))
	e.emit(order, model.NewOrderAcceptedEvent(order.ClientOrderId, venueOrderId, e.accountId, now))
}

func (e *Engine) reject(order *model.Order, reason string, now model.UnixNanos) {
	e.orders[order.ClientOrderId] = order
	e.log.WithFields(logger.Fields{
		"order_id": order.ClientOrderId.String(),
		"reason":   reason,
	}).Warn("Rejecting order")
	e.emit(order, model.NewOrderRejectedEvent(order.ClientOrderId, e.accountId, reason, now))
}

func (e *Engine) emit(order *model.Order, event model.OrderEvent) {
	if err := order.Apply(event); err != nil {
		e.log.WithError(err).Error("Failed to apply order event")
		return
	}
	if e.handler != nil {
		e.handler(event)
	}
}

func sideSign(side model.OrderSide) int {
	if side == model.Sell {
		return -1
	}
	return 1
}
