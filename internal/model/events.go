package model

import "github.com/shopspring/decimal"

// OrderEvent is the sealed set of events that drive order state. Current
// order status is always a pure fold over the ordered event log.
type OrderEvent interface {
	OrderId() ClientOrderId
	Timestamp() UnixNanos
	Name() string
}

type orderEventBase struct {
	ClientOrderIdValue ClientOrderId
	TsEvent            UnixNanos
}

func (e orderEventBase) OrderId() ClientOrderId { return e.ClientOrderIdValue }
func (e orderEventBase) Timestamp() UnixNanos   { return e.TsEvent }

// OrderSubmittedEvent marks the order sent to the venue or simulator.
type OrderSubmittedEvent struct {
	orderEventBase
	AccountId AccountId
}

func NewOrderSubmittedEvent(id ClientOrderId, accountId AccountId, ts UnixNanos) OrderSubmittedEvent {
	return OrderSubmittedEvent{orderEventBase{id, ts}, accountId}
}

func (OrderSubmittedEvent) Name() string { return "OrderSubmitted" }

// OrderAcceptedEvent marks venue acknowledgement.
type OrderAcceptedEvent struct {
	orderEventBase
	VenueOrderId VenueOrderId
	AccountId    AccountId
}

func NewOrderAcceptedEvent(id ClientOrderId, venueOrderId VenueOrderId, accountId AccountId, ts UnixNanos) OrderAcceptedEvent {
	return OrderAcceptedEvent{orderEventBase{id, ts}, venueOrderId, accountId}
}

func (OrderAcceptedEvent) Name() string { return "OrderAccepted" }

// OrderRejectedEvent carries a deterministic human-readable reason.
type OrderRejectedEvent struct {
	orderEventBase
	AccountId AccountId
	Reason    string
}

func NewOrderRejectedEvent(id ClientOrderId, accountId AccountId, reason string, ts UnixNanos) OrderRejectedEvent {
	return OrderRejectedEvent{orderEventBase{id, ts}, accountId, reason}
}

func (OrderRejectedEvent) Name() string { return "OrderRejected" }

// OrderTriggeredEvent marks a stop condition being met.
type OrderTriggeredEvent struct {
	orderEventBase
}

func NewOrderTriggeredEvent(id ClientOrderId, ts UnixNanos) OrderTriggeredEvent {
	return OrderTriggeredEvent{orderEventBase{id, ts}}
}

func (OrderTriggeredEvent) Name() string { return "OrderTriggered" }

// OrderCanceledEvent marks removal from the market.
type OrderCanceledEvent struct {
	orderEventBase
	Reason string
}

func NewOrderCanceledEvent(id ClientOrderId, reason string, ts UnixNanos) OrderCanceledEvent {
	return OrderCanceledEvent{orderEventBase{id, ts}, reason}
}

func (OrderCanceledEvent) Name() string { return "OrderCanceled" }

// OrderExpiredEvent marks GTD expiry.
type OrderExpiredEvent struct {
	orderEventBase
}

func NewOrderExpiredEvent(id ClientOrderId, ts UnixNanos) OrderExpiredEvent {
	return OrderExpiredEvent{orderEventBase{id, ts}}
}

func (OrderExpiredEvent) Name() string { return "OrderExpired" }

// OrderUpdatedEvent marks an accepted amendment.
type OrderUpdatedEvent struct {
	orderEventBase
	Quantity     Quantity
	Price        *Price
	TriggerPrice *Price
}

func NewOrderUpdatedEvent(id ClientOrderId, quantity Quantity, price, trigger *Price, ts UnixNanos) OrderUpdatedEvent {
	return OrderUpdatedEvent{orderEventBase{id, ts}, quantity, price, trigger}
}

func (OrderUpdatedEvent) Name() string { return "OrderUpdated" }

// OrderFilledEvent is one fill at one price level.
type OrderFilledEvent struct {
	orderEventBase
	VenueOrderId  VenueOrderId
	TradeId       TradeId
	PositionId    PositionId
	Side          OrderSide
	LastPx        Price
	LastQty       Quantity
	Commission    Money
	LiquiditySide LiquiditySide
	AccountId     AccountId
}

func NewOrderFilledEvent(
	id ClientOrderId,
	venueOrderId VenueOrderId,
	tradeId TradeId,
	side OrderSide,
	lastPx Price,
	lastQty Quantity,
	commission Money,
	liquiditySide LiquiditySide,
	accountId AccountId,
	ts UnixNanos,
) OrderFilledEvent {
	return OrderFilledEvent{
		orderEventBase: orderEventBase{id, ts},
		VenueOrderId:   venueOrderId,
		TradeId:        tradeId,
		Side:           side,
		LastPx:         lastPx,
		LastQty:        lastQty,
		Commission:     commission,
		LiquiditySide:  liquiditySide,
		AccountId:      accountId,
	}
}

func (OrderFilledEvent) Name() string { return "OrderFilled" }

// AccountState is the append-only account event; current state folds these.
type AccountState struct {
	AccountId    AccountId
	AccountType  AccountType
	BaseCurrency string
	Balances     []AccountBalance
	Margins      []MarginBalance
	Reported     bool
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// BalanceFor returns the balance entry for a currency, if present.
func (a AccountState) BalanceFor(currency string) (AccountBalance, bool) {
	for _, b := range a.Balances {
		if b.Currency == currency {
			return b, true
		}
	}
	return AccountBalance{}, false
}

// Position is the netted inventory for one instrument.
type Position struct {
	Id           PositionId
	InstrumentId InstrumentId
	AccountId    AccountId
	Side         PositionSide
	// SignedQty is positive for LONG, negative for SHORT.
	SignedQty decimal.Decimal
	AvgPx     decimal.Decimal
	TsOpened  UnixNanos
	TsLast    UnixNanos
}

// Quantity returns the absolute open quantity.
func (p Position) Quantity() decimal.Decimal {
	return p.SignedQty.Abs()
}

// IsFlat reports whether no inventory is open.
func (p Position) IsFlat() bool {
	return p.SignedQty.IsZero()
}

// ApplyFill nets a fill into the position using the standard netting
// arithmetic: same-direction fills accumulate value, opposite fills reduce
// proportionally, and a flip resets the average to the fill price.
func (p *Position) ApplyFill(side OrderSide, qty, px decimal.Decimal, ts UnixNanos) {
	direction := decimal.NewFromInt(1)
	if side == Sell {
		direction = decimal.NewFromInt(-1)
	}
	signed := direction.Mul(qty)
	newQty := p.SignedQty.Add(signed)

	switch {
	case p.SignedQty.IsZero():
		p.AvgPx = px
	case p.SignedQty.Sign() == signed.Sign():
		// Accumulate: weighted average.
		oldValue := p.SignedQty.Abs().Mul(p.AvgPx)
		addValue := qty.Mul(px)
		p.AvgPx = oldValue.Add(addValue).Div(p.SignedQty.Abs().Add(qty))
	case newQty.Sign() != 0 && newQty.Sign() != p.SignedQty.Sign():
		// Flip: remaining quantity opens at the fill price.
		p.AvgPx = px
	}
	// Reduction keeps the average price.

	p.SignedQty = newQty
	p.TsLast = ts
	switch p.SignedQty.Sign() {
	case 1:
		p.Side = Long
	case -1:
		p.Side = Short
	default:
		p.Side = Flat
	}
	if p.TsOpened == 0 {
		p.TsOpened = ts
	}
}
