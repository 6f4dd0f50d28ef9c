package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Order is a mutable order whose status is driven exclusively by appending
// events. Deriving the status from the ordered event log is total and
// invertible: DeriveStatus(order.Events()) always equals order.Status.
type Order struct {
	ClientOrderId   ClientOrderId
	VenueOrderId    VenueOrderId
	InstrumentId    InstrumentId
	Side            OrderSide
	Type            OrderType
	Quantity        Quantity
	Price           *Price
	TriggerPrice    *Price
	TimeInForce     TimeInForce
	ExpireTime      UnixNanos
	PostOnly        bool
	ReduceOnly      bool
	ContingencyType ContingencyType
	LinkedOrderIds  []ClientOrderId
	ParentOrderId   ClientOrderId
	Status          OrderStatus
	FilledQty       Quantity
	AvgPx           decimal.Decimal
	IsTriggered     bool
	TsInit          UnixNanos

	events []OrderEvent
}

// Events returns the append-only event log.
func (o *Order) Events() []OrderEvent { return o.events }

// LastEvent returns the most recent event, or nil for a fresh order.
func (o *Order) LastEvent() OrderEvent {
	if len(o.events) == 0 {
		return nil
	}
	return o.events[len(o.events)-1]
}

// IsOpen reports whether the order can still trade.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderAccepted, OrderTriggered, OrderPartiallyFilled:
		return true
	default:
		return false
	}
}

// IsClosed reports whether the order reached a terminal status.
func (o *Order) IsClosed() bool { return o.Status.IsTerminal() }

// LeavesQty returns the unfilled remainder.
func (o *Order) LeavesQty() Quantity {
	return o.Quantity.Sub(o.FilledQty)
}

// Apply transitions the order by appending an event. The transition for each
// event kind is total; unknown events are a programming error.
func (o *Order) Apply(event OrderEvent) error {
	if event.OrderId() != o.ClientOrderId {
		return fmt.Errorf("event order id %s does not match order %s", event.OrderId(), o.ClientOrderId)
	}
	o.events = append(o.events, event)
	o.transition(event)
	return nil
}

func (o *Order) transition(event OrderEvent) {
	switch e := event.(type) {
	case OrderSubmittedEvent:
		o.Status = OrderSubmitted
	case OrderAcceptedEvent:
		o.VenueOrderId = e.VenueOrderId
		o.Status = OrderAccepted
	case OrderRejectedEvent:
		o.Status = OrderRejectedStatus
	case OrderTriggeredEvent:
		o.IsTriggered = true
		o.Status = OrderTriggered
	case OrderCanceledEvent:
		o.Status = OrderCanceledStatus
	case OrderExpiredEvent:
		o.Status = OrderExpiredStatus
	case OrderUpdatedEvent:
		o.Quantity = e.Quantity
		if e.Price != nil {
			o.Price = e.Price
		}
		if e.TriggerPrice != nil {
			o.TriggerPrice = e.TriggerPrice
		}
	case OrderFilledEvent:
		filled := o.FilledQty.Decimal()
		last := e.LastQty.Decimal()
		total := filled.Add(last)
		if total.IsPositive() {
			o.AvgPx = o.AvgPx.Mul(filled).Add(e.LastPx.Decimal().Mul(last)).Div(total)
		}
		o.FilledQty = o.FilledQty.Add(e.LastQty)
		if o.FilledQty.Raw >= o.Quantity.Raw {
			o.Status = OrderFilledStatus
		} else {
			o.Status = OrderPartiallyFilled
		}
	}
}

// DeriveStatus folds an ordered event log into the status it produces. It is
// the inverse check for Apply: replaying any order's events reproduces its
// reported status.
func DeriveStatus(quantity Quantity, events []OrderEvent) OrderStatus {
	status := OrderInitialized
	filled := Quantity{Precision: quantity.Precision}
	for _, event := range events {
		switch e := event.(type) {
		case OrderSubmittedEvent:
			status = OrderSubmitted
		case OrderAcceptedEvent:
			status = OrderAccepted
		case OrderRejectedEvent:
			status = OrderRejectedStatus
		case OrderTriggeredEvent:
			status = OrderTriggered
		case OrderCanceledEvent:
			status = OrderCanceledStatus
		case OrderExpiredEvent:
			status = OrderExpiredStatus
		case OrderUpdatedEvent:
			quantity = e.Quantity
		case OrderFilledEvent:
			filled = filled.Add(e.LastQty)
			if filled.Raw >= quantity.Raw {
				status = OrderFilledStatus
			} else {
				status = OrderPartiallyFilled
			}
		}
	}
	return status
}
