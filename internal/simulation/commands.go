package simulation

import (
	"quantflow/internal/model"
)

// CommandKind distinguishes trading commands for latency selection.
type CommandKind int

const (
	InsertCommand CommandKind = iota
	UpdateCommand
	DeleteCommand
)

// Command is one instruction inbound to the exchange.
type Command struct {
	Kind          CommandKind
	InstrumentId  model.InstrumentId
	Order         *model.Order
	ClientOrderId model.ClientOrderId
	Quantity      model.Quantity
	Price         *model.Price
	TriggerPrice  *model.Price
	Reason        string
	TsInit        model.UnixNanos
}

// SubmitOrder builds an insert command for a new order.
func SubmitOrder(order *model.Order, tsInit model.UnixNanos) Command {
	return Command{
		Kind:         InsertCommand,
		InstrumentId: order.InstrumentId,
		Order:        order,
		TsInit:       tsInit,
	}
}

// CancelOrder builds a delete command.
func CancelOrder(instrumentId model.InstrumentId, id model.ClientOrderId, reason string, tsInit model.UnixNanos) Command {
	return Command{
		Kind:          DeleteCommand,
		InstrumentId:  instrumentId,
		ClientOrderId: id,
		Reason:        reason,
		TsInit:        tsInit,
	}
}

// ModifyOrder builds an update command.
func ModifyOrder(instrumentId model.InstrumentId, id model.ClientOrderId, qty model.Quantity, px, trigger *model.Price, tsInit model.UnixNanos) Command {
	return Command{
		Kind:          UpdateCommand,
		InstrumentId:  instrumentId,
		ClientOrderId: id,
		Quantity:      qty,
		Price:         px,
		TriggerPrice:  trigger,
		TsInit:        tsInit,
	}
}

// LatencyModel maps command kinds to one-way latencies in nanoseconds. Base
// applies on top of the per-kind latency.
type LatencyModel struct {
	BaseNs   uint64
	InsertNs uint64
	UpdateNs uint64
	DeleteNs uint64
}

// LatencyFor returns the total latency for a command kind.
func (m LatencyModel) LatencyFor(kind CommandKind) uint64 {
	switch kind {
	case UpdateCommand:
		return m.BaseNs + m.UpdateNs
	case DeleteCommand:
		return m.BaseNs + m.DeleteNs
	default:
		return m.BaseNs + m.InsertNs
	}
}

// inflightQueue is a min-heap of delayed commands ordered by due time with a
// monotonic counter breaking ties, so equal-time commands keep send order.
type inflightItem struct {
	ts      model.UnixNanos
	counter uint64
	cmd     Command
}

type inflightQueue []inflightItem

func (q inflightQueue) Len() int { return len(q) }

func (q inflightQueue) Less(i, j int) bool {
	if q[i].ts != q[j].ts {
		return q[i].ts < q[j].ts
	}
	return q[i].counter < q[j].counter
}

func (q inflightQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *inflightQueue) Push(x interface{}) {
	*q = append(*q, x.(inflightItem))
}

func (q *inflightQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
