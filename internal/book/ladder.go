package book

import (
	"sort"

	"quantflow/internal/model"
)

// level is one aggregated price level holding its orders in FIFO arrival
// order. MBP books keep a single synthetic order per level.
type level struct {
	price  model.Price
	orders []model.BookOrder
}

func (l *level) size() model.Quantity {
	total := model.Quantity{}
	for _, o := range l.orders {
		total.Precision = o.Size.Precision
		total.Raw += o.Size.Raw
	}
	return total
}

func (l *level) orderCount() uint32 {
	return uint32(len(l.orders))
}

// ladder is one side of the book, kept sorted best price first.
type ladder struct {
	side   model.OrderSide
	levels []*level
}

func newLadder(side model.OrderSide) *ladder {
	return &ladder{side: side}
}

// better reports whether price a sits closer to the touch than price b.
func (l *ladder) better(a, b model.Price) bool {
	if l.side == model.Buy {
		return a.Raw > b.Raw
	}
	return a.Raw < b.Raw
}

func (l *ladder) find(price model.Price) (int, bool) {
	idx := sort.Search(len(l.levels), func(i int) bool {
		return !l.better(l.levels[i].price, price)
	})
	if idx < len(l.levels) && l.levels[idx].price.Raw == price.Raw {
		return idx, true
	}
	return idx, false
}

func (l *ladder) add(order model.BookOrder) {
	idx, found := l.find(order.Price)
	if found {
		l.levels[idx].orders = append(l.levels[idx].orders, order)
		return
	}
	lvl := &level{price: order.Price, orders: []model.BookOrder{order}}
	l.levels = append(l.levels, nil)
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = lvl
}

// update replaces the order with the same id at the level, or sets the level
// outright for MBP books where the order id is the level key.
func (l *ladder) update(order model.BookOrder, mbo bool) {
	if !mbo {
		l.setLevel(order)
		return
	}
	l.deleteOrder(order.OrderId)
	if !order.Size.IsZero() {
		l.add(order)
	}
}

// setLevel makes the level at order.Price hold exactly this order. A zero
// size removes the level.
func (l *ladder) setLevel(order model.BookOrder) {
	idx, found := l.find(order.Price)
	if order.Size.IsZero() {
		if found {
			l.removeAt(idx)
		}
		return
	}
	if found {
		l.levels[idx].orders = []model.BookOrder{order}
		return
	}
	lvl := &level{price: order.Price, orders: []model.BookOrder{order}}
	l.levels = append(l.levels, nil)
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = lvl
}

func (l *ladder) deleteOrder(orderId uint64) {
	for i, lvl := range l.levels {
		for j, o := range lvl.orders {
			if o.OrderId == orderId {
				lvl.orders = append(lvl.orders[:j], lvl.orders[j+1:]...)
				if len(lvl.orders) == 0 {
					l.removeAt(i)
				}
				return
			}
		}
	}
}

func (l *ladder) deleteLevel(price model.Price) {
	if idx, found := l.find(price); found {
		l.removeAt(idx)
	}
}

func (l *ladder) removeAt(idx int) {
	l.levels = append(l.levels[:idx], l.levels[idx+1:]...)
}

func (l *ladder) clear() {
	l.levels = nil
}

func (l *ladder) top() *level {
	if len(l.levels) == 0 {
		return nil
	}
	return l.levels[0]
}
