package cache

import (
	"sync"

	"quantflow/internal/book"
	"quantflow/internal/model"
)

// defaultCapacity bounds the per-key tick and bar history.
const defaultCapacity = 10_000

// Cache is the central store for market data and execution state. Mutation
// happens on the owning engine's dispatch goroutine; reads may come from
// anywhere, so access is guarded.
type Cache struct {
	mu sync.RWMutex

	books       map[model.InstrumentId]*book.OrderBook
	quotes      map[model.InstrumentId][]model.QuoteTick
	trades      map[model.InstrumentId][]model.TradeTick
	bars        map[string][]model.Bar
	instruments map[model.InstrumentId]model.Instrument
	orders      map[model.ClientOrderId]*model.Order
	positions   map[model.PositionId]*model.Position
	accounts    map[model.AccountId]model.AccountState

	capacity int
}

func NewCache() *Cache {
	return &Cache{
		books:       make(map[model.InstrumentId]*book.OrderBook),
		quotes:      make(map[model.InstrumentId][]model.QuoteTick),
		trades:      make(map[model.InstrumentId][]model.TradeTick),
		bars:        make(map[string][]model.Bar),
		instruments: make(map[model.InstrumentId]model.Instrument),
		orders:      make(map[model.ClientOrderId]*model.Order),
		positions:   make(map[model.PositionId]*model.Position),
		accounts:    make(map[model.AccountId]model.AccountState),
		capacity:    defaultCapacity,
	}
}

// AddBook registers a book for the instrument, replacing any existing one.
func (c *Cache) AddBook(b *book.OrderBook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.books[b.InstrumentId] = b
}

// Book returns the registered book for the instrument, if any.
func (c *Cache) Book(id model.InstrumentId) (*book.OrderBook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.books[id]
	return b, ok
}

// AddQuote appends the quote to the bounded per-instrument history.
func (c *Cache) AddQuote(quote model.QuoteTick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[quote.InstrumentId] = appendBounded(c.quotes[quote.InstrumentId], quote, c.capacity)
}

// Quote returns the most recent quote for the instrument.
func (c *Cache) Quote(id model.InstrumentId) (model.QuoteTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	quotes := c.quotes[id]
	if len(quotes) == 0 {
		return model.QuoteTick{}, false
	}
	return quotes[len(quotes)-1], true
}

// Quotes returns the stored history, most recent last.
func (c *Cache) Quotes(id model.InstrumentId) []model.QuoteTick {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.QuoteTick, len(c.quotes[id]))
	copy(out, c.quotes[id])
	return out
}

// AddTrade appends the trade to the bounded per-instrument history.
func (c *Cache) AddTrade(trade model.TradeTick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades[trade.InstrumentId] = appendBounded(c.trades[trade.InstrumentId], trade, c.capacity)
}

// Trade returns the most recent trade for the instrument.
func (c *Cache) Trade(id model.InstrumentId) (model.TradeTick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	trades := c.trades[id]
	if len(trades) == 0 {
		return model.TradeTick{}, false
	}
	return trades[len(trades)-1], true
}

// AddBar appends the bar to the bounded per-bar-type history.
func (c *Cache) AddBar(bar model.Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := bar.BarType.String()
	c.bars[key] = appendBounded(c.bars[key], bar, c.capacity)
}

// Bar returns the most recent bar for the bar type.
func (c *Cache) Bar(barType model.BarType) (model.Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars := c.bars[barType.String()]
	if len(bars) == 0 {
		return model.Bar{}, false
	}
	return bars[len(bars)-1], true
}

// Bars returns the stored history for the bar type, most recent last.
func (c *Cache) Bars(barType model.BarType) []model.Bar {
	c.mu.RLock()
	defer c.mu.RUnlock()
	bars := c.bars[barType.String()]
	out := make([]model.Bar, len(bars))
	copy(out, bars)
	return out
}

// AddInstrument upserts the instrument definition.
func (c *Cache) AddInstrument(instrument model.Instrument) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.instruments[instrument.Id] = instrument
}

// Instrument returns the definition for the id, if known.
func (c *Cache) Instrument(id model.InstrumentId) (model.Instrument, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	inst, ok := c.instruments[id]
	return inst, ok
}

// Instruments returns every known definition.
func (c *Cache) Instruments() []model.Instrument {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.Instrument, 0, len(c.instruments))
	for _, inst := range c.instruments {
		out = append(out, inst)
	}
	return out
}

// AddOrder registers an order by client id.
func (c *Cache) AddOrder(order *model.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders[order.ClientOrderId] = order
}

// Order returns the order for the client id, if known.
func (c *Cache) Order(id model.ClientOrderId) (*model.Order, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.orders[id]
	return o, ok
}

// OpenOrders returns orders that can still trade, optionally filtered by
// instrument.
func (c *Cache) OpenOrders(id *model.InstrumentId) []*model.Order {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*model.Order
	for _, o := range c.orders {
		if !o.IsOpen() {
			continue
		}
		if id != nil && o.InstrumentId != *id {
			continue
		}
		out = append(out, o)
	}
	return out
}

// AddPosition registers a position by id.
func (c *Cache) AddPosition(p *model.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[p.Id] = p
}

// Position returns the position for the id, if known.
func (c *Cache) Position(id model.PositionId) (*model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.positions[id]
	return p, ok
}

// PositionForInstrument returns the open position on the instrument, if any.
func (c *Cache) PositionForInstrument(id model.InstrumentId) (*model.Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.positions {
		if p.InstrumentId == id && !p.IsFlat() {
			return p, true
		}
	}
	return nil, false
}

// AddAccountState stores the latest account snapshot.
func (c *Cache) AddAccountState(state model.AccountState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[state.AccountId] = state
}

// AccountState returns the latest snapshot for the account.
func (c *Cache) AccountState(id model.AccountId) (model.AccountState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.accounts[id]
	return state, ok
}

func appendBounded[T any](s []T, v T, capacity int) []T {
	s = append(s, v)
	if len(s) > capacity {
		s = s[1:]
	}
	return s
}
