package simulation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantflow/internal/bus"
	"quantflow/internal/clock"
	"quantflow/internal/model"
)

func perpInstrument(symbol string) model.Instrument {
	return model.Instrument{
		Id:             model.NewInstrumentId(symbol, "SIM"),
		Class:          model.Perpetual,
		BaseCurrency:   "BTC",
		QuoteCurrency:  "USDT",
		PricePrecision: 2,
		SizePrecision:  0,
		PriceIncrement: model.NewPrice(0.01, 2),
		SizeIncrement:  model.NewQuantity(1, 0),
		MakerFee:       0.0002,
		TakerFee:       0.00055,
		Multiplier:     1,
	}
}

func newExchange(t *testing.T, cfg Config) (*SimulatedExchange, *clock.TestClock, *bus.MessageBus) {
	t.Helper()
	if cfg.Venue == "" {
		cfg.Venue = "SIM"
	}
	if cfg.AccountId == "" {
		cfg.AccountId = "SIM-001"
	}
	c := clock.NewTestClock()
	c.SetTime(100)
	b := bus.NewMessageBus()
	return NewSimulatedExchange(cfg, c, b), c, b
}

func marketOrder(id string, instrumentId model.InstrumentId, qty float64) *model.Order {
	return &model.Order{
		ClientOrderId: model.ClientOrderId(id),
		InstrumentId:  instrumentId,
		Side:          model.Buy,
		Type:          model.Market,
		Quantity:      model.NewQuantity(qty, 0),
		TimeInForce:   model.GTC,
	}
}

func seedQuote(ex *SimulatedExchange, id model.InstrumentId) {
	ex.ProcessQuote(model.QuoteTick{
		InstrumentId: id,
		BidPrice:     model.NewPrice(100.00, 2),
		AskPrice:     model.NewPrice(100.50, 2),
		BidSize:      model.NewQuantity(100, 0),
		AskSize:      model.NewQuantity(100, 0),
		TsEvent:      1,
	})
}

func TestAddInstrumentValidatesVenue(t *testing.T) {
	ex, _, _ := newExchange(t, Config{})
	wrong := perpInstrument("BTCUSDT")
	wrong.Id.Venue = "BYBIT"
	assert.Error(t, ex.AddInstrument(wrong))
	assert.NoError(t, ex.AddInstrument(perpInstrument("BTCUSDT")))
}

func TestAddInstrumentCashAccountDerivativeBan(t *testing.T) {
	ex, _, _ := newExchange(t, Config{AccountType: model.CashAccount})
	assert.Error(t, ex.AddInstrument(perpInstrument("BTCUSDT")))

	spot := perpInstrument("BTCUSDT")
	spot.Class = model.Spot
	assert.NoError(t, ex.AddInstrument(spot))
}

func TestLatencyHeapOrdering(t *testing.T) {
	latency := &LatencyModel{BaseNs: 100, InsertNs: 0}
	ex, _, _ := newExchange(t, Config{Latency: latency})
	inst := perpInstrument("BTCUSDT")
	require.NoError(t, ex.AddInstrument(inst))
	seedQuote(ex, inst.Id)

	// Commands at ts_init 100 and 150 become due at 200 and 250; a third at
	// 250 becomes due at 350.
	first := marketOrder("O-1", inst.Id, 1)
	second := marketOrder("O-2", inst.Id, 1)
	third := marketOrder("O-3", inst.Id, 1)
	ex.Send(SubmitOrder(first, 100))
	ex.Send(SubmitOrder(second, 150))
	ex.Send(SubmitOrder(third, 250))
	assert.Equal(t, 3, ex.InflightCount())

	ex.Process(320)
	assert.Equal(t, 1, ex.InflightCount())
	assert.Equal(t, model.OrderFilledStatus, first.Status)
	assert.Equal(t, model.OrderFilledStatus, second.Status)
	assert.Equal(t, model.OrderInitialized, third.Status)

	ex.Process(350)
	assert.Zero(t, ex.InflightCount())
	assert.Equal(t, model.OrderFilledStatus, third.Status)
}

func TestLatencyHeapEqualTimestampsKeepSendOrder(t *testing.T) {
	latency := &LatencyModel{BaseNs: 0, InsertNs: 0, DeleteNs: 0}
	ex, _, b := newExchange(t, Config{Latency: latency})
	inst := perpInstrument("BTCUSDT")
	require.NoError(t, ex.AddInstrument(inst))
	seedQuote(ex, inst.Id)

	var names []string
	b.Subscribe(bus.ExecEngineProcessTopic, func(msg interface{}) {
		if ev, ok := msg.(model.OrderEvent); ok {
			names = append(names, ev.OrderId().String()+":"+ev.Name())
		}
	}, 0)

	limit := model.NewPrice(99.00, 2)
	resting := &model.Order{
		ClientOrderId: "O-1",
		InstrumentId:  inst.Id,
		Side:          model.Buy,
		Type:          model.Limit,
		Quantity:      model.NewQuantity(1, 0),
		Price:         &limit,
		TimeInForce:   model.GTC,
	}
	ex.Send(SubmitOrder(resting, 100))
	ex.Send(CancelOrder(inst.Id, "O-1", "user", 100))

	ex.Process(100)
	require.NotEmpty(t, names)
	assert.Equal(t, "O-1:OrderCanceled", names[len(names)-1])
}

func TestFIFOQueueDrainsOnProcess(t *testing.T) {
	ex, _, _ := newExchange(t, Config{UseMessageQueue: true})
	inst := perpInstrument("BTCUSDT")
	require.NoError(t, ex.AddInstrument(inst))
	seedQuote(ex, inst.Id)

	order := marketOrder("O-1", inst.Id, 1)
	ex.Send(SubmitOrder(order, 100))
	assert.Equal(t, 1, ex.QueuedCount())
	assert.Equal(t, model.OrderInitialized, order.Status)

	ex.Process(100)
	assert.Zero(t, ex.QueuedCount())
	assert.Equal(t, model.OrderFilledStatus, order.Status)
}

func TestAdjustAccount(t *testing.T) {
	ex, _, _ := newExchange(t, Config{
		StartingBalances: []model.Money{model.NewMoney(1000, "USDT")},
	})

	ex.AdjustAccount(model.NewMoney(250, "USDT"))
	state := ex.AccountStateSnapshot()
	balance, ok := state.BalanceFor("USDT")
	require.True(t, ok)
	assert.True(t, balance.Total.Equal(decimal.NewFromInt(1250)))
	assert.True(t, balance.Free.Equal(decimal.NewFromInt(1250)))
}

func TestFrozenAccountIgnoresAdjustments(t *testing.T) {
	ex, _, _ := newExchange(t, Config{
		FrozenAccount:    true,
		StartingBalances: []model.Money{model.NewMoney(1000, "USDT")},
	})

	ex.AdjustAccount(model.NewMoney(250, "USDT"))
	state := ex.AccountStateSnapshot()
	balance, ok := state.BalanceFor("USDT")
	require.True(t, ok)
	assert.True(t, balance.Total.Equal(decimal.NewFromInt(1000)))
}

func TestGenerateFreshAccountState(t *testing.T) {
	ex, _, _ := newExchange(t, Config{
		AccountType: model.MarginAccount,
		StartingBalances: []model.Money{
			model.NewMoney(1000, "USDT"),
			model.NewMoney(2, "BTC"),
		},
	})

	state := ex.GenerateFreshAccountState()
	assert.Equal(t, model.AccountId("SIM-001"), state.AccountId)
	assert.Equal(t, model.MarginAccount, state.AccountType)
	assert.True(t, state.Reported)
	require.Len(t, state.Balances, 2)
	for _, b := range state.Balances {
		assert.True(t, b.Locked.IsZero())
		assert.True(t, b.Total.Equal(b.Free))
	}
}

func TestCommissionDebitsBalance(t *testing.T) {
	ex, _, _ := newExchange(t, Config{
		StartingBalances: []model.Money{model.NewMoney(1000, "USDT")},
	})
	inst := perpInstrument("BTCUSDT")
	require.NoError(t, ex.AddInstrument(inst))
	seedQuote(ex, inst.Id)

	order := marketOrder("O-1", inst.Id, 1)
	ex.Send(SubmitOrder(order, 100))

	require.Equal(t, model.OrderFilledStatus, order.Status)
	state := ex.AccountStateSnapshot()
	balance, ok := state.BalanceFor("USDT")
	require.True(t, ok)
	// 1 @ 100.50 taker at 5.5 bps.
	expected := decimal.NewFromInt(1000).Sub(decimal.RequireFromString("0.0552750"))
	assert.True(t, balance.Total.Equal(expected), balance.Total.String())
}
