package simulation

import (
	"container/heap"
	"fmt"

	"github.com/shopspring/decimal"

	"quantflow/internal/bus"
	"quantflow/internal/clock"
	"quantflow/internal/matching"
	"quantflow/internal/model"
	"quantflow/logger"
)

// Config drives the simulated venue's behavior.
type Config struct {
	Venue             string
	AccountId         model.AccountId
	AccountType       model.AccountType
	StartingBalances  []model.Money
	DefaultLeverage   float64
	FrozenAccount     bool
	BarExecution      bool
	RejectStopOrders  bool
	SupportGtdOrders  bool
	SupportContingent bool
	UseReduceOnly     bool
	UseMessageQueue   bool
	Latency           *LatencyModel
}

// SimulatedExchange hosts one matching engine per instrument plus the venue
// account. Commands flow in immediately, through a FIFO queue, or through a
// latency heap, depending on configuration.
type SimulatedExchange struct {
	cfg      Config
	clk      clock.Clock
	msgBus   *bus.MessageBus
	feeModel matching.FeeModel

	engines  map[model.InstrumentId]*matching.Engine
	balances map[string]*model.AccountBalance

	inflight        inflightQueue
	inflightCounter uint64
	queue           []Command

	log *logger.Entry
}

func NewSimulatedExchange(cfg Config, clk clock.Clock, msgBus *bus.MessageBus) *SimulatedExchange {
	ex := &SimulatedExchange{
		cfg:      cfg,
		clk:      clk,
		msgBus:   msgBus,
		feeModel: matching.MakerTakerFeeModel{},
		engines:  make(map[model.InstrumentId]*matching.Engine),
		balances: make(map[string]*model.AccountBalance),
		log: logger.WithComponent("simulated_exchange").
			WithField("venue", cfg.Venue),
	}
	for _, money := range cfg.StartingBalances {
		ex.balances[money.Currency] = &model.AccountBalance{
			Currency: money.Currency,
			Total:    money.Amount,
			Free:     money.Amount,
		}
	}
	heap.Init(&ex.inflight)
	return ex
}

// AddInstrument registers a matching engine for the instrument. The venue
// must match and cash accounts cannot host derivative instruments.
func (ex *SimulatedExchange) AddInstrument(instrument model.Instrument) error {
	if instrument.Id.Venue != ex.cfg.Venue {
		return fmt.Errorf("instrument venue %s does not match exchange venue %s",
			instrument.Id.Venue, ex.cfg.Venue)
	}
	if ex.cfg.AccountType == model.CashAccount && instrument.Class.IsDerivative() {
		return fmt.Errorf("cash account exchange cannot trade %s instrument %s",
			instrument.Class, instrument.Id)
	}
	engine := matching.NewEngine(
		instrument,
		matching.Config{
			BarExecution:      ex.cfg.BarExecution,
			RejectStopOrders:  ex.cfg.RejectStopOrders,
			SupportGtdOrders:  ex.cfg.SupportGtdOrders,
			SupportContingent: ex.cfg.SupportContingent,
			UseReduceOnly:     ex.cfg.UseReduceOnly,
			AccountType:       ex.cfg.AccountType,
		},
		ex.clk,
		ex.cfg.AccountId,
		ex.feeModel,
		ex.onOrderEvent,
	)
	ex.engines[instrument.Id] = engine
	ex.log.WithField("instrument", instrument.Id.String()).Info("Added instrument")
	return nil
}

// Engine returns the matching engine for an instrument.
func (ex *SimulatedExchange) Engine(id model.InstrumentId) (*matching.Engine, bool) {
	e, ok := ex.engines[id]
	return e, ok
}

// InflightCount returns the number of latency-delayed commands pending.
func (ex *SimulatedExchange) InflightCount() int { return len(ex.inflight) }

// QueuedCount returns the number of FIFO-queued commands pending.
func (ex *SimulatedExchange) QueuedCount() int { return len(ex.queue) }

// Send routes a command. With a latency model it lands on the inflight heap
// due at ts_init plus the kind's latency; with the message queue enabled it
// joins the FIFO queue; otherwise it executes immediately.
func (ex *SimulatedExchange) Send(cmd Command) {
	switch {
	case ex.cfg.Latency != nil:
		ex.inflightCounter++
		due := cmd.TsInit + model.UnixNanos(ex.cfg.Latency.LatencyFor(cmd.Kind))
		heap.Push(&ex.inflight, inflightItem{ts: due, counter: ex.inflightCounter, cmd: cmd})
	case ex.cfg.UseMessageQueue:
		ex.queue = append(ex.queue, cmd)
	default:
		ex.execute(cmd)
	}
}

// Process executes every inflight command due by tsNow in heap order, then
// drains the FIFO queue.
func (ex *SimulatedExchange) Process(tsNow model.UnixNanos) {
	for len(ex.inflight) > 0 && ex.inflight[0].ts <= tsNow {
		item := heap.Pop(&ex.inflight).(inflightItem)
		ex.execute(item.cmd)
	}
	for len(ex.queue) > 0 {
		cmd := ex.queue[0]
		ex.queue = ex.queue[1:]
		ex.execute(cmd)
	}
}

// ProcessQuote forwards a quote into the instrument's matching engine.
func (ex *SimulatedExchange) ProcessQuote(quote model.QuoteTick) {
	if engine, ok := ex.engines[quote.InstrumentId]; ok {
		engine.ProcessQuote(quote)
	}
}

// ProcessTrade forwards a trade into the instrument's matching engine.
func (ex *SimulatedExchange) ProcessTrade(trade model.TradeTick) {
	if engine, ok := ex.engines[trade.InstrumentId]; ok {
		engine.ProcessTrade(trade)
	}
}

// ProcessBar forwards a bar into the instrument's matching engine.
func (ex *SimulatedExchange) ProcessBar(bar model.Bar) {
	if engine, ok := ex.engines[bar.BarType.InstrumentId]; ok {
		engine.ProcessBar(bar)
	}
}

// ProcessDeltas forwards a delta batch into the instrument's matching engine.
func (ex *SimulatedExchange) ProcessDeltas(deltas model.OrderBookDeltas) {
	if engine, ok := ex.engines[deltas.InstrumentId]; ok {
		engine.ProcessDeltas(deltas)
	}
}

func (ex *SimulatedExchange) execute(cmd Command) {
	engine, ok := ex.engines[cmd.InstrumentId]
	if !ok {
		ex.log.WithField("instrument", cmd.InstrumentId.String()).
			Warn("Dropping command for unknown instrument")
		return
	}
	switch cmd.Kind {
	case InsertCommand:
		engine.ProcessOrder(cmd.Order)
	case DeleteCommand:
		if err := engine.CancelOrder(cmd.ClientOrderId, cmd.Reason); err != nil {
			ex.log.WithError(err).Warn("Cancel failed")
		}
	case UpdateCommand:
		if err := engine.UpdateOrder(cmd.ClientOrderId, cmd.Quantity, cmd.Price, cmd.TriggerPrice); err != nil {
			ex.log.WithError(err).Warn("Update failed")
		}
	}
}

func (ex *SimulatedExchange) onOrderEvent(event model.OrderEvent) {
	if fill, ok := event.(model.OrderFilledEvent); ok {
		ex.applyCommission(fill.Commission)
		ex.publishAccountState()
	}
	ex.msgBus.Publish(bus.ExecEngineProcessTopic, event)
}

func (ex *SimulatedExchange) applyCommission(commission model.Money) {
	if ex.cfg.FrozenAccount || commission.Amount.IsZero() {
		return
	}
	balance, ok := ex.balances[commission.Currency]
	if !ok {
		balance = &model.AccountBalance{Currency: commission.Currency}
		ex.balances[commission.Currency] = balance
	}
	balance.Total = balance.Total.Sub(commission.Amount)
	balance.Free = balance.Free.Sub(commission.Amount)
}

// AdjustAccount credits or debits the account. Frozen accounts ignore
// adjustments. The refreshed state is published.
func (ex *SimulatedExchange) AdjustAccount(money model.Money) {
	if ex.cfg.FrozenAccount {
		ex.log.Debug("Ignoring account adjustment for frozen account")
		return
	}
	balance, ok := ex.balances[money.Currency]
	if !ok {
		balance = &model.AccountBalance{Currency: money.Currency}
		ex.balances[money.Currency] = balance
	}
	balance.Total = balance.Total.Add(money.Amount)
	balance.Free = balance.Free.Add(money.Amount)
	ex.publishAccountState()
}

// GenerateFreshAccountState builds an account snapshot from the starting
// balances with nothing locked.
func (ex *SimulatedExchange) GenerateFreshAccountState() model.AccountState {
	now := ex.clk.TimestampNs()
	balances := make([]model.AccountBalance, 0, len(ex.cfg.StartingBalances))
	for _, money := range ex.cfg.StartingBalances {
		balances = append(balances, model.AccountBalance{
			Currency: money.Currency,
			Total:    money.Amount,
			Locked:   decimal.Zero,
			Free:     money.Amount,
		})
	}
	return model.AccountState{
		AccountId:   ex.cfg.AccountId,
		AccountType: ex.cfg.AccountType,
		Balances:    balances,
		Reported:    true,
		TsEvent:     now,
		TsInit:      now,
	}
}

// AccountStateSnapshot folds the live balances into an account state event.
func (ex *SimulatedExchange) AccountStateSnapshot() model.AccountState {
	now := ex.clk.TimestampNs()
	balances := make([]model.AccountBalance, 0, len(ex.balances))
	for _, b := range ex.balances {
		balances = append(balances, *b)
	}
	return model.AccountState{
		AccountId:   ex.cfg.AccountId,
		AccountType: ex.cfg.AccountType,
		Balances:    balances,
		Reported:    false,
		TsEvent:     now,
		TsInit:      now,
	}
}

func (ex *SimulatedExchange) publishAccountState() {
	ex.msgBus.Publish(bus.ExecEngineProcessTopic, ex.AccountStateSnapshot())
}
