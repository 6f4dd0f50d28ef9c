package catalog

import (
	"quantflow/internal/model"
)

// Row types mirror the on-disk parquet schemas. Every row carries ts_init,
// which drives file naming and interval bookkeeping.

type BarRow struct {
	BarType string  `parquet:"name=bar_type, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Open    float64 `parquet:"name=open, type=DOUBLE"`
	High    float64 `parquet:"name=high, type=DOUBLE"`
	Low     float64 `parquet:"name=low, type=DOUBLE"`
	Close   float64 `parquet:"name=close, type=DOUBLE"`
	Volume  float64 `parquet:"name=volume, type=DOUBLE"`
	TsEvent int64   `parquet:"name=ts_event, type=INT64"`
	TsInit  int64   `parquet:"name=ts_init, type=INT64"`
}

func (r BarRow) tsInit() uint64 { return uint64(r.TsInit) }

type QuoteRow struct {
	InstrumentId string  `parquet:"name=instrument_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	BidPrice     float64 `parquet:"name=bid_price, type=DOUBLE"`
	AskPrice     float64 `parquet:"name=ask_price, type=DOUBLE"`
	BidSize      float64 `parquet:"name=bid_size, type=DOUBLE"`
	AskSize      float64 `parquet:"name=ask_size, type=DOUBLE"`
	TsEvent      int64   `parquet:"name=ts_event, type=INT64"`
	TsInit       int64   `parquet:"name=ts_init, type=INT64"`
}

func (r QuoteRow) tsInit() uint64 { return uint64(r.TsInit) }

type TradeRow struct {
	InstrumentId string  `parquet:"name=instrument_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Price        float64 `parquet:"name=price, type=DOUBLE"`
	Size         float64 `parquet:"name=size, type=DOUBLE"`
	TradeId      string  `parquet:"name=trade_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TsEvent      int64   `parquet:"name=ts_event, type=INT64"`
	TsInit       int64   `parquet:"name=ts_init, type=INT64"`
}

func (r TradeRow) tsInit() uint64 { return uint64(r.TsInit) }

// row is satisfied by every persisted record type.
type row interface {
	tsInit() uint64
}

// BarToRow flattens a bar for persistence.
func BarToRow(bar model.Bar) BarRow {
	return BarRow{
		BarType: bar.BarType.String(),
		Open:    bar.Open.Float64(),
		High:    bar.High.Float64(),
		Low:     bar.Low.Float64(),
		Close:   bar.Close.Float64(),
		Volume:  bar.Volume.Float64(),
		TsEvent: int64(bar.TsEvent),
		TsInit:  int64(bar.TsInit),
	}
}

// RowToBar rebuilds a bar using the instrument precisions embedded in the
// prices at write time.
func RowToBar(r BarRow, pricePrecision, sizePrecision uint8) (model.Bar, error) {
	barType, err := model.ParseBarType(r.BarType)
	if err != nil {
		return model.Bar{}, err
	}
	return model.Bar{
		BarType: barType,
		Open:    model.NewPrice(r.Open, pricePrecision),
		High:    model.NewPrice(r.High, pricePrecision),
		Low:     model.NewPrice(r.Low, pricePrecision),
		Close:   model.NewPrice(r.Close, pricePrecision),
		Volume:  model.NewQuantity(r.Volume, sizePrecision),
		TsEvent: model.UnixNanos(r.TsEvent),
		TsInit:  model.UnixNanos(r.TsInit),
	}, nil
}

// QuoteToRow flattens a quote for persistence.
func QuoteToRow(q model.QuoteTick) QuoteRow {
	return QuoteRow{
		InstrumentId: q.InstrumentId.String(),
		BidPrice:     q.BidPrice.Float64(),
		AskPrice:     q.AskPrice.Float64(),
		BidSize:      q.BidSize.Float64(),
		AskSize:      q.AskSize.Float64(),
		TsEvent:      int64(q.TsEvent),
		TsInit:       int64(q.TsInit),
	}
}

// RowToQuote rebuilds a quote using the instrument precisions.
func RowToQuote(r QuoteRow, pricePrecision, sizePrecision uint8) (model.QuoteTick, error) {
	id, err := model.ParseInstrumentId(r.InstrumentId)
	if err != nil {
		return model.QuoteTick{}, err
	}
	return model.QuoteTick{
		InstrumentId: id,
		BidPrice:     model.NewPrice(r.BidPrice, pricePrecision),
		AskPrice:     model.NewPrice(r.AskPrice, pricePrecision),
		BidSize:      model.NewQuantity(r.BidSize, sizePrecision),
		AskSize:      model.NewQuantity(r.AskSize, sizePrecision),
		TsEvent:      model.UnixNanos(r.TsEvent),
		TsInit:       model.UnixNanos(r.TsInit),
	}, nil
}

// TradeToRow flattens a trade for persistence.
func TradeToRow(t model.TradeTick) TradeRow {
	return TradeRow{
		InstrumentId: t.InstrumentId.String(),
		Price:        t.Price.Float64(),
		Size:         t.Size.Float64(),
		TradeId:      t.TradeId.String(),
		TsEvent:      int64(t.TsEvent),
		TsInit:       int64(t.TsInit),
	}
}

// RowToTrade rebuilds a trade using the instrument precisions.
func RowToTrade(r TradeRow, pricePrecision, sizePrecision uint8) (model.TradeTick, error) {
	id, err := model.ParseInstrumentId(r.InstrumentId)
	if err != nil {
		return model.TradeTick{}, err
	}
	return model.TradeTick{
		InstrumentId: id,
		Price:        model.NewPrice(r.Price, pricePrecision),
		Size:         model.NewQuantity(r.Size, sizePrecision),
		TradeId:      model.TradeId(r.TradeId),
		TsEvent:      model.UnixNanos(r.TsEvent),
		TsInit:       model.UnixNanos(r.TsInit),
	}, nil
}
