package bybit

import (
	"fmt"
	"strings"

	"quantflow/internal/model"
)

// Topic builders for the public v5 stream.

func OrderbookTopic(depth int, symbol string) string {
	return fmt.Sprintf("orderbook.%d.%s", depth, symbol)
}

func TradeTopic(symbol string) string {
	return fmt.Sprintf("publicTrade.%s", symbol)
}

func TickerTopic(symbol string) string {
	return fmt.Sprintf("tickers.%s", symbol)
}

func KlineTopic(interval, symbol string) string {
	return fmt.Sprintf("kline.%s.%s", interval, symbol)
}

// IsIndexSymbol reports whether a symbol names a synthetic index feed. Index
// symbols carry a leading dot and are only served on the ticker channel.
func IsIndexSymbol(symbol string) bool {
	return strings.HasPrefix(symbol, ".")
}

// KlineInterval maps a time bar specification onto the venue's kline
// interval codes (minutes up to 720, then D, W, M).
func KlineInterval(spec model.BarSpecification) (string, error) {
	switch spec.Aggregation {
	case model.Minute:
		switch spec.Step {
		case 1, 3, 5, 15, 30, 60, 120, 240, 360, 720:
			return fmt.Sprintf("%d", spec.Step), nil
		}
	case model.Hour:
		switch spec.Step {
		case 1, 2, 4, 6, 12:
			return fmt.Sprintf("%d", spec.Step*60), nil
		}
	case model.Day:
		if spec.Step == 1 {
			return "D", nil
		}
	case model.Week:
		if spec.Step == 1 {
			return "W", nil
		}
	case model.Month:
		if spec.Step == 1 {
			return "M", nil
		}
	}
	return "", fmt.Errorf("no kline interval for bar specification %s", spec)
}
