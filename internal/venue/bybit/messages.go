package bybit

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message is the sealed set of frames the venue can deliver. Decode never
// invents variants: frames that fit no known shape come back as RawMessage.
type Message interface {
	isMessage()
}

// WelcomeMessage is the first frame on a fresh connection.
type WelcomeMessage struct {
	ConnId string
}

// SubscriptionResponse acknowledges (or rejects) a subscribe/unsubscribe.
type SubscriptionResponse struct {
	Op      string
	ReqId   string
	ConnId  string
	Success bool
	RetMsg  string
}

// AuthResponse acknowledges (or rejects) an auth frame.
type AuthResponse struct {
	Success bool
	RetMsg  string
	ConnId  string
}

// ErrorMessage is a server-side error frame.
type ErrorMessage struct {
	Code   int
	RetMsg string
}

// PongMessage answers our heartbeat with the server payload echoed back.
type PongMessage struct {
	ReqId  string
	RetMsg string
}

// PingMessage is a server-initiated heartbeat; the client must reply with a
// pong carrying the same payload.
type PingMessage struct {
	ReqId string
	Args  []string
}

// OrderbookMessage carries an orderbook snapshot or delta.
type OrderbookMessage struct {
	Topic    string
	Symbol   string
	Snapshot bool
	Ts       int64
	Data     OrderbookData
}

type OrderbookData struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateId int64      `json:"u"`
	Sequence int64      `json:"seq"`
}

// TradeMessage carries public trade prints.
type TradeMessage struct {
	Topic  string
	Symbol string
	Ts     int64
	Trades []TradeData
}

type TradeData struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Size      string `json:"v"`
	Price     string `json:"p"`
	TradeId   string `json:"i"`
	BlockTrade bool  `json:"BT"`
}

// QuoteMessage carries top-of-book updates from the ticker stream.
type QuoteMessage struct {
	Topic  string
	Symbol string
	Ts     int64
	Data   TickerData
}

// TickerMessage carries the non-quote ticker fields (mark/index/funding).
type TickerMessage struct {
	Topic  string
	Symbol string
	Ts     int64
	Data   TickerData
}

type TickerData struct {
	Symbol        string `json:"symbol"`
	Bid1Price     string `json:"bid1Price"`
	Bid1Size      string `json:"bid1Size"`
	Ask1Price     string `json:"ask1Price"`
	Ask1Size      string `json:"ask1Size"`
	LastPrice     string `json:"lastPrice"`
	MarkPrice     string `json:"markPrice"`
	IndexPrice    string `json:"indexPrice"`
	FundingRate   string `json:"fundingRate"`
	NextFundingTs string `json:"nextFundingTime"`
}

// KlineMessage carries bar updates.
type KlineMessage struct {
	Topic  string
	Symbol string
	Ts     int64
	Bars   []KlineData
}

type KlineData struct {
	Start    int64  `json:"start"`
	End      int64  `json:"end"`
	Interval string `json:"interval"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Confirm  bool   `json:"confirm"`
}

// AccountOrderMessage carries private order updates.
type AccountOrderMessage struct {
	Ts     int64
	Orders []json.RawMessage
}

// AccountExecutionMessage carries private fills.
type AccountExecutionMessage struct {
	Ts         int64
	Executions []json.RawMessage
}

// AccountPositionMessage carries private position updates.
type AccountPositionMessage struct {
	Ts        int64
	Positions []json.RawMessage
}

// AccountWalletMessage carries private wallet updates.
type AccountWalletMessage struct {
	Ts      int64
	Wallets []json.RawMessage
}

// InstrumentMessage carries instrument definition updates.
type InstrumentMessage struct {
	Topic  string
	Symbol string
	Ts     int64
	Data   json.RawMessage
}

// FundingMessage carries funding rate publications.
type FundingMessage struct {
	Symbol        string
	FundingRate   string
	NextFundingTs string
	Ts            int64
}

// RawMessage wraps frames that fit no known shape.
type RawMessage struct {
	Data []byte
}

func (WelcomeMessage) isMessage()          {}
func (SubscriptionResponse) isMessage()    {}
func (AuthResponse) isMessage()            {}
func (ErrorMessage) isMessage()            {}
func (PongMessage) isMessage()             {}
func (PingMessage) isMessage()             {}
func (OrderbookMessage) isMessage()        {}
func (TradeMessage) isMessage()            {}
func (QuoteMessage) isMessage()            {}
func (TickerMessage) isMessage()           {}
func (KlineMessage) isMessage()            {}
func (AccountOrderMessage) isMessage()     {}
func (AccountExecutionMessage) isMessage() {}
func (AccountPositionMessage) isMessage()  {}
func (AccountWalletMessage) isMessage()    {}
func (InstrumentMessage) isMessage()       {}
func (FundingMessage) isMessage()          {}
func (RawMessage) isMessage()              {}

type envelope struct {
	Op      string          `json:"op"`
	ReqId   string          `json:"req_id"`
	ConnId  string          `json:"conn_id"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Args    []string        `json:"args"`
	RetCode int             `json:"retCode"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Ts      int64           `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// Decode classifies one inbound frame into the sealed variant set.
func Decode(raw []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Op {
	case "pong":
		return PongMessage{ReqId: env.ReqId, RetMsg: env.RetMsg}, nil
	case "ping":
		// Acks of our own pings come back with op "ping" and a pong marker;
		// a bare ping is server-initiated and must be echoed.
		if env.Success != nil || env.RetMsg == "pong" {
			return PongMessage{ReqId: env.ReqId, RetMsg: env.RetMsg}, nil
		}
		return PingMessage{ReqId: env.ReqId, Args: env.Args}, nil
	case "auth":
		return AuthResponse{Success: env.Success != nil && *env.Success, RetMsg: env.RetMsg, ConnId: env.ConnId}, nil
	case "subscribe", "unsubscribe":
		return SubscriptionResponse{
			Op:      env.Op,
			ReqId:   env.ReqId,
			ConnId:  env.ConnId,
			Success: env.Success != nil && *env.Success,
			RetMsg:  env.RetMsg,
		}, nil
	}
	if env.RetMsg == "pong" {
		return PongMessage{ReqId: env.ReqId, RetMsg: env.RetMsg}, nil
	}
	if env.Success != nil && !*env.Success {
		return ErrorMessage{Code: env.RetCode, RetMsg: env.RetMsg}, nil
	}
	if env.Topic == "" {
		if env.ConnId != "" {
			return WelcomeMessage{ConnId: env.ConnId}, nil
		}
		return RawMessage{Data: raw}, nil
	}

	switch topicPrefix(env.Topic) {
	case "orderbook":
		var data OrderbookData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode orderbook data: %w", err)
		}
		return OrderbookMessage{
			Topic:    env.Topic,
			Symbol:   topicSymbol(env.Topic),
			Snapshot: env.Type == "snapshot",
			Ts:       env.Ts,
			Data:     data,
		}, nil
	case "publicTrade":
		var trades []TradeData
		if err := json.Unmarshal(env.Data, &trades); err != nil {
			return nil, fmt.Errorf("decode trade data: %w", err)
		}
		return TradeMessage{Topic: env.Topic, Symbol: topicSymbol(env.Topic), Ts: env.Ts, Trades: trades}, nil
	case "tickers":
		var data TickerData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode ticker data: %w", err)
		}
		if data.Bid1Price != "" || data.Ask1Price != "" {
			return QuoteMessage{Topic: env.Topic, Symbol: topicSymbol(env.Topic), Ts: env.Ts, Data: data}, nil
		}
		return TickerMessage{Topic: env.Topic, Symbol: topicSymbol(env.Topic), Ts: env.Ts, Data: data}, nil
	case "kline":
		var bars []KlineData
		if err := json.Unmarshal(env.Data, &bars); err != nil {
			return nil, fmt.Errorf("decode kline data: %w", err)
		}
		return KlineMessage{Topic: env.Topic, Symbol: topicSymbol(env.Topic), Ts: env.Ts, Bars: bars}, nil
	case "order":
		var orders []json.RawMessage
		if err := json.Unmarshal(env.Data, &orders); err != nil {
			return nil, fmt.Errorf("decode order data: %w", err)
		}
		return AccountOrderMessage{Ts: env.Ts, Orders: orders}, nil
	case "execution":
		var executions []json.RawMessage
		if err := json.Unmarshal(env.Data, &executions); err != nil {
			return nil, fmt.Errorf("decode execution data: %w", err)
		}
		return AccountExecutionMessage{Ts: env.Ts, Executions: executions}, nil
	case "position":
		var positions []json.RawMessage
		if err := json.Unmarshal(env.Data, &positions); err != nil {
			return nil, fmt.Errorf("decode position data: %w", err)
		}
		return AccountPositionMessage{Ts: env.Ts, Positions: positions}, nil
	case "wallet":
		var wallets []json.RawMessage
		if err := json.Unmarshal(env.Data, &wallets); err != nil {
			return nil, fmt.Errorf("decode wallet data: %w", err)
		}
		return AccountWalletMessage{Ts: env.Ts, Wallets: wallets}, nil
	case "instrument_info":
		return InstrumentMessage{Topic: env.Topic, Symbol: topicSymbol(env.Topic), Ts: env.Ts, Data: env.Data}, nil
	}
	return RawMessage{Data: raw}, nil
}

func topicPrefix(topic string) string {
	if i := strings.IndexByte(topic, '.'); i >= 0 {
		return topic[:i]
	}
	return topic
}

// topicSymbol returns the last dot-separated segment of a topic, which is
// the symbol on every public channel.
func topicSymbol(topic string) string {
	if i := strings.LastIndexByte(topic, '.'); i >= 0 {
		return topic[i+1:]
	}
	return ""
}
