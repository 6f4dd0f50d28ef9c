package bybit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSubscriptionAck(t *testing.T) {
	raw := []byte(`{"success":true,"ret_msg":"","conn_id":"abc","req_id":"r1","op":"subscribe"}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	resp, ok := msg.(SubscriptionResponse)
	require.True(t, ok)
	assert.True(t, resp.Success)
	assert.Equal(t, "subscribe", resp.Op)
	assert.Equal(t, "r1", resp.ReqId)
}

func TestDecodeSubscriptionNack(t *testing.T) {
	raw := []byte(`{"success":false,"ret_msg":"error:handler not found","op":"subscribe"}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	resp, ok := msg.(SubscriptionResponse)
	require.True(t, ok)
	assert.False(t, resp.Success)
}

func TestDecodeAuthResponse(t *testing.T) {
	raw := []byte(`{"success":true,"ret_msg":"","op":"auth","conn_id":"xyz"}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	auth, ok := msg.(AuthResponse)
	require.True(t, ok)
	assert.True(t, auth.Success)
	assert.Equal(t, "xyz", auth.ConnId)
}

func TestDecodePong(t *testing.T) {
	for _, raw := range []string{
		`{"op":"pong","req_id":"p1"}`,
		`{"success":true,"ret_msg":"pong","op":"ping"}`,
	} {
		msg, err := Decode([]byte(raw))
		require.NoError(t, err)
		_, ok := msg.(PongMessage)
		assert.True(t, ok, raw)
	}
}

func TestDecodeServerPing(t *testing.T) {
	raw := []byte(`{"op":"ping","req_id":"s1","args":["1690000000000"]}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	ping, ok := msg.(PingMessage)
	require.True(t, ok)
	assert.Equal(t, "s1", ping.ReqId)
	assert.Equal(t, []string{"1690000000000"}, ping.Args)
}

func TestDecodeOrderbookSnapshot(t *testing.T) {
	raw := []byte(`{"topic":"orderbook.50.BTCUSDT","type":"snapshot","ts":1672304484978,
		"data":{"s":"BTCUSDT","b":[["16493.50","0.006"]],"a":[["16611.00","0.029"]],"u":18521288,"seq":7961638724}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	ob, ok := msg.(OrderbookMessage)
	require.True(t, ok)
	assert.True(t, ob.Snapshot)
	assert.Equal(t, "BTCUSDT", ob.Symbol)
	assert.EqualValues(t, 18521288, ob.Data.UpdateId)
	require.Len(t, ob.Data.Bids, 1)
	assert.Equal(t, "16493.50", ob.Data.Bids[0][0])
}

func TestDecodeTrades(t *testing.T) {
	raw := []byte(`{"topic":"publicTrade.BTCUSDT","type":"snapshot","ts":1672304486868,
		"data":[{"T":1672304486865,"s":"BTCUSDT","S":"Buy","v":"0.001","p":"16578.50","i":"20f43950-d8dd-5b31-9112-a178eb6023af","BT":false}]}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	tm, ok := msg.(TradeMessage)
	require.True(t, ok)
	require.Len(t, tm.Trades, 1)
	assert.Equal(t, "Buy", tm.Trades[0].Side)
	assert.Equal(t, "16578.50", tm.Trades[0].Price)
}

func TestDecodeTickerQuoteVsTicker(t *testing.T) {
	quote := []byte(`{"topic":"tickers.BTCUSDT","type":"delta","ts":1673272861686,
		"data":{"symbol":"BTCUSDT","bid1Price":"16593.00","bid1Size":"1","ask1Price":"16593.50","ask1Size":"2"}}`)
	msg, err := Decode(quote)
	require.NoError(t, err)
	_, ok := msg.(QuoteMessage)
	assert.True(t, ok)

	ticker := []byte(`{"topic":"tickers.BTCUSDT","type":"delta","ts":1673272861686,
		"data":{"symbol":"BTCUSDT","markPrice":"16596.00","indexPrice":"16598.54","fundingRate":"-0.000004"}}`)
	msg, err = Decode(ticker)
	require.NoError(t, err)
	_, ok = msg.(TickerMessage)
	assert.True(t, ok)
}

func TestDecodeKline(t *testing.T) {
	raw := []byte(`{"topic":"kline.5.BTCUSDT","ts":1672324988882,
		"data":[{"start":1672324800000,"end":1672325099999,"interval":"5","open":"16649.5","close":"16677","high":"16677","low":"16608","volume":"2.081","confirm":false}]}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	km, ok := msg.(KlineMessage)
	require.True(t, ok)
	require.Len(t, km.Bars, 1)
	assert.False(t, km.Bars[0].Confirm)
	assert.Equal(t, "5", km.Bars[0].Interval)
}

func TestDecodeUnknownFrameIsRaw(t *testing.T) {
	raw := []byte(`{"topic":"mystery.BTCUSDT","ts":1,"data":{}}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	rm, ok := msg.(RawMessage)
	require.True(t, ok)
	assert.Equal(t, raw, rm.Data)
}

func TestDecodeErrorFrame(t *testing.T) {
	raw := []byte(`{"success":false,"ret_msg":"unknown op","retCode":10001}`)
	msg, err := Decode(raw)
	require.NoError(t, err)
	em, ok := msg.(ErrorMessage)
	require.True(t, ok)
	assert.Equal(t, 10001, em.Code)
}
