package edgex

import (
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/market"
	"stark-arb-bot/internal/venue"
)

func newCapturingFeed(t *testing.T) (*Feed, *[]market.Quote) {
	t.Helper()
	var quotes []market.Quote
	feed := NewFeed("wss://example", "10000001", time.Second, time.Second,
		func(q market.Quote) { quotes = append(quotes, q) }, zap.NewNop())
	return feed, &quotes
}

func TestHandleMessageTicker(t *testing.T) {
	feed, quotes := newCapturingFeed(t)
	raw := `{
		"channel": "ticker.10000001",
		"content": {"data": [
			{"bestBid": "64990.5", "bestAsk": "65010.5", "time": "1717000000000"}
		]}
	}`
	feed.handleMessage(json.RawMessage(raw))
	if len(*quotes) != 1 {
		t.Fatalf("expected one quote, got %d", len(*quotes))
	}
	q := (*quotes)[0]
	if q.Venue != venue.Edgex {
		t.Fatalf("venue: %s", q.Venue)
	}
	if q.Bid != 64990.5 || q.Ask != 65010.5 {
		t.Fatalf("prices: bid=%v ask=%v", q.Bid, q.Ask)
	}
	if q.Time.UnixMilli() != 1717000000000 {
		t.Fatalf("time: %v", q.Time)
	}
}

func TestHandleMessageUsesLatestTick(t *testing.T) {
	feed, quotes := newCapturingFeed(t)
	raw := `{
		"channel": "ticker.10000001",
		"content": {"data": [
			{"bestBid": "1", "bestAsk": "2", "time": "1"},
			{"bestBid": "64990", "bestAsk": "65010", "time": "1717000000001"}
		]}
	}`
	feed.handleMessage(json.RawMessage(raw))
	if len(*quotes) != 1 || (*quotes)[0].Bid != 64990 {
		t.Fatalf("expected latest tick, got %+v", *quotes)
	}
}

func TestHandleMessageIgnoresNoise(t *testing.T) {
	feed, quotes := newCapturingFeed(t)
	for _, raw := range []string{
		`{"type":"pong"}`,
		`{"channel":"depth.10000001","content":{"data":[{"bestBid":"1","bestAsk":"2","time":"1"}]}}`,
		`{"channel":"ticker.10000001","content":{"data":[]}}`,
		`{"channel":"ticker.10000001","content":{"data":[{"bestBid":"bad","bestAsk":"65010","time":"1"}]}}`,
		`{"channel":"ticker.10000001","content":{"data":[{"bestBid":"0","bestAsk":"65010","time":"1"}]}}`,
		`not json`,
	} {
		feed.handleMessage(json.RawMessage(raw))
	}
	if len(*quotes) != 0 {
		t.Fatalf("noise produced quotes: %+v", *quotes)
	}
}

func TestEncodeQuery(t *testing.T) {
	got := encodeQuery(map[string]string{"b": "2", "a": "1", "c": "3"})
	if got != "a=1&b=2&c=3" {
		t.Fatalf("encode: %q", got)
	}
	if encodeQuery(nil) != "" {
		t.Fatal("nil params must encode empty")
	}
}
