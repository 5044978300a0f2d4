package edgex

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/market"
	"stark-arb-bot/internal/venue"
	"stark-arb-bot/internal/venue/ws"
)

// Feed streams the market's best bid/ask over the public websocket and
// pushes quotes upstream.
type Feed struct {
	ws      *ws.Client
	market  string
	log     *zap.Logger
	publish func(market.Quote)
}

func NewFeed(url, mkt string, reconnectDelay, pingInterval time.Duration, publish func(market.Quote), log *zap.Logger) *Feed {
	ping := map[string]any{"type": "ping"}
	// Pong replies count as read activity, so a few missed ping rounds
	// means the socket is dead and worth redialing.
	var idle time.Duration
	if pingInterval > 0 {
		idle = 4 * pingInterval
	}
	return &Feed{
		ws:      ws.New(url, reconnectDelay, pingInterval, idle, ping, log),
		market:  mkt,
		log:     log,
		publish: publish,
	}
}

func (f *Feed) Start(ctx context.Context) error {
	if err := f.ws.Connect(ctx); err != nil {
		return err
	}
	sub := map[string]any{"type": "subscribe", "channel": "ticker." + f.market}
	if err := f.ws.Subscribe(ctx, sub); err != nil {
		return err
	}
	return f.ws.Run(ctx, f.handleMessage)
}

type tickerMessage struct {
	Channel string `json:"channel"`
	Content struct {
		Data []struct {
			BestBid string `json:"bestBid"`
			BestAsk string `json:"bestAsk"`
			Time    string `json:"time"`
		} `json:"data"`
	} `json:"content"`
}

func (f *Feed) handleMessage(raw json.RawMessage) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if !strings.HasPrefix(msg.Channel, "ticker.") || len(msg.Content.Data) == 0 {
		return
	}
	tick := msg.Content.Data[len(msg.Content.Data)-1]
	bid, err1 := strconv.ParseFloat(tick.BestBid, 64)
	ask, err2 := strconv.ParseFloat(tick.BestAsk, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return
	}
	ms, err := strconv.ParseInt(tick.Time, 10, 64)
	if err != nil {
		ms = time.Now().UnixMilli()
	}
	f.publish(market.Quote{
		Venue: venue.Edgex,
		Bid:   bid,
		Ask:   ask,
		Time:  time.UnixMilli(ms),
	})
}

// encodeQuery renders params exactly as they were signed: keys ascending,
// k=v joined by '&'.
func encodeQuery(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	return strings.Join(pairs, "&")
}
