package paradex

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/market"
	"stark-arb-bot/internal/venue"
	"stark-arb-bot/internal/venue/ws"
)

// Feed streams the market's best bid/offer channel over the public
// websocket and pushes quotes upstream.
type Feed struct {
	ws      *ws.Client
	market  string
	log     *zap.Logger
	publish func(market.Quote)
}

func NewFeed(url, mkt string, reconnectDelay, pingInterval time.Duration, publish func(market.Quote), log *zap.Logger) *Feed {
	ping := map[string]any{"jsonrpc": "2.0", "method": "ping"}
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
	sub := map[string]any{
		"jsonrpc": "2.0",
		"method":  "subscribe",
		"params":  map[string]string{"channel": "bbo." + f.market},
	}
	if err := f.ws.Subscribe(ctx, sub); err != nil {
		return err
	}
	return f.ws.Run(ctx, f.handleMessage)
}

type bboMessage struct {
	Params struct {
		Channel string `json:"channel"`
		Data    struct {
			Bid         string `json:"bid"`
			Ask         string `json:"ask"`
			LastUpdated int64  `json:"last_updated_at"`
		} `json:"data"`
	} `json:"params"`
}

func (f *Feed) handleMessage(raw json.RawMessage) {
	var msg bboMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if !strings.HasPrefix(msg.Params.Channel, "bbo.") {
		return
	}
	bid, err1 := strconv.ParseFloat(msg.Params.Data.Bid, 64)
	ask, err2 := strconv.ParseFloat(msg.Params.Data.Ask, 64)
	if err1 != nil || err2 != nil || bid <= 0 || ask <= 0 {
		return
	}
	ts := msg.Params.Data.LastUpdated
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	f.publish(market.Quote{
		Venue: venue.Paradex,
		Bid:   bid,
		Ask:   ask,
		Time:  time.UnixMilli(ts),
	})
}
