// Package edgex implements the edgeX venue: a REST client that signs
// every private request with the StarkEx scheme, and a websocket best
// bid/ask feed.
package edgex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"stark-arb-bot/internal/sign"
	"stark-arb-bot/internal/venue"
)

const (
	createOrderPath = "/api/v1/private/order/createOrder"
	orderStatusPath = "/api/v1/private/order/getOrderById"
	positionsPath   = "/api/v1/private/account/getPositionList"

	submitPollInterval = 500 * time.Millisecond
)

type Client struct {
	baseURL string
	market  string
	signer  sign.RequestSigner
	http    *http.Client
	log     *zap.Logger
}

func NewClient(baseURL, market string, signer sign.RequestSigner, timeout time.Duration, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		market:  market,
		signer:  signer,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// SubmitOrder places an IOC order and polls its status until the venue
// reports a terminal outcome or the context expires.
func (c *Client) SubmitOrder(ctx context.Context, order venue.Order) (venue.FillResult, error) {
	side := "SELL"
	if order.IsBuy {
		side = "BUY"
	}
	params := map[string]string{
		"contractId":    c.market,
		"side":          side,
		"size":          strconv.FormatFloat(order.Size, 'f', -1, 64),
		"price":         strconv.FormatFloat(order.LimitPrice, 'f', -1, 64),
		"type":          "LIMIT",
		"timeInForce":   "IMMEDIATE_OR_CANCEL",
		"reduceOnly":    strconv.FormatBool(order.ReduceOnly),
		"clientOrderId": order.ClientOrderID,
	}
	var created struct {
		OrderID string `json:"orderId"`
	}
	if err := c.do(ctx, http.MethodPost, createOrderPath, params, &created); err != nil {
		return venue.FillResult{}, err
	}
	if created.OrderID == "" {
		return venue.FillResult{}, errors.New("edgex: missing order id in create response")
	}
	return c.awaitFill(ctx, created.OrderID)
}

func (c *Client) awaitFill(ctx context.Context, orderID string) (venue.FillResult, error) {
	ticker := time.NewTicker(submitPollInterval)
	defer ticker.Stop()
	for {
		status, err := c.OrderStatus(ctx, orderID)
		if err != nil {
			if ctx.Err() != nil {
				return venue.FillResult{}, &venue.OrderTimeoutError{OrderID: orderID, Err: ctx.Err()}
			}
			return venue.FillResult{}, err
		}
		if !status.Open {
			if status.FilledSize <= 0 {
				return venue.FillResult{}, fmt.Errorf("%w: edgex order %s cancelled unfilled", venue.ErrRejected, orderID)
			}
			return venue.FillResult{
				OrderID: orderID,
				Size:    status.FilledSize,
				Price:   status.AvgPrice,
				Time:    time.Now().UTC(),
			}, nil
		}
		select {
		case <-ctx.Done():
			return venue.FillResult{}, &venue.OrderTimeoutError{OrderID: orderID, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

func (c *Client) OrderStatus(ctx context.Context, orderID string) (venue.OrderStatus, error) {
	params := map[string]string{"orderId": orderID}
	var data struct {
		Status       string `json:"status"`
		CumFillSize  string `json:"cumFillSize"`
		AvgFillPrice string `json:"avgFillPrice"`
	}
	if err := c.do(ctx, http.MethodGet, orderStatusPath, params, &data); err != nil {
		return venue.OrderStatus{}, err
	}
	filled, _ := strconv.ParseFloat(data.CumFillSize, 64)
	avg, _ := strconv.ParseFloat(data.AvgFillPrice, 64)
	open := data.Status == "OPEN" || data.Status == "PENDING"
	return venue.OrderStatus{
		OrderID:    orderID,
		FilledSize: filled,
		AvgPrice:   avg,
		Open:       open,
	}, nil
}

// Position returns the venue's reported exposure for the configured
// market; size is signed, positive long.
func (c *Client) Position(ctx context.Context) (venue.PositionReport, error) {
	var data struct {
		Positions []struct {
			ContractID string `json:"contractId"`
			Size       string `json:"openSize"`
			EntryPrice string `json:"avgEntryPrice"`
		} `json:"positionList"`
	}
	if err := c.do(ctx, http.MethodGet, positionsPath, nil, &data); err != nil {
		return venue.PositionReport{}, err
	}
	for _, p := range data.Positions {
		if p.ContractID != c.market {
			continue
		}
		size, _ := strconv.ParseFloat(p.Size, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		return venue.PositionReport{Venue: venue.Edgex, Market: c.market, Size: size, EntryPrice: entry}, nil
	}
	return venue.PositionReport{Venue: venue.Edgex, Market: c.market}, nil
}

func (c *Client) do(ctx context.Context, method, path string, params map[string]string, out any) error {
	signed, err := c.signer.SignRequest(sign.Request{
		Method:    method,
		Path:      path,
		Params:    params,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("edgex: sign request: %w", err)
	}
	url := c.baseURL + path
	var body io.Reader
	if method == http.MethodPost {
		payload, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	} else if len(params) > 0 {
		url += "?" + encodeQuery(params)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("edgex: http %d: %s", resp.StatusCode, string(raw))
	}
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return err
	}
	if env.Code != "SUCCESS" {
		return fmt.Errorf("%w: edgex code %s: %s", venue.ErrRejected, env.Code, env.Msg)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
