// Package paradex implements the Paradex venue: a REST client whose
// private requests carry the StarkNet typed-data signature headers, and a
// websocket best bid/offer feed.
package paradex

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

const submitPollInterval = 500 * time.Millisecond

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

type orderResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Size          string `json:"size"`
	RemainingSize string `json:"remaining_size"`
	AvgFillPrice  string `json:"average_fill_price"`
}

func (c *Client) SubmitOrder(ctx context.Context, order venue.Order) (venue.FillResult, error) {
	side := "SELL"
	if order.IsBuy {
		side = "BUY"
	}
	payload := map[string]any{
		"market":      c.market,
		"side":        side,
		"type":        "LIMIT",
		"instruction": "IOC",
		"size":        strconv.FormatFloat(order.Size, 'f', -1, 64),
		"price":       strconv.FormatFloat(order.LimitPrice, 'f', -1, 64),
		"client_id":   order.ClientOrderID,
		"reduce_only": order.ReduceOnly,
	}
	var created orderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", payload, &created); err != nil {
		return venue.FillResult{}, err
	}
	if created.ID == "" {
		return venue.FillResult{}, errors.New("paradex: missing order id in create response")
	}
	return c.awaitFill(ctx, created.ID)
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
				return venue.FillResult{}, fmt.Errorf("%w: paradex order %s closed unfilled", venue.ErrRejected, orderID)
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
	var data orderResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderID, nil, &data); err != nil {
		return venue.OrderStatus{}, err
	}
	size, _ := strconv.ParseFloat(data.Size, 64)
	remaining, _ := strconv.ParseFloat(data.RemainingSize, 64)
	avg, _ := strconv.ParseFloat(data.AvgFillPrice, 64)
	filled := size - remaining
	if filled < 0 {
		filled = 0
	}
	open := data.Status == "NEW" || data.Status == "OPEN"
	return venue.OrderStatus{
		OrderID:    orderID,
		FilledSize: filled,
		AvgPrice:   avg,
		Open:       open,
	}, nil
}

func (c *Client) Position(ctx context.Context) (venue.PositionReport, error) {
	var data struct {
		Results []struct {
			Market     string `json:"market"`
			Side       string `json:"side"`
			Size       string `json:"size"`
			EntryPrice string `json:"average_entry_price"`
		} `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &data); err != nil {
		return venue.PositionReport{}, err
	}
	for _, p := range data.Results {
		if p.Market != c.market {
			continue
		}
		size, _ := strconv.ParseFloat(p.Size, 64)
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		if p.Side == "SHORT" {
			size = -size
		}
		return venue.PositionReport{Venue: venue.Paradex, Market: c.market, Size: size, EntryPrice: entry}, nil
	}
	return venue.PositionReport{Venue: venue.Paradex, Market: c.market}, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var bodyBytes []byte
	if payload != nil {
		var err error
		bodyBytes, err = json.Marshal(payload)
		if err != nil {
			return err
		}
	}
	signed, err := c.signer.SignRequest(sign.Request{
		Method:    method,
		Path:      path,
		Body:      string(bodyBytes),
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("paradex: sign request: %w", err)
	}
	var body io.Reader
	if len(bodyBytes) > 0 {
		body = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
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
	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: paradex http %d: %s", venue.ErrRejected, resp.StatusCode, string(raw))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("paradex: http %d: %s", resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
