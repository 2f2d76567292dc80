package clob

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"

	"github.com/youturn45/polymarket-tools/internal/exchange"
	"github.com/youturn45/polymarket-tools/internal/model/enum"
	"github.com/youturn45/polymarket-tools/internal/portfolio"
)

const _defaultBaseURL = "https://clob.polymarket.com"

var (
	ErrRequestFailed  = errors.New("clob request failed")
	ErrMissingOrderID = errors.New("clob response missing order id")
	ErrUnknownOrder   = errors.New("clob order not found")
)

// Client talks to the Polymarket CLOB REST API. Transient-failure retry
// policy is layered on top by exchange.RetryClient; this type performs
// single attempts only.
type Client struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// Config controls the HTTP client construction.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New creates a CLOB client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = _defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: base,
		apiKey:  cfg.APIKey,
	}
}

type placeOrderRequest struct {
	TokenID string `json:"token_id"`
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Type    string `json:"order_type"`
}

type placeOrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderID"`
	ID      string `json:"id"`
	Error   string `json:"errorMsg"`
}

func (c *Client) PlaceOrder(ctx context.Context, tokenID string, side enum.Side, price float64, size int64) (exchange.PlacedOrder, error) {
	body := placeOrderRequest{
		TokenID: tokenID,
		Side:    side.String(),
		Price:   strconv.FormatFloat(price, 'f', 4, 64),
		Size:    strconv.FormatInt(size, 10),
		Type:    "GTC",
	}

	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return exchange.PlacedOrder{}, err
	}
	if resp.Error != "" {
		return exchange.PlacedOrder{}, errors.Wrap(ErrRequestFailed, resp.Error)
	}

	id := resp.OrderID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return exchange.PlacedOrder{}, ErrMissingOrderID
	}
	return exchange.PlacedOrder{ExchangeOrderID: id}, nil
}

type cancelOrderResponse struct {
	Canceled  []string          `json:"canceled"`
	NotCancel map[string]string `json:"not_canceled"`
}

func (c *Client) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	body := map[string]string{"orderID": exchangeOrderID}

	var resp cancelOrderResponse
	if err := c.do(ctx, http.MethodDelete, "/order", body, &resp); err != nil {
		return err
	}
	if reason, ok := resp.NotCancel[exchangeOrderID]; ok {
		return errors.Wrap(ErrRequestFailed, reason)
	}
	return nil
}

type orderStatusResponse struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Price       decimal.Decimal `json:"price"`
	SizeMatched decimal.Decimal `json:"size_matched"`
}

func (c *Client) GetOrderStatus(ctx context.Context, exchangeOrderID string) (exchange.OrderStatus, error) {
	var resp orderStatusResponse
	if err := c.do(ctx, http.MethodGet, "/data/order/"+url.PathEscape(exchangeOrderID), nil, &resp); err != nil {
		return exchange.OrderStatus{}, err
	}
	if resp.ID == "" {
		return exchange.OrderStatus{}, ErrUnknownOrder
	}
	return exchange.OrderStatus{
		ExchangeOrderID: resp.ID,
		FilledAmount:    toShares(resp.SizeMatched),
		Price:           toPrice(resp.Price),
		Status:          resp.Status,
	}, nil
}

type bookLevelPayload struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type orderBookResponse struct {
	Bids []bookLevelPayload `json:"bids"`
	Asks []bookLevelPayload `json:"asks"`
}

func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (exchange.OrderBook, error) {
	var resp orderBookResponse
	if err := c.do(ctx, http.MethodGet, "/book?token_id="+url.QueryEscape(tokenID), nil, &resp); err != nil {
		return exchange.OrderBook{}, err
	}

	book := exchange.OrderBook{
		Bids: make([]exchange.BookEntry, 0, len(resp.Bids)),
		Asks: make([]exchange.BookEntry, 0, len(resp.Asks)),
	}
	for _, level := range resp.Bids {
		book.Bids = append(book.Bids, exchange.BookEntry{Price: toPrice(level.Price), Size: toShares(level.Size)})
	}
	for _, level := range resp.Asks {
		book.Asks = append(book.Asks, exchange.BookEntry{Price: toPrice(level.Price), Size: toShares(level.Size)})
	}
	return book, nil
}

type openOrderPayload struct {
	ID           string          `json:"id"`
	AssetID      string          `json:"asset_id"`
	Side         string          `json:"side"`
	Price        decimal.Decimal `json:"price"`
	OriginalSize decimal.Decimal `json:"original_size"`
	SizeMatched  decimal.Decimal `json:"size_matched"`
}

func (c *Client) GetOpenOrders(ctx context.Context, tokenID string) ([]exchange.OpenOrder, error) {
	path := "/data/orders"
	if tokenID != "" {
		path += "?asset_id=" + url.QueryEscape(tokenID)
	}

	var resp []openOrderPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]exchange.OpenOrder, 0, len(resp))
	for _, o := range resp {
		out = append(out, exchange.OpenOrder{
			ExchangeOrderID: o.ID,
			TokenID:         o.AssetID,
			Side:            enum.ParseSide(o.Side),
			Price:           toPrice(o.Price),
			OriginalSize:    toShares(o.OriginalSize),
			SizeMatched:     toShares(o.SizeMatched),
		})
	}
	return out, nil
}

type positionPayload struct {
	AssetID  string          `json:"asset"`
	Size     decimal.Decimal `json:"size"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
}

// Positions returns the account's current holdings.
func (c *Client) Positions(ctx context.Context) ([]portfolio.Position, error) {
	var resp []positionPayload
	if err := c.do(ctx, http.MethodGet, "/positions", nil, &resp); err != nil {
		return nil, err
	}

	out := make([]portfolio.Position, 0, len(resp))
	for _, p := range resp {
		out = append(out, portfolio.Position{
			TokenID:  p.AssetID,
			Shares:   toShares(p.Size),
			AvgPrice: toPrice(p.AvgPrice),
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := sonic.ConfigFastest.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Wrap(ErrRequestFailed, fmt.Sprintf("%s %s: status %d", method, path, resp.StatusCode))
	}
	if out == nil {
		return nil
	}
	return sonic.ConfigFastest.NewDecoder(resp.Body).Decode(out)
}

// CLOB payloads carry prices and sizes as decimal strings.
func toPrice(d decimal.Decimal) float64 {
	v, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return v
}

func toShares(d decimal.Decimal) int64 {
	v, err := strconv.ParseFloat(d.String(), 64)
	if err != nil {
		return 0
	}
	return int64(v)
}
