package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/spotbot/internal/domain"
	"github.com/shopspring/decimal"
)

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// BookTicker is the best bid/ask as returned by GET /api/v3/ticker/bookTicker.
type BookTicker struct {
	Symbol   string          `json:"symbol"`
	BidPrice decimal.Decimal `json:"bidPrice"`
	BidQty   decimal.Decimal `json:"bidQty"`
	AskPrice decimal.Decimal `json:"askPrice"`
	AskQty   decimal.Decimal `json:"askQty"`
}

// ToTick converts the quote into a numbered tick.
func (b BookTicker) ToTick(number int64, at time.Time) domain.Tick {
	return domain.Tick{
		Number: number,
		Time:   at,
		Bid:    b.BidPrice,
		Ask:    b.AskPrice,
		BidQty: b.BidQty,
		AskQty: b.AskQty,
	}
}

// OrderRequest is a new-order request. Only LIMIT orders are placed.
type OrderRequest struct {
	Symbol        string
	Side          domain.Side
	TimeInForce   string // "FOK", "IOC" or "GTC"
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	ClientOrderID string
}

// OrderResponse is the FULL/RESULT response of POST /api/v3/order.
type OrderResponse struct {
	Symbol              string          `json:"symbol"`
	OrderID             int64           `json:"orderId"`
	ClientOrderID       string          `json:"clientOrderId"`
	TransactTime        int64           `json:"transactTime"`
	Price               decimal.Decimal `json:"price"`
	OrigQty             decimal.Decimal `json:"origQty"`
	ExecutedQty         decimal.Decimal `json:"executedQty"`
	CummulativeQuoteQty decimal.Decimal `json:"cummulativeQuoteQty"`
	Status              string          `json:"status"`
	TimeInForce         string          `json:"timeInForce"`
	Type                string          `json:"type"`
	Side                string          `json:"side"`
}

// Filled reports whether the order executed completely.
func (o OrderResponse) Filled() bool { return o.Status == "FILLED" }

// AvgPrice is the volume-weighted execution price. An order with no
// executed quantity reports its quote total unchanged.
func (o OrderResponse) AvgPrice() decimal.Decimal {
	if o.ExecutedQty.IsZero() {
		return o.CummulativeQuoteQty
	}
	return o.CummulativeQuoteQty.Div(o.ExecutedQty)
}

// ToFill converts the response into a domain fill.
func (o OrderResponse) ToFill() domain.FillResult {
	return domain.FillResult{
		Filled:   o.Filled(),
		Quantity: o.ExecutedQty,
		Price:    o.AvgPrice(),
	}
}

// Kline is one candle from GET /api/v3/klines.
type Kline struct {
	OpenTime  time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime time.Time
}

// UnmarshalJSON decodes the positional array form the API uses.
func (k *Kline) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 7 {
		return fmt.Errorf("kline: expected at least 7 fields, got %d", len(raw))
	}
	var openMs, closeMs int64
	if err := json.Unmarshal(raw[0], &openMs); err != nil {
		return fmt.Errorf("kline open time: %w", err)
	}
	if err := json.Unmarshal(raw[6], &closeMs); err != nil {
		return fmt.Errorf("kline close time: %w", err)
	}
	fields := []*decimal.Decimal{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
	for i, f := range fields {
		if err := f.UnmarshalJSON(raw[i+1]); err != nil {
			return fmt.Errorf("kline field %d: %w", i+1, err)
		}
	}
	k.OpenTime = time.UnixMilli(openMs).UTC()
	k.CloseTime = time.UnixMilli(closeMs).UTC()
	return nil
}

// APIError is the error body the API returns on 4xx responses.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: code %d: %s", e.Code, e.Msg)
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// BookTickerEvent is a <symbol>@bookTicker stream payload.
type BookTickerEvent struct {
	UpdateID int64           `json:"u"`
	Symbol   string          `json:"s"`
	BidPrice decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	AskPrice decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

// ToBookTicker drops the stream-only fields.
func (e BookTickerEvent) ToBookTicker() BookTicker {
	return BookTicker{
		Symbol:   e.Symbol,
		BidPrice: e.BidPrice,
		BidQty:   e.BidQty,
		AskPrice: e.AskPrice,
		AskQty:   e.AskQty,
	}
}
