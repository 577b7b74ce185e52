package infrastructure

import (
	"context"

	pkgerrors "github.com/pkg/errors"

	"storefront/internal/pkg/httpclient"
	"storefront/internal/service/checkout/domain/port"
)

// PricingHTTPAdapter 通过 HTTP 调用下游定价服务，实现 PricingOracle 端口。
type PricingHTTPAdapter struct {
	client  *httpclient.Client
	baseURL string
}

func NewPricingHTTPAdapter(client *httpclient.Client, baseURL string) *PricingHTTPAdapter {
	return &PricingHTTPAdapter{client: client, baseURL: baseURL}
}

type quoteLineRequest struct {
	CartID    string `json:"cart_id"`
	LineID    string `json:"line_id"`
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type quoteLineResponse struct {
	CurrencyCode  string   `json:"currency_code"`
	UnitPrice     int64    `json:"unit_price"`
	Discount      int64    `json:"discount"`
	Tax           int64    `json:"tax"`
	ExchangeRate  string   `json:"exchange_rate"`
	DiscountCodes []string `json:"discount_codes"`
}

func (a *PricingHTTPAdapter) QuoteLine(ctx context.Context, cartID, lineID, variantID string, quantity int) (*port.LineQuote, error) {
	var resp quoteLineResponse
	err := a.client.PostJSON(ctx, a.baseURL+"/quote_line", quoteLineRequest{
		CartID:    cartID,
		LineID:    lineID,
		VariantID: variantID,
		Quantity:  quantity,
	}, &resp)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "quote line %s", lineID)
	}
	return &port.LineQuote{
		LineID:        lineID,
		VariantID:     variantID,
		Quantity:      quantity,
		CurrencyCode:  resp.CurrencyCode,
		UnitPrice:     resp.UnitPrice,
		Discount:      resp.Discount,
		Tax:           resp.Tax,
		ExchangeRate:  resp.ExchangeRate,
		DiscountCodes: resp.DiscountCodes,
	}, nil
}

type quoteCartRequest struct {
	CartID string `json:"cart_id"`
}

type quoteCartResponse struct {
	CurrencyCode  string   `json:"currency_code"`
	ShippingFee   int64    `json:"shipping_fee"`
	CartDiscount  int64    `json:"cart_discount"`
	ExchangeRate  string   `json:"exchange_rate"`
	DiscountCodes []string `json:"discount_codes"`
}

func (a *PricingHTTPAdapter) QuoteCart(ctx context.Context, cartID string) (*port.CartQuote, error) {
	var resp quoteCartResponse
	err := a.client.PostJSON(ctx, a.baseURL+"/quote_cart", quoteCartRequest{CartID: cartID}, &resp)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "quote cart %s", cartID)
	}
	return &port.CartQuote{
		CurrencyCode:  resp.CurrencyCode,
		ShippingFee:   resp.ShippingFee,
		CartDiscount:  resp.CartDiscount,
		ExchangeRate:  resp.ExchangeRate,
		DiscountCodes: resp.DiscountCodes,
	}, nil
}
