package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/domain"
	"storefront/internal/service/checkout/domain/port"
)

// quoteConcurrency 单次冻结里并发请求定价服务的上限。
const quoteConcurrency = 8

// SnapshotService 在锁进入 locking_prices 时冻结整车价格。
// 所有行的快照作为一个批次写入：要么全部落盘，要么一张都不留。
type SnapshotService struct {
	repo    domain.LockRepository
	pricing port.PricingOracle
}

func NewSnapshotService(repo domain.LockRepository, pricing port.PricingOracle) *SnapshotService {
	return &SnapshotService{repo: repo, pricing: pricing}
}

// Freeze 为锁下的每一行拿报价并生成快照，外加一张购物车级汇总快照。
// 返回本次冻结后的总金额（最小货币单位）。任何一行报价失败、币种不一致
// 或金额非法都会使整个批次失败，返回 *PricingError。
func (s *SnapshotService) Freeze(ctx context.Context, lock *domain.CheckoutLock, cart *port.Cart) (int64, error) {
	frozenAt := time.Now()

	lineQuotes := make([]*port.LineQuote, len(cart.Lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteConcurrency)
	for i, line := range cart.Lines {
		i, line := i, line
		g.Go(func() error {
			quote, err := s.pricing.QuoteLine(gctx, cart.ID, line.LineID, line.VariantID, line.Quantity)
			if err != nil {
				return &domain.PricingError{LockID: lock.ID, LineID: line.LineID, Message: err.Error()}
			}
			lineQuotes[i] = quote
			return nil
		})
	}

	var cartQuote *port.CartQuote
	g.Go(func() error {
		quote, err := s.pricing.QuoteCart(gctx, cart.ID)
		if err != nil {
			return &domain.PricingError{LockID: lock.ID, Message: err.Error()}
		}
		cartQuote = quote
		return nil
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}

	snapshots := make([]*domain.PriceSnapshot, 0, len(lineQuotes)+1)
	var grandTotal int64
	for i, quote := range lineQuotes {
		snap, err := buildLineSnapshot(lock, cart.Lines[i], quote, frozenAt)
		if err != nil {
			return 0, err
		}
		grandTotal += snap.GrandTotal
		snapshots = append(snapshots, snap)
	}

	cartSnap, err := buildCartSnapshot(lock, cartQuote, frozenAt)
	if err != nil {
		return 0, err
	}
	grandTotal += cartSnap.GrandTotal
	snapshots = append(snapshots, cartSnap)

	if err := s.repo.SaveSnapshots(ctx, snapshots); err != nil {
		return 0, err
	}

	logger.Ctx(ctx).Info().
		Str("lock_id", lock.ID).
		Int("snapshots", len(snapshots)).
		Int64("grand_total", grandTotal).
		Msg("price snapshots frozen")
	return grandTotal, nil
}

func buildLineSnapshot(lock *domain.CheckoutLock, line port.CartLine, quote *port.LineQuote, frozenAt time.Time) (*domain.PriceSnapshot, error) {
	if quote.CurrencyCode != lock.CurrencyCode {
		return nil, &domain.PricingError{
			LockID:  lock.ID,
			LineID:  line.LineID,
			Message: "currency mismatch: quoted " + quote.CurrencyCode + ", expected " + lock.CurrencyCode,
		}
	}
	if quote.UnitPrice < 0 || quote.Tax < 0 {
		return nil, &domain.PricingError{LockID: lock.ID, LineID: line.LineID, Message: "negative amount in quote"}
	}

	subtotal := quote.UnitPrice * int64(line.Quantity)
	grand := subtotal - quote.Discount + quote.Tax
	if grand < 0 {
		return nil, &domain.PricingError{LockID: lock.ID, LineID: line.LineID, Message: "discount exceeds line subtotal"}
	}

	breakdown := []domain.BreakdownEntry{
		{Kind: "unit_price", Amount: subtotal},
	}
	if quote.Discount != 0 {
		breakdown = append(breakdown, domain.BreakdownEntry{Kind: "discount", Amount: -quote.Discount})
	}
	if quote.Tax != 0 {
		breakdown = append(breakdown, domain.BreakdownEntry{Kind: "tax", Amount: quote.Tax})
	}

	return &domain.PriceSnapshot{
		ID:                   uuid.New().String(),
		LockID:               lock.ID,
		LineID:               line.LineID,
		VariantID:            line.VariantID,
		Quantity:             line.Quantity,
		CurrencyCode:         quote.CurrencyCode,
		ExchangeRate:         normalizeRate(quote.ExchangeRate),
		UnitPrice:            quote.UnitPrice,
		Subtotal:             subtotal,
		DiscountTotal:        quote.Discount,
		TaxTotal:             quote.Tax,
		GrandTotal:           grand,
		AppliedDiscountCodes: quote.DiscountCodes,
		Breakdown:            breakdown,
		FrozenAt:             frozenAt,
	}, nil
}

// normalizeRate 定价服务未返回汇率时按本币 1:1 记账。
func normalizeRate(rate string) string {
	if rate == "" {
		return "1"
	}
	return rate
}

// buildCartSnapshot 生成 LineID 为空的购物车级汇总快照（运费、整车折扣）。
func buildCartSnapshot(lock *domain.CheckoutLock, quote *port.CartQuote, frozenAt time.Time) (*domain.PriceSnapshot, error) {
	if quote.CurrencyCode != lock.CurrencyCode {
		return nil, &domain.PricingError{
			LockID:  lock.ID,
			Message: "currency mismatch: quoted " + quote.CurrencyCode + ", expected " + lock.CurrencyCode,
		}
	}
	if quote.ShippingFee < 0 {
		return nil, &domain.PricingError{LockID: lock.ID, Message: "negative shipping fee"}
	}

	grand := quote.ShippingFee - quote.CartDiscount
	breakdown := make([]domain.BreakdownEntry, 0, 2)
	if quote.ShippingFee != 0 {
		breakdown = append(breakdown, domain.BreakdownEntry{Kind: "shipping", Amount: quote.ShippingFee})
	}
	if quote.CartDiscount != 0 {
		breakdown = append(breakdown, domain.BreakdownEntry{Kind: "discount", Amount: -quote.CartDiscount})
	}

	return &domain.PriceSnapshot{
		ID:                   uuid.New().String(),
		LockID:               lock.ID,
		CurrencyCode:         quote.CurrencyCode,
		ExchangeRate:         normalizeRate(quote.ExchangeRate),
		DiscountTotal:        quote.CartDiscount,
		GrandTotal:           grand,
		AppliedDiscountCodes: quote.DiscountCodes,
		Breakdown:            breakdown,
		FrozenAt:             frozenAt,
	}, nil
}
