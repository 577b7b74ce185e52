package infrastructure

import (
	"encoding/json"

	"storefront/internal/service/checkout/domain"
)

func toLockModel(l *domain.CheckoutLock) (*CheckoutLockModel, error) {
	m := &CheckoutLockModel{
		ID:           l.ID,
		CartID:       l.CartID,
		SessionID:    l.SessionID,
		UserID:       l.UserID,
		LockToken:    l.LockToken,
		State:        string(l.State),
		Phase:        string(l.Phase),
		CurrencyCode: l.CurrencyCode,
		TotalAmount:  l.TotalAmount,
		ExpiresAt:    l.ExpiresAt,
		CreatedAt:    l.CreatedAt,
		UpdatedAt:    l.UpdatedAt,
		CompletedAt:  l.CompletedAt,
		FailedAt:     l.FailedAt,
	}
	if l.IsActive() {
		cartID := l.CartID
		m.ActiveCartID = &cartID
	}
	if l.FailureReason != nil {
		raw, err := json.Marshal(l.FailureReason)
		if err != nil {
			return nil, err
		}
		m.FailureReason = string(raw)
	}
	if len(l.Metadata) > 0 {
		raw, err := json.Marshal(l.Metadata)
		if err != nil {
			return nil, err
		}
		m.Metadata = string(raw)
	}
	return m, nil
}

func toLockDomain(m *CheckoutLockModel) (*domain.CheckoutLock, error) {
	l := &domain.CheckoutLock{
		ID:           m.ID,
		CartID:       m.CartID,
		SessionID:    m.SessionID,
		UserID:       m.UserID,
		LockToken:    m.LockToken,
		State:        domain.LockState(m.State),
		Phase:        domain.Phase(m.Phase),
		CurrencyCode: m.CurrencyCode,
		TotalAmount:  m.TotalAmount,
		ExpiresAt:    m.ExpiresAt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		CompletedAt:  m.CompletedAt,
		FailedAt:     m.FailedAt,
		Metadata:     make(map[string]string),
	}
	if m.FailureReason != "" {
		var reason domain.FailureReason
		if err := json.Unmarshal([]byte(m.FailureReason), &reason); err != nil {
			return nil, err
		}
		l.FailureReason = &reason
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &l.Metadata); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func toSnapshotModel(s *domain.PriceSnapshot) (*PriceSnapshotModel, error) {
	raw, err := json.Marshal(s.Breakdown)
	if err != nil {
		return nil, err
	}
	var codes string
	if len(s.AppliedDiscountCodes) > 0 {
		rawCodes, err := json.Marshal(s.AppliedDiscountCodes)
		if err != nil {
			return nil, err
		}
		codes = string(rawCodes)
	}
	return &PriceSnapshotModel{
		ID:                   s.ID,
		LockID:               s.LockID,
		LineID:               s.LineID,
		VariantID:            s.VariantID,
		Quantity:             s.Quantity,
		CurrencyCode:         s.CurrencyCode,
		ExchangeRate:         s.ExchangeRate,
		UnitPrice:            s.UnitPrice,
		Subtotal:             s.Subtotal,
		DiscountTotal:        s.DiscountTotal,
		TaxTotal:             s.TaxTotal,
		GrandTotal:           s.GrandTotal,
		AppliedDiscountCodes: codes,
		Breakdown:            string(raw),
		FrozenAt:             s.FrozenAt,
	}, nil
}

func toSnapshotDomain(m *PriceSnapshotModel) (*domain.PriceSnapshot, error) {
	s := &domain.PriceSnapshot{
		ID:            m.ID,
		LockID:        m.LockID,
		LineID:        m.LineID,
		VariantID:     m.VariantID,
		Quantity:      m.Quantity,
		CurrencyCode:  m.CurrencyCode,
		ExchangeRate:  m.ExchangeRate,
		UnitPrice:     m.UnitPrice,
		Subtotal:      m.Subtotal,
		DiscountTotal: m.DiscountTotal,
		TaxTotal:      m.TaxTotal,
		GrandTotal:    m.GrandTotal,
		FrozenAt:      m.FrozenAt,
	}
	if m.AppliedDiscountCodes != "" {
		if err := json.Unmarshal([]byte(m.AppliedDiscountCodes), &s.AppliedDiscountCodes); err != nil {
			return nil, err
		}
	}
	if m.Breakdown != "" {
		if err := json.Unmarshal([]byte(m.Breakdown), &s.Breakdown); err != nil {
			return nil, err
		}
	}
	return s, nil
}
