package interfaces

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"storefront/internal/pkg/logger"
	"storefront/internal/service/checkout/application"
	"storefront/internal/service/checkout/domain"
)

const serviceName = "checkout-service"

// CheckoutHandler 封装了 checkout 服务的 HTTP 处理器
type CheckoutHandler struct {
	service *application.LockService
}

// NewCheckoutHandler 创建一个新的 HTTP 处理器实例
func NewCheckoutHandler(service *application.LockService) *CheckoutHandler {
	return &CheckoutHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *CheckoutHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/acquire_lock", h.acquireLockHandler)
	mux.HandleFunc("/advance_lock", h.advanceLockHandler)
	mux.HandleFunc("/complete_lock", h.completeLockHandler)
	mux.HandleFunc("/fail_lock", h.failLockHandler)
	mux.HandleFunc("/get_lock", h.getLockHandler)
	mux.HandleFunc("/list_snapshots", h.listSnapshotsHandler)
	mux.HandleFunc("/list_reservations", h.listReservationsHandler)
}

type acquireLockRequest struct {
	CartID    string `json:"cart_id"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (h *CheckoutHandler) acquireLockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.AcquireLockHandler")
	defer span.End()

	var req acquireLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lock, err := h.service.Acquire(ctx, application.AcquireCommand{
		CartID:    req.CartID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("cart_id", req.CartID).Msg("acquire lock rejected")
		writeLockError(w, err)
		return
	}
	writeJSON(w, lockResponse(lock))
}

type lockIDRequest struct {
	LockID string `json:"lock_id"`
}

func (h *CheckoutHandler) advanceLockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.AdvanceLockHandler")
	defer span.End()

	var req lockIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lock, err := h.service.Advance(ctx, req.LockID)
	if err != nil {
		// 过期属于预期结果，锁已带着失败原因返回。
		if domain.IsExpired(err) && lock != nil {
			writeJSON(w, lockResponse(lock))
			return
		}
		logger.Ctx(ctx).Warn().Err(err).Str("lock_id", req.LockID).Msg("advance lock failed")
		writeLockError(w, err)
		return
	}
	writeJSON(w, lockResponse(lock))
}

type completeLockRequest struct {
	LockID  string `json:"lock_id"`
	OrderID string `json:"order_id"`
}

func (h *CheckoutHandler) completeLockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.CompleteLockHandler")
	defer span.End()

	var req completeLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lock, err := h.service.Complete(ctx, req.LockID, req.OrderID)
	if err != nil {
		if domain.IsExpired(err) && lock != nil {
			writeJSON(w, lockResponse(lock))
			return
		}
		logger.Ctx(ctx).Warn().Err(err).Str("lock_id", req.LockID).Msg("complete lock failed")
		writeLockError(w, err)
		return
	}
	writeJSON(w, lockResponse(lock))
}

type failLockRequest struct {
	LockID  string `json:"lock_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *CheckoutHandler) failLockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.FailLockHandler")
	defer span.End()

	var req failLockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	lock, err := h.service.Fail(ctx, req.LockID, domain.FailureReason{
		Phase:   domain.PhasePayment,
		Code:    req.Code,
		Message: req.Message,
	})
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("lock_id", req.LockID).Msg("fail lock rejected")
		writeLockError(w, err)
		return
	}
	writeJSON(w, lockResponse(lock))
}

func (h *CheckoutHandler) getLockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.GetLockHandler")
	defer span.End()

	var (
		lock *domain.CheckoutLock
		err  error
	)
	if token := r.URL.Query().Get("token"); token != "" {
		lock, err = h.service.GetLockByToken(ctx, token)
	} else {
		lock, err = h.service.GetLock(ctx, r.URL.Query().Get("lock_id"))
	}
	if err != nil {
		writeLockError(w, err)
		return
	}
	writeJSON(w, lockResponse(lock))
}

func (h *CheckoutHandler) listSnapshotsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.ListSnapshotsHandler")
	defer span.End()

	snapshots, err := h.service.Snapshots(ctx, r.URL.Query().Get("lock_id"))
	if err != nil {
		writeLockError(w, err)
		return
	}
	writeJSON(w, snapshots)
}

func (h *CheckoutHandler) listReservationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "checkout.ListReservationsHandler")
	defer span.End()

	reservations, err := h.service.Reservations(ctx, r.URL.Query().Get("lock_id"))
	if err != nil {
		writeLockError(w, err)
		return
	}
	writeJSON(w, reservations)
}

func (h *CheckoutHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	return tracer.Start(ctx, name)
}

type lockView struct {
	ID            string                `json:"id"`
	CartID        string                `json:"cart_id"`
	LockToken     string                `json:"lock_token"`
	State         string                `json:"state"`
	Phase         string                `json:"phase,omitempty"`
	FailureReason *domain.FailureReason `json:"failure_reason,omitempty"`
	CurrencyCode  string                `json:"currency_code"`
	TotalAmount   int64                 `json:"total_amount"`
	ExpiresAt     string                `json:"expires_at"`
}

func lockResponse(l *domain.CheckoutLock) lockView {
	return lockView{
		ID:            l.ID,
		CartID:        l.CartID,
		LockToken:     l.LockToken,
		State:         string(l.State),
		Phase:         string(l.Phase),
		FailureReason: l.FailureReason,
		CurrencyCode:  l.CurrencyCode,
		TotalAmount:   l.TotalAmount,
		ExpiresAt:     l.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeLockError(w http.ResponseWriter, err error) {
	switch {
	case err == domain.ErrLockNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.IsConflict(err) || domain.IsAlreadyTerminal(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case domain.IsExpired(err):
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
