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
	"storefront/internal/service/inventory/application"
	"storefront/internal/service/inventory/domain"
)

const serviceName = "inventory-service"

// InventoryHandler 封装了 inventory 服务的 HTTP 处理器
type InventoryHandler struct {
	engine *application.Engine
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例
func NewInventoryHandler(engine *application.Engine) *InventoryHandler {
	return &InventoryHandler{engine: engine}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/adjust_stock", h.adjustStockHandler)
	mux.HandleFunc("/get_level", h.getLevelHandler)
	mux.HandleFunc("/list_movements", h.listMovementsHandler)
	mux.HandleFunc("/force_release", h.forceReleaseHandler)
}

type adjustStockRequest struct {
	VariantID   string `json:"variant_id"`
	WarehouseID string `json:"warehouse_id"`
	Delta       int    `json:"delta"`
	Reason      string `json:"reason"`
	Actor       string `json:"actor"`
}

func (h *InventoryHandler) adjustStockHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "inventory.AdjustStockHandler")
	defer span.End()

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.Adjust(ctx, application.AdjustCommand{
		VariantID:   req.VariantID,
		WarehouseID: req.WarehouseID,
		Delta:       req.Delta,
		Reason:      req.Reason,
		Actor:       domain.ManualRef(req.Actor),
	}); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("variant_id", req.VariantID).Msg("adjust stock failed")
		writeDomainError(w, err)
		return
	}

	level, err := h.engine.Level(ctx, req.VariantID, req.WarehouseID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, levelResponse(level))
}

func (h *InventoryHandler) getLevelHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "inventory.GetLevelHandler")
	defer span.End()

	level, err := h.engine.Level(ctx, r.URL.Query().Get("variant_id"), r.URL.Query().Get("warehouse_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, levelResponse(level))
}

func (h *InventoryHandler) listMovementsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "inventory.ListMovementsHandler")
	defer span.End()

	movements, err := h.engine.Movements(ctx, r.URL.Query().Get("level_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, movements)
}

type forceReleaseRequest struct {
	ReservationID string `json:"reservation_id"`
}

// forceReleaseHandler 供运营后台手工释放占用，释放是幂等的。
func (h *InventoryHandler) forceReleaseHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.startSpan(r, "inventory.ForceReleaseHandler")
	defer span.End()

	var req forceReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.engine.Release(ctx, req.ReservationID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("reservation_id", req.ReservationID).Msg("force release failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, map[string]any{"reservation_id": req.ReservationID, "released": true})
}

func (h *InventoryHandler) startSpan(r *http.Request, name string) (context.Context, trace.Span) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	tracer := otel.Tracer(serviceName)
	return tracer.Start(ctx, name)
}

type levelView struct {
	ID          string `json:"id"`
	VariantID   string `json:"variant_id"`
	WarehouseID string `json:"warehouse_id"`
	Quantity    int    `json:"quantity"`
	Reserved    int    `json:"reserved_quantity"`
	Available   int    `json:"available_quantity"`
	Status      string `json:"status"`
}

func levelResponse(l *domain.InventoryLevel) levelView {
	return levelView{
		ID:          l.ID,
		VariantID:   l.VariantID,
		WarehouseID: l.WarehouseID,
		Quantity:    l.Quantity,
		Reserved:    l.ReservedQuantity,
		Available:   l.AvailableQuantity(),
		Status:      string(l.Status()),
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case err == domain.ErrLevelNotFound, err == domain.ErrReservationNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		if _, ok := domain.IsInsufficientStock(err); ok {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
