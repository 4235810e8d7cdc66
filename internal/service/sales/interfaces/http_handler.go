package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"seckill/internal/service/sales/application"
	"seckill/internal/service/sales/domain"
)

const historyDateLayout = "2006-01-02"

// SalesHandler 封装了 sales 服务的 HTTP 处理器
type SalesHandler struct {
	aggregator *application.Aggregator
	hub        *DashboardHub // 可选，nil 时不提供实时推送
	maxHot     int           // 热销榜单次查询的名额上限
}

// NewSalesHandler 创建一个新的 HTTP 处理器实例
func NewSalesHandler(aggregator *application.Aggregator, hub *DashboardHub, maxHot int) *SalesHandler {
	if maxHot < 1 {
		maxHot = 100
	}
	return &SalesHandler{aggregator: aggregator, hub: hub, maxHot: maxHot}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *SalesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sales/dashboard/today", h.handleDashboard)
	mux.HandleFunc("GET /api/sales/hot/daily", h.handleHotProducts)
	mux.HandleFunc("GET /api/sales/history/daily", h.handleHistory)
	if h.hub != nil {
		mux.HandleFunc("GET /api/sales/dashboard/live", h.hub.ServeWs)
	}
}

func (h *SalesHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	dash, err := h.aggregator.GetTodayDashboard(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, dash)
}

func (h *SalesHandler) handleHotProducts(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	if limit > h.maxHot {
		limit = h.maxHot
	}

	entries, err := h.aggregator.GetHotProducts(ctx, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, entries)
}

func (h *SalesHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	from, err := time.Parse(historyDateLayout, r.URL.Query().Get("startDate"))
	if err != nil {
		http.Error(w, "invalid startDate, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(historyDateLayout, r.URL.Query().Get("endDate"))
	if err != nil {
		http.Error(w, "invalid endDate, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	buckets, err := h.aggregator.GetDailyHistory(ctx, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, buckets)
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInvalidLimit),
		errors.Is(err, domain.ErrInvalidRange),
		errors.Is(err, domain.ErrInvalidEvent):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnavailable):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
