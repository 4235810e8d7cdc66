package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"seckill/internal/service/cart/application"
	"seckill/internal/service/cart/domain"
)

// CartHandler 封装了 cart 服务的 HTTP 处理器
type CartHandler struct {
	service *application.CartService
}

// NewCartHandler 创建一个新的 HTTP 处理器实例
func NewCartHandler(service *application.CartService) *CartHandler {
	return &CartHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
// 路径与既有前端保持兼容，不做调整。
func (h *CartHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/cart/cartList", h.handleCartList)
	mux.HandleFunc("POST /api/cart/add", h.handleAdd)
	mux.HandleFunc("PUT /api/cart/update", h.handleUpdate)
	mux.HandleFunc("DELETE /api/cart/items/{productId}", h.handleRemove)
	mux.HandleFunc("DELETE /api/cart/removeAll", h.handleClear)
}

// cartItemRequest 是 add / update 的请求体
type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

// cartItemView 是返回给前端的单个条目视图
type cartItemView struct {
	ProductID     string `json:"productId"`
	Quantity      int64  `json:"quantity"`
	UnitPrice     int64  `json:"unitPrice"`
	SubTotalCents int64  `json:"subTotal"`
}

// cartView 聚合了条目和合计信息，字段与原有前端契约一致
type cartView struct {
	UserID     string         `json:"userId"`
	Items      []cartItemView `json:"items"`
	TotalItems int64          `json:"totalItems"`
	TotalPrice int64          `json:"totalPrice"`
	Version    int64          `json:"version"`
}

func (h *CartHandler) handleCartList(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	cart, err := h.service.GetCart(ctx, userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(cart))
}

func (h *CartHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.service.AddItem(ctx, userID(r), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(cart))
}

func (h *CartHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)

	var req cartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cart, err := h.service.UpdateItem(ctx, userID(r), req.ProductID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(cart))
}

func (h *CartHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	cart, err := h.service.RemoveItem(ctx, userID(r), r.PathValue("productId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(cart))
}

func (h *CartHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	cart, err := h.service.ClearCart(ctx, userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(cart))
}

// userID 取上游网关解析好的用户标识。认证不在本服务内做。
func userID(r *http.Request) string {
	return r.Header.Get("X-User-Id")
}

// extract 恢复上游传来的 trace 上下文
func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func toView(cart *domain.Cart) cartView {
	view := cartView{
		UserID:     cart.UserID,
		Items:      make([]cartItemView, 0, len(cart.Lines)),
		TotalItems: cart.TotalItems(),
		TotalPrice: cart.TotalPriceCents(),
		Version:    cart.Version,
	}
	for _, line := range cart.Lines {
		view.Items = append(view.Items, cartItemView{
			ProductID:     line.ProductID,
			Quantity:      line.Quantity,
			UnitPrice:     line.UnitPriceCents,
			SubTotalCents: line.Quantity * line.UnitPriceCents,
		})
	}
	// map 遍历无序，输出按商品 ID 排序保证响应稳定
	sort.Slice(view.Items, func(i, j int) bool { return view.Items[i].ProductID < view.Items[j].ProductID })
	return view
}

// writeError 根据错误类型返回不同的 HTTP 状态码
func writeError(w http.ResponseWriter, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidProduct),
		errors.Is(err, domain.ErrInvalidUser),
		errors.Is(err, domain.ErrLimitExceeded):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrLineNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		// 可重试：前端应重新拉取购物车后重提
		statusCode = http.StatusConflict
	case errors.Is(err, domain.ErrUnavailable):
		statusCode = http.StatusServiceUnavailable
	default:
		statusCode = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), statusCode)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
