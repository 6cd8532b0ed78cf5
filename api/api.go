// Package api 提供编排服务的 HTTP 查询端点.
//
// 服务本身由事件驱动，HTTP 面只暴露只读能力：
// 健康检查、Prometheus 指标和 Saga 状态查询.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Tsukikage7/payment-saga/logger"
	"github.com/Tsukikage7/payment-saga/metrics"
	"github.com/Tsukikage7/payment-saga/orchestrator"
	"github.com/Tsukikage7/payment-saga/saga"
)

// StatusReader Saga 状态查询接口，由编排器实现.
type StatusReader interface {
	GetSagaStatus(ctx context.Context, sagaID string) (*saga.Saga, error)
}

// Handler HTTP 查询端点.
type Handler struct {
	reader  StatusReader
	metrics metrics.Collector
	logger  logger.Logger
	mux     *http.ServeMux
}

// NewHandler 创建 HTTP 查询端点.
func NewHandler(reader StatusReader, collector metrics.Collector, log logger.Logger) *Handler {
	if collector == nil {
		collector = metrics.Nop()
	}
	if log == nil {
		log = logger.Nop()
	}

	h := &Handler{
		reader:  reader,
		metrics: collector,
		logger:  log,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux.Handle("GET "+collector.GetPath(), collector.GetHandler())
	h.mux.HandleFunc("GET /api/v1/sagas/{id}", h.handleSagaStatus)
	return h
}

// ServeHTTP 实现 http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSagaStatus(w http.ResponseWriter, r *http.Request) {
	sagaID := r.PathValue("id")
	if sagaID == "" {
		h.writeError(w, http.StatusBadRequest, "缺少 Saga 标识")
		return
	}

	sg, err := h.reader.GetSagaStatus(r.Context(), sagaID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "Saga 不存在")
			return
		}
		h.logger.WithContext(r.Context()).With(
			logger.String("sagaId", sagaID),
			logger.Err(err),
		).Error("[API] 状态查询失败")
		h.writeError(w, http.StatusInternalServerError, "内部错误")
		return
	}

	h.writeJSON(w, http.StatusOK, sg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.With(logger.Err(err)).Error("[API] 响应编码失败")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
