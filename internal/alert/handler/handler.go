package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/alert"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AlertHandler struct {
	uc     alert.UseCase
	logger logger.ZapLogger
}

func NewAlertHandler(uc alert.UseCase, log logger.ZapLogger) *AlertHandler {
	return &AlertHandler{
		uc:     uc,
		logger: log,
	}
}

func (h *AlertHandler) Register(public, protected *gin.RouterGroup) {
	public.GET("/alerts", h.List)
	public.GET("/alerts/summary", h.Summary)
	public.GET("/alerts/:id", h.Get)

	protected.POST("/alerts/:id/acknowledge", h.Acknowledge)
	protected.POST("/alerts/:id/resolve", h.Resolve)
	protected.POST("/alerts/:id/snooze", h.Snooze)
	protected.POST("/alerts/:id/cancel", h.Cancel)
}

func (h *AlertHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", "50"))
	if err != nil || pageSize < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
		return
	}

	filters := &dto.AlertFilters{
		ItemID:     c.Query("item_id"),
		LocationID: c.Query("location_id"),
		AlertType:  model.AlertType(c.Query("alert_type")),
		Status:     model.AlertStatus(c.Query("status")),
		Priority:   model.AlertPriority(c.Query("priority")),
		Page:       page,
		PageSize:   pageSize,
	}
	for key, dst := range map[string]**time.Time{"from": &filters.StartDate, "to": &filters.EndDate} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return
		}
		*dst = &t
	}

	items, total, err := h.uc.List(c.Request.Context(), filters)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page, "page_size": pageSize})
}

func (h *AlertHandler) Summary(c *gin.Context) {
	summary, err := h.uc.Summary(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *AlertHandler) Get(c *gin.Context) {
	a, err := h.uc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AlertHandler) Acknowledge(c *gin.Context) {
	a, err := h.uc.Acknowledge(c.Request.Context(), c.Param("id"), auth.GetActor(c))
	h.respond(c, a, err)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	a, err := h.uc.Resolve(c.Request.Context(), c.Param("id"), req.Notes, auth.GetActor(c))
	h.respond(c, a, err)
}

type snoozeRequest struct {
	Until *time.Time `json:"until"`
}

func (h *AlertHandler) Snooze(c *gin.Context) {
	var req snoozeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	var until time.Time
	if req.Until != nil {
		until = *req.Until
	}
	a, err := h.uc.Snooze(c.Request.Context(), c.Param("id"), until, auth.GetActor(c))
	h.respond(c, a, err)
}

func (h *AlertHandler) Cancel(c *gin.Context) {
	a, err := h.uc.Cancel(c.Request.Context(), c.Param("id"), auth.GetActor(c))
	h.respond(c, a, err)
}

func (h *AlertHandler) respond(c *gin.Context, a *model.StockAlert, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AlertHandler) writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, alert.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, alert.ErrAlertClosed), errors.Is(err, alert.ErrAlertConflict):
		code = http.StatusConflict
	case errors.Is(err, alert.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, alert.ErrRepositoryUnavailable):
		code = http.StatusServiceUnavailable
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("alert request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
