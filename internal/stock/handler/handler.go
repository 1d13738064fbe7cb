package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/fekuna/omnipos-stock-service/internal/stock/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type StockHandler struct {
	uc     stock.UseCase
	logger logger.ZapLogger
	now    func() time.Time
}

func NewStockHandler(uc stock.UseCase, log logger.ZapLogger) *StockHandler {
	return &StockHandler{
		uc:     uc,
		logger: log,
		now:    time.Now,
	}
}

// Register mounts the read routes on public and the write routes on
// protected, which is expected to carry the auth middleware.
func (h *StockHandler) Register(public, protected *gin.RouterGroup) {
	public.GET("/stock", h.ListLevels)
	public.GET("/stock/:item/:location", h.GetLevel)
	public.GET("/stock/:item/:location/reconcile", h.Reconcile)
	public.GET("/movements", h.ListMovements)
	public.GET("/reservations", h.ListReservations)
	public.GET("/reservations/:id", h.GetReservation)

	protected.POST("/stock", h.CreateLevel)
	protected.POST("/stock/:item/:location/adjust", h.Adjust)
	protected.PUT("/stock/:item/:location/thresholds", h.UpdateThresholds)
	protected.POST("/reservations", h.Reserve)
	protected.POST("/reservations/sweep", h.Sweep)
	protected.POST("/reservations/:id/extend", h.Extend)
	protected.POST("/reservations/:id/release", h.Release)
	protected.POST("/reservations/:id/commit", h.Commit)
	protected.POST("/holders/:holder/release", h.ReleaseHolder)
}

type listResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

func (h *StockHandler) GetLevel(c *gin.Context) {
	level, err := h.uc.Query(c.Request.Context(), c.Param("item"), c.Param("location"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

func (h *StockHandler) ListLevels(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	lowStock, _ := strconv.ParseBool(c.Query("low_stock"))

	items, total, err := h.uc.ListLevels(c.Request.Context(), &dto.LevelFilters{
		ItemID:     c.Query("item_id"),
		LocationID: c.Query("location_id"),
		LowStock:   lowStock,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *StockHandler) ListMovements(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	items, total, err := h.uc.ListMovements(c.Request.Context(), &dto.MovementFilters{
		ItemID:        c.Query("item_id"),
		LocationID:    c.Query("location_id"),
		MovementType:  model.MovementType(c.Query("movement_type")),
		ReservationID: c.Query("reservation_id"),
		StartDate:     from,
		EndDate:       to,
		Page:          page,
		PageSize:      pageSize,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *StockHandler) ListReservations(c *gin.Context) {
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	from, to, ok := timeRange(c)
	if !ok {
		return
	}

	items, total, err := h.uc.ListReservations(c.Request.Context(), &dto.ReservationFilters{
		ItemID:     c.Query("item_id"),
		LocationID: c.Query("location_id"),
		HolderRef:  c.Query("holder_ref"),
		Status:     model.ReservationStatus(c.Query("status")),
		StartDate:  from,
		EndDate:    to,
		Page:       page,
		PageSize:   pageSize,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Total: total, Page: page, PageSize: pageSize})
}

func (h *StockHandler) GetReservation(c *gin.Context) {
	res, err := h.uc.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *StockHandler) Reconcile(c *gin.Context) {
	report, err := h.uc.Reconcile(c.Request.Context(), c.Param("item"), c.Param("location"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type createLevelRequest struct {
	ItemID       string `json:"item_id" binding:"required"`
	LocationID   string `json:"location_id" binding:"required"`
	OnHand       int64  `json:"on_hand"`
	ReorderPoint int64  `json:"reorder_point"`
	MaximumStock int64  `json:"maximum_stock"`
	Reason       string `json:"reason"`
}

func (h *StockHandler) CreateLevel(c *gin.Context) {
	var req createLevelRequest
	if !bind(c, &req) {
		return
	}

	level, err := h.uc.CreateLevel(c.Request.Context(), &dto.CreateLevelInput{
		ItemID:       req.ItemID,
		LocationID:   req.LocationID,
		OnHand:       req.OnHand,
		ReorderPoint: req.ReorderPoint,
		MaximumStock: req.MaximumStock,
		Reason:       req.Reason,
		ActorRef:     auth.GetActor(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, level)
}

type adjustRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason" binding:"required"`
}

func (h *StockHandler) Adjust(c *gin.Context) {
	var req adjustRequest
	if !bind(c, &req) {
		return
	}

	level, err := h.uc.Adjust(c.Request.Context(), &dto.AdjustInput{
		ItemID:     c.Param("item"),
		LocationID: c.Param("location"),
		Delta:      req.Delta,
		Reason:     req.Reason,
		ActorRef:   auth.GetActor(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

type thresholdsRequest struct {
	ReorderPoint int64 `json:"reorder_point"`
	MaximumStock int64 `json:"maximum_stock"`
}

func (h *StockHandler) UpdateThresholds(c *gin.Context) {
	var req thresholdsRequest
	if !bind(c, &req) {
		return
	}

	level, err := h.uc.UpdateThresholds(c.Request.Context(), &dto.UpdateThresholdsInput{
		ItemID:       c.Param("item"),
		LocationID:   c.Param("location"),
		ReorderPoint: req.ReorderPoint,
		MaximumStock: req.MaximumStock,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}

type reserveRequest struct {
	ItemID     string `json:"item_id" binding:"required"`
	LocationID string `json:"location_id" binding:"required"`
	Quantity   int64  `json:"quantity"`
	HolderRef  string `json:"holder_ref" binding:"required"`
	TTLSeconds int64  `json:"ttl_seconds"`
	RequestID  string `json:"request_id"`
}

func (h *StockHandler) Reserve(c *gin.Context) {
	var req reserveRequest
	if !bind(c, &req) {
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = c.GetHeader("Idempotency-Key")
	}

	res, err := h.uc.Reserve(c.Request.Context(), &dto.ReserveInput{
		ItemID:     req.ItemID,
		LocationID: req.LocationID,
		Quantity:   req.Quantity,
		HolderRef:  req.HolderRef,
		TTL:        time.Duration(req.TTLSeconds) * time.Second,
		RequestID:  requestID,
		ActorRef:   auth.GetActor(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type extendRequest struct {
	AdditionalSeconds int64 `json:"additional_seconds"`
}

func (h *StockHandler) Extend(c *gin.Context) {
	var req extendRequest
	if !bind(c, &req) {
		return
	}

	res, err := h.uc.Extend(c.Request.Context(), c.Param("id"), time.Duration(req.AdditionalSeconds)*time.Second)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

func (h *StockHandler) Release(c *gin.Context) {
	var req releaseRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	out, err := h.uc.Release(c.Request.Context(), c.Param("id"), req.Reason, auth.GetActor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *StockHandler) Commit(c *gin.Context) {
	out, err := h.uc.CommitSale(c.Request.Context(), c.Param("id"), auth.GetActor(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *StockHandler) ReleaseHolder(c *gin.Context) {
	var req releaseRequest
	if c.Request.ContentLength > 0 && !bind(c, &req) {
		return
	}

	results, err := h.uc.ReleaseHolder(c.Request.Context(), c.Param("holder"), req.Reason, auth.GetActor(c))
	if err != nil && len(results) == 0 {
		h.writeError(c, err)
		return
	}
	if err != nil {
		h.logger.Warn("holder release partially failed", zap.String("holder_ref", c.Param("holder")), zap.Error(err))
		c.JSON(http.StatusMultiStatus, gin.H{"results": results, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *StockHandler) Sweep(c *gin.Context) {
	count, err := h.uc.SweepExpired(c.Request.Context(), h.now())
	if err != nil {
		if count > 0 {
			c.JSON(http.StatusMultiStatus, gin.H{"expired": count, "error": err.Error()})
			return
		}
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": count})
}
