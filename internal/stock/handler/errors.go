package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/stock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	retryAfter      = "1"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, stock.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, stock.ErrInsufficientStock),
		errors.Is(err, stock.ErrAlreadyTerminal),
		errors.Is(err, stock.ErrLevelExists),
		errors.Is(err, stock.ErrDuplicateRequest):
		return http.StatusConflict
	case errors.Is(err, stock.ErrInvalidAdjustment):
		return http.StatusUnprocessableEntity
	case errors.Is(err, stock.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, stock.ErrContention),
		errors.Is(err, stock.ErrRepositoryUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *StockHandler) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfter)
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("stock request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(code, gin.H{"error": err.Error()})
}

func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return 0, 0, false
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "page_size must be a positive integer"})
		return 0, 0, false
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize, true
}

// timeRange reads the optional RFC3339 from/to query parameters.
func timeRange(c *gin.Context) (from, to *time.Time, ok bool) {
	parse := func(key string) (*time.Time, bool) {
		raw := c.Query(key)
		if raw == "" {
			return nil, true
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
			return nil, false
		}
		return &t, true
	}

	if from, ok = parse("from"); !ok {
		return nil, nil, false
	}
	if to, ok = parse("to"); !ok {
		return nil, nil, false
	}
	return from, to, true
}
