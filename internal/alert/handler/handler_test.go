package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/alert/dto"
	"github.com/fekuna/omnipos-stock-service/internal/alert/repository"
	"github.com/fekuna/omnipos-stock-service/internal/alert/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepository()
	uc := usecase.NewAlertUseCase(repo, nil, config.AlertConfig{}, logger.NewNopLogger())
	level := &model.StockLevel{ItemID: "sku-1", LocationID: "store-1"}
	require.NoError(t, uc.Evaluate(context.Background(), level))

	alerts, _, err := uc.List(context.Background(), &dto.AlertFilters{})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	r := gin.New()
	secret := []byte("secret")
	NewAlertHandler(uc, logger.NewNopLogger()).Register(
		r.Group("/api/v1"),
		r.Group("/api/v1", auth.Middleware(secret)),
	)
	return r, alerts[0].ID
}

func do(r *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		token, _ := auth.GenerateToken([]byte("secret"), "clerk", time.Hour)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAlertHandler_ListAndGet(t *testing.T) {
	r, id := newRouter(t)

	rec := do(r, http.MethodGet, "/api/v1/alerts?status=active", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Items []model.StockAlert `json:"items"`
		Total int                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, model.AlertOutOfStock, list.Items[0].AlertType)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/alerts/"+id, "", false).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/alerts/nope", "", false).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/alerts?from=yesterday", "", false).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/alerts/summary", "", false).Code)
}

func TestAlertHandler_Transitions(t *testing.T) {
	r, id := newRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", "", false).Code)

	rec := do(r, http.MethodPost, "/api/v1/alerts/"+id+"/acknowledge", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var a model.StockAlert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, model.AlertAcknowledged, a.Status)
	require.NotNil(t, a.AcknowledgedBy)
	assert.Equal(t, "clerk", *a.AcknowledgedBy)

	rec = do(r, http.MethodPost, "/api/v1/alerts/"+id+"/snooze", `{"until":"2001-01-01T00:00:00Z"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(r, http.MethodPost, "/api/v1/alerts/"+id+"/resolve", `{"notes":"restocked"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodPost, "/api/v1/alerts/"+id+"/cancel", "", true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}
