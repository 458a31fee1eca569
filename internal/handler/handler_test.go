package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"coursepay/internal/config"
	"coursepay/internal/gateway"
	"coursepay/internal/handler"
	"coursepay/internal/infrastructure/lock"
	"coursepay/internal/model"
	"coursepay/internal/service"
	"coursepay/internal/testutil"
	"coursepay/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

// invoiceServer 模拟支付网关，按 external_id 记录发票状态
type invoiceServer struct {
	mu       sync.Mutex
	statuses map[string]string
	down     bool
}

func (s *invoiceServer) setStatus(externalID, status string) {
	s.mu.Lock()
	s.statuses[externalID] = status
	s.mu.Unlock()
}

func (s *invoiceServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodPost:
		var req gateway.CreateInvoiceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.statuses[req.ExternalID] = gateway.InvoiceStatusPending
		_ = json.NewEncoder(w).Encode(gateway.Invoice{
			ID:         "inv_" + req.ExternalID,
			ExternalID: req.ExternalID,
			Status:     gateway.InvoiceStatusPending,
			Amount:     float64(req.Amount),
			InvoiceURL: "https://checkout.example/" + req.ExternalID,
		})
	case http.MethodGet:
		externalID := r.URL.Query().Get("external_id")
		status, ok := s.statuses[externalID]
		if !ok {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode([]gateway.Invoice{{ExternalID: externalID, Status: status}})
	}
}

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	gateway *invoiceServer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLogger(t, zap.NewNop())
}

func newTestEnvWithLogger(t *testing.T, logger *zap.Logger) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	gw := &invoiceServer{statuses: map[string]string{}}
	ts := httptest.NewServer(gw)
	t.Cleanup(ts.Close)

	cfg := &config.Config{
		Gateway:  config.GatewayConfig{BaseURL: ts.URL, SecretKey: "xnd_test", Timeout: time.Second},
		Business: config.BusinessConfig{MinTopUpAmount: 10000},
	}
	locks := lock.NewLocalFactory()

	rating := service.NewRatingAggregator(db, logger)
	h := handler.NewHandler(
		service.NewPurchaseService(db, cfg, locks, logger),
		service.NewReviewService(db, rating, logger),
		service.NewTopUpService(db, cfg, gateway.NewClient(&cfg.Gateway), nil, locks, logger),
		service.NewAccountService(db),
		logger,
	)
	return &testEnv{
		db:      db,
		router:  handler.SetupRouter(h, gin.TestMode, logger),
		gateway: gw,
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestPurchaseFlow(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, 100000)
	course := testutil.CreateCourse(t, env.db, 75000)

	status, resp := env.do(t, http.MethodPost, "/api/v1/purchases",
		gin.H{"user_id": user.ID, "course_id": course.ID})
	require.Equal(t, http.StatusOK, status, resp.Message)

	var result service.PurchaseResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, int64(25000), result.NewBalance)

	status, resp = env.do(t, http.MethodPost, "/api/v1/purchases",
		gin.H{"user_id": user.ID, "course_id": course.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "AlreadyPurchased", resp.Error)
	assert.Equal(t, response.CodeAlreadyPurchased, resp.Code)

	status, resp = env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/courses/%d/access?user_id=%d", course.ID, user.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"has_access":true}`, string(resp.Data))

	status, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/balance", user.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), `"balance":25000`)

	status, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/courses", user.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), course.Title)

	status, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/entries", user.ID), nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), model.EntryTypePurchase)
}

func TestPurchase_Errors(t *testing.T) {
	env := newTestEnv(t)
	poor := testutil.CreateUser(t, env.db, 100)
	course := testutil.CreateCourse(t, env.db, 75000)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantError  string
	}{
		{"insufficient balance", gin.H{"user_id": poor.ID, "course_id": course.ID}, http.StatusBadRequest, "InsufficientBalance"},
		{"unknown course", gin.H{"user_id": poor.ID, "course_id": course.ID + 100}, http.StatusNotFound, "CourseNotFound"},
		{"unknown user", gin.H{"user_id": poor.ID + 100, "course_id": course.ID}, http.StatusNotFound, "UserNotFound"},
		{"missing fields", gin.H{"user_id": poor.ID}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/api/v1/purchases", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestCheckAccess_BadParams(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.do(t, http.MethodGet, "/api/v1/courses/abc/access?user_id=1", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, response.CodeParamError, resp.Code)

	status, _ = env.do(t, http.MethodGet, "/api/v1/courses/1/access", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTopUpFlow(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.CreateUser(t, env.db, 0)

	status, resp := env.do(t, http.MethodPost, "/api/v1/topups", gin.H{"user_id": user.ID, "amount": 5000})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidAmount", resp.Error)

	status, resp = env.do(t, http.MethodPost, "/api/v1/topups", gin.H{"user_id": user.ID, "amount": 50000})
	require.Equal(t, http.StatusOK, status, resp.Message)

	var created struct {
		ExternalID string `json:"external_id"`
		PaymentURL string `json:"payment_url"`
		Status     string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &created))
	assert.Equal(t, model.TopUpStatusPending, created.Status)
	assert.True(t, strings.HasPrefix(created.PaymentURL, "https://checkout.example/"))

	checkPath := "/api/v1/topups/" + created.ExternalID + "/check"
	status, resp = env.do(t, http.MethodGet, checkPath, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), model.TopUpStatusPending)

	env.gateway.setStatus(created.ExternalID, gateway.InvoiceStatusSettled)
	for i := 0; i < 2; i++ {
		status, resp = env.do(t, http.MethodGet, checkPath, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Contains(t, string(resp.Data), model.TopUpStatusSettled)
	}
	assert.Equal(t, int64(50000), testutil.Reload[model.User](t, env.db, user.ID).Balance)

	status, resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/users/%d/topups?page=0&page_size=1000", user.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var page service.TopUpPage
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Len(t, page.List, 1)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)

	status, resp = env.do(t, http.MethodGet, "/api/v1/topups/TOPUP-unknown/check", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeNotFound, resp.Code)
}

func TestReviewFlow(t *testing.T) {
	env := newTestEnv(t)
	author := testutil.CreateUser(t, env.db, 100000)
	other := testutil.CreateUser(t, env.db, 0)
	admin := testutil.CreateAdmin(t, env.db)
	course := testutil.CreateCourse(t, env.db, 50000)
	reviewsPath := fmt.Sprintf("/api/v1/courses/%d/reviews", course.ID)

	status, resp := env.do(t, http.MethodPost, reviewsPath, gin.H{"user_id": author.ID, "rating": 5})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "NotPurchased", resp.Error)

	status, _ = env.do(t, http.MethodPost, "/api/v1/purchases", gin.H{"user_id": author.ID, "course_id": course.ID})
	require.Equal(t, http.StatusOK, status)

	status, resp = env.do(t, http.MethodPost, reviewsPath, gin.H{"user_id": author.ID, "rating": 6})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "InvalidRating", resp.Error)

	status, resp = env.do(t, http.MethodPost, reviewsPath, gin.H{"user_id": author.ID, "rating": 4, "comment": "solid"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var review model.Review
	require.NoError(t, json.Unmarshal(resp.Data, &review))
	require.NotNil(t, review.Comment)
	assert.Equal(t, "solid", *review.Comment)

	status, resp = env.do(t, http.MethodPost, reviewsPath, gin.H{"user_id": author.ID, "rating": 3})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "AlreadyReviewed", resp.Error)

	reviewPath := fmt.Sprintf("/api/v1/reviews/%d", review.ID)
	status, resp = env.do(t, http.MethodPut, reviewPath, gin.H{"user_id": other.ID, "rating": 1})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Unauthorized", resp.Error)

	status, _ = env.do(t, http.MethodPut, reviewPath, gin.H{"user_id": author.ID, "rating": 2})
	require.Equal(t, http.StatusOK, status)
	assert.True(t, testutil.Reload[model.Course](t, env.db, course.ID).Rating.Equal(decimal.NewFromInt(2)))

	status, resp = env.do(t, http.MethodGet, reviewsPath, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(resp.Data), `"rating":2`)
	assert.Contains(t, string(resp.Data), fmt.Sprintf(`"user":{"id":%d,"name":%q}`, author.ID, author.Name))
	assert.NotContains(t, string(resp.Data), "balance")

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("%s?user_id=%d", reviewPath, other.ID), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodDelete, fmt.Sprintf("%s?user_id=%d", reviewPath, admin.ID), nil)
	require.Equal(t, http.StatusOK, status)

	reloaded := testutil.Reload[model.Course](t, env.db, course.ID)
	assert.Equal(t, int64(0), reloaded.ReviewCount)
	assert.True(t, reloaded.Rating.IsZero())

	status, resp = env.do(t, http.MethodDelete, fmt.Sprintf("%s?user_id=%d", reviewPath, admin.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, response.CodeNotFound, resp.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handler.RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/v1/purchases", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestGatewayFailureIsLoggedWithKind(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	env := newTestEnvWithLogger(t, zap.New(core))
	user := testutil.CreateUser(t, env.db, 0)

	env.gateway.mu.Lock()
	env.gateway.down = true
	env.gateway.mu.Unlock()

	status, resp := env.do(t, http.MethodPost, "/api/v1/topups", gin.H{"user_id": user.ID, "amount": 50000})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "GatewayError", resp.Error)

	entries := logs.FilterMessage("请求处理失败").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "gateway", entries[0].ContextMap()["kind"])
	assert.Equal(t, "/api/v1/topups", entries[0].ContextMap()["path"])
}

func TestClientErrorsAreNotLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	env := newTestEnvWithLogger(t, zap.New(core))

	status, _ := env.do(t, http.MethodGet, "/api/v1/users/9999/balance", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Zero(t, logs.Len())
}
