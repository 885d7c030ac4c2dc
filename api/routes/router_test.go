package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koipond/koipond-backend/internal/checkout"
	"github.com/koipond/koipond-backend/pkg/auth"
	"github.com/koipond/koipond-backend/pkg/config"
	"github.com/koipond/koipond-backend/pkg/db/models"
	"github.com/koipond/koipond-backend/pkg/enums"
	"github.com/koipond/koipond-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "test:" + scope + ":" + id
}

type countingCheckout struct {
	calls int
}

func (c *countingCheckout) CreateOrder(_ context.Context, input checkout.CreateOrderInput) ([]checkout.VendorResult, error) {
	c.calls++
	shopID := uuid.New()
	return []checkout.VendorResult{{ShopID: shopID, Order: &models.Order{ID: uuid.New(), ShopID: shopID, BuyerID: input.BuyerID}}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:          config.AppConfig{Env: "test", CORSAllowedOrigins: []string{"http://localhost:3000"}},
		JWT:          config.JWTConfig{Secret: "router-secret", Issuer: "koipond-test"},
		FeatureFlags: config.FeatureFlagsConfig{IdempotencyTTL: time.Hour},
	}
}

func testRouter(t *testing.T, deps Deps) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	deps.DB = stubPinger{}
	deps.Redis = stubPinger{}
	if deps.Idempotency == nil {
		deps.Idempotency = &memoryStore{data: map[string]string{}}
	}
	return NewRouter(cfg, logger.Nop(), deps), cfg
}

func bearer(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, auth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "koipond_router_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router, _ := testRouter(t, Deps{Gatherer: reg})

	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "koipond_router_test_total 1")
}

func TestAPIRequiresToken(t *testing.T) {
	router, _ := testRouter(t, Deps{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	router, cfg := testRouter(t, Deps{})
	paths := []string{
		"/api/v1/admin/orders/" + uuid.NewString() + "/status",
		"/api/v1/admin/reports/" + uuid.NewString() + "/resolve",
		"/api/v1/admin/withdrawals/" + uuid.NewString() + "/approve",
		"/api/v1/admin/deposits",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set("Authorization", bearer(t, cfg, enums.UserRoleBuyer))
		req.Header.Set("Idempotency-Key", "k")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestCheckoutIsIdempotent(t *testing.T) {
	svc := &countingCheckout{}
	router, cfg := testRouter(t, Deps{Checkout: svc})
	token := bearer(t, cfg, enums.UserRoleBuyer)
	body := fmt.Sprintf(`{"buyer_name":"Lan","buyer_phone":"0901","ship_type":"standard","items":[{"product_id":%q,"quantity":1}]}`, uuid.NewString())

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
		req.Header.Set("Authorization", token)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, send("").Code)
	assert.Equal(t, 0, svc.calls)

	first := send("checkout-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := send("checkout-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, svc.calls)
}
