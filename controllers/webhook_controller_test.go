package controllers

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"order-service/cache"
	"order-service/inventory"
	"order-service/models"
	"order-service/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests need a real redis because the webhook dedup lives there. Set
// ORDER_REDIS_ADDR to run them, e.g. localhost:6379
func openTestRedis(t *testing.T) {
	t.Helper()
	addr := os.Getenv("ORDER_REDIS_ADDR")
	if addr == "" {
		t.Skip("ORDER_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	require.NoError(t, client.Ping(context.Background()).Err())

	prev := cache.Client
	cache.Client = client
	t.Cleanup(func() {
		cache.Client = prev
		_ = client.Close()
	})
}

// stubWebhookStore drives the lifecycle service through the webhook handler
// with a controllable tracking-code lookup.
type stubWebhookStore struct {
	mu          sync.Mutex
	findErr     error
	status      models.OrderStatus
	transitions int
}

func (s *stubWebhookStore) FindIDByTrackingCode(ctx context.Context, trackingCode string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return 0, s.findErr
	}
	return 7, nil
}

func (s *stubWebhookStore) TransitionStatus(ctx context.Context, orderID int64, to models.OrderStatus, from []models.OrderStatus, trackingCode string, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.status == f {
			s.status = to
			s.transitions++
			return true, nil
		}
	}
	return false, nil
}

func (s *stubWebhookStore) setFindErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findErr = err
}

func (s *stubWebhookStore) transitionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitions
}

func (s *stubWebhookStore) Insert(ctx context.Context, order *models.Order) error {
	return errors.New("not implemented")
}

func (s *stubWebhookStore) GetByID(ctx context.Context, orderID, userID int64) (*models.Order, error) {
	return nil, sql.ErrNoRows
}

func (s *stubWebhookStore) ListByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	return nil, nil
}

func (s *stubWebhookStore) GetStatus(ctx context.Context, orderID, userID int64) (models.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

func (s *stubWebhookStore) ItemQuantities(ctx context.Context, orderID int64) ([]inventory.ItemQuantity, error) {
	return nil, nil
}

type stubLedger struct{}

func (stubLedger) Reserve(ctx context.Context, items []inventory.ItemQuantity) error { return nil }
func (stubLedger) Release(ctx context.Context, items []inventory.ItemQuantity) error { return nil }

func newWebhookRouter(t *testing.T, store *stubWebhookStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	prev := lifecycle
	lifecycle = &services.LifecycleService{Store: store, Ledger: stubLedger{}}
	t.Cleanup(func() { lifecycle = prev })
	SetWebhookToken("")

	r := gin.New()
	r.POST("/webhooks/carrier", CarrierWebhook)
	return r
}

func postWebhook(r *gin.Engine, orderCode, status string) *httptest.ResponseRecorder {
	body := fmt.Sprintf(`{"order_code":%q,"status":%q}`, orderCode, status)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/carrier", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// a delivery that failed mid-processing must not be remembered as seen, or
// the carrier's retry would be dropped as a duplicate for the dedup TTL
func TestCarrierWebhookFailedDeliveryCanBeRetried(t *testing.T) {
	openTestRedis(t)

	store := &stubWebhookStore{status: models.StatusConfirmed}
	r := newWebhookRouter(t, store)
	code := fmt.Sprintf("GHNTEST-%d", time.Now().UnixNano())

	store.setFindErr(errors.New("db connection lost"))
	w := postWebhook(r, code, "picked")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	key := fmt.Sprintf(cache.KeyWebhookDedup, code, "picked")
	exists, err := cache.Client.Exists(context.Background(), key).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	store.setFindErr(nil)
	w = postWebhook(r, code, "picked")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.transitionCount())
}

func TestCarrierWebhookDuplicateDeliveryDropped(t *testing.T) {
	openTestRedis(t)

	store := &stubWebhookStore{status: models.StatusConfirmed}
	r := newWebhookRouter(t, store)
	code := fmt.Sprintf("GHNTEST-%d", time.Now().UnixNano())

	w := postWebhook(r, code, "picked")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, store.transitionCount())

	// redelivery short-circuits on the dedup key
	w = postWebhook(r, code, "picked")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.transitionCount())
}
