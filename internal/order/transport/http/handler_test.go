package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sakashimaa/go-marketplace/internal/catalog"
	inventoryDomain "github.com/sakashimaa/go-marketplace/internal/inventory/domain"
	inventoryRepository "github.com/sakashimaa/go-marketplace/internal/inventory/repository"
	inventoryService "github.com/sakashimaa/go-marketplace/internal/inventory/service"
	"github.com/sakashimaa/go-marketplace/internal/order/domain"
	"github.com/sakashimaa/go-marketplace/internal/order/repository"
	"github.com/sakashimaa/go-marketplace/internal/order/service"
	generalDomain "github.com/sakashimaa/go-marketplace/pkg/domain"
	outboxRepository "github.com/sakashimaa/go-marketplace/pkg/outbox/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = []byte("test-secret")

type testServer struct {
	app    *fiber.App
	ledger *inventoryRepository.MemoryLedger
	outbox *outboxRepository.MemoryOutbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	ledger := inventoryRepository.NewMemoryLedger(
		inventoryDomain.StockRecord{ProductID: 1, Name: "Keyboard", Price: 1000, Stock: 10},
		inventoryDomain.StockRecord{ProductID: 2, Name: "Mouse", Price: 250, Stock: 1},
	)
	products := catalog.NewMemoryCatalog(
		catalog.Product{ID: 1, Name: "Keyboard", Price: 1000},
		catalog.Product{ID: 2, Name: "Mouse", Price: 250},
	)
	outbox := outboxRepository.NewMemoryOutbox()
	orders := repository.NewMemoryOrderRepository(outbox)

	ledgerSvc := inventoryService.NewLedgerService(ledger, logger)
	svc := service.NewOrderService(orders, ledgerSvc, products, logger)

	app := NewApp(LimiterConfig{})
	RegisterRoutes(app, NewOrderHandler(svc, time.Second, logger), NewStockHandler(ledgerSvc, time.Second, logger), testSecret)

	return &testServer{app: app, ledger: ledger, outbox: outbox}
}

func token(t *testing.T, userID int64, roles ...string) string {
	t.Helper()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}).SignedString(testSecret)
	require.NoError(t, err)

	return signed
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}

	return resp.StatusCode, out
}

func createBody(lines ...[2]int64) map[string]any {
	items := make([]map[string]int64, 0, len(lines))
	for _, l := range lines {
		items = append(items, map[string]int64{"product_id": l[0], "quantity": l[1]})
	}

	return map[string]any{"items": items, "shipping_address": "221B Baker Street"}
}

func TestOrders_RequireToken(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, fiber.MethodGet, "/api/orders", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, code)

	code, _ = s.do(t, fiber.MethodGet, "/api/orders", "not-a-jwt", nil)
	require.Equal(t, fiber.StatusUnauthorized, code)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: 1}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	code, _ = s.do(t, fiber.MethodGet, "/api/orders", forged, nil)
	require.Equal(t, fiber.StatusUnauthorized, code)
}

func TestOrders_CreateGetAndList(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, 1, "USER")

	code, created := s.do(t, fiber.MethodPost, "/api/orders", alice, createBody([2]int64{1, 2}, [2]int64{2, 1}))
	require.Equal(t, fiber.StatusCreated, code)
	require.Equal(t, "PENDING", created["status"])
	require.EqualValues(t, 2250, created["total_amount"])

	id := created["id"].(string)

	code, got := s.do(t, fiber.MethodGet, "/api/orders/"+id, alice, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, id, got["id"])

	code, _ = s.do(t, fiber.MethodGet, "/api/orders/"+id, token(t, 2, "USER"), nil)
	require.Equal(t, fiber.StatusForbidden, code)

	code, list := s.do(t, fiber.MethodGet, "/api/orders?limit=10", alice, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, list["orders"], 1)

	code, list = s.do(t, fiber.MethodGet, "/api/orders", token(t, 2, "USER"), nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Len(t, list["orders"], 0)

	code, _ = s.do(t, fiber.MethodGet, "/api/orders/unknown", alice, nil)
	require.Equal(t, fiber.StatusNotFound, code)
}

func TestOrders_CreateRejectsInvalidBody(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, 1, "USER")

	code, body := s.do(t, fiber.MethodPost, "/api/orders", alice, map[string]any{
		"items":            []map[string]int64{{"product_id": 1, "quantity": 0}},
		"shipping_address": "221B Baker Street",
	})
	require.Equal(t, fiber.StatusBadRequest, code)
	require.Contains(t, body["fields"], "items[0].quantity")

	code, _ = s.do(t, fiber.MethodPost, "/api/orders", alice, map[string]any{"items": []any{}})
	require.Equal(t, fiber.StatusBadRequest, code)

	require.Empty(t, s.outbox.Pending())
}

func TestOrders_CreateInsufficientStockIsConflict(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, fiber.MethodPost, "/api/orders", token(t, 1, "USER"), createBody([2]int64{1, 3}, [2]int64{2, 5}))
	require.Equal(t, fiber.StatusConflict, code)

	rec, err := s.ledger.Stock(t.Context(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(10), rec.Stock)
}

func TestOrders_CreateRejectsOversizedLine(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, fiber.MethodPost, "/api/orders", token(t, 1, "USER"), createBody([2]int64{1, 10_001}))
	require.Equal(t, fiber.StatusBadRequest, code)
	require.Contains(t, body["fields"], "items[0].quantity")
}

func TestOrders_CreateUnknownProductIsNotFound(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(t, fiber.MethodPost, "/api/orders", token(t, 1, "USER"), createBody([2]int64{99, 1}))
	require.Equal(t, fiber.StatusNotFound, code)
}

func TestOrders_UpdateStatus(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, 1, "USER")
	admin := token(t, 7, domain.RoleAdmin)

	_, created := s.do(t, fiber.MethodPost, "/api/orders", alice, createBody([2]int64{1, 1}))
	path := fmt.Sprintf("/api/orders/%s/status", created["id"])

	code, _ := s.do(t, fiber.MethodPatch, path, alice, map[string]string{"status": "CANCELLED"})
	require.Equal(t, fiber.StatusForbidden, code)

	code, _ = s.do(t, fiber.MethodPatch, path, admin, map[string]string{"status": "LOST"})
	require.Equal(t, fiber.StatusBadRequest, code)

	code, updated := s.do(t, fiber.MethodPatch, path, admin, map[string]string{"status": "CANCELLED"})
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "CANCELLED", updated["status"])

	code, _ = s.do(t, fiber.MethodPatch, path, admin, map[string]string{"status": "PENDING"})
	require.Equal(t, fiber.StatusConflict, code)
}

func TestProducts_Availability(t *testing.T) {
	s := newTestServer(t)
	alice := token(t, 1, "USER")

	code, body := s.do(t, fiber.MethodGet, "/api/products/2/availability?quantity=1", alice, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, true, body["available"])

	code, body = s.do(t, fiber.MethodGet, "/api/products/2/availability?quantity=2", alice, nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, false, body["available"])

	code, _ = s.do(t, fiber.MethodGet, "/api/products/99/availability?quantity=1", alice, nil)
	require.Equal(t, fiber.StatusNotFound, code)

	code, _ = s.do(t, fiber.MethodGet, "/api/products/1/availability", alice, nil)
	require.Equal(t, fiber.StatusBadRequest, code)

	code, _ = s.do(t, fiber.MethodGet, "/api/products/1/availability?quantity=1", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, fiber.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, code)
	require.Equal(t, "ok", body["status"])

	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "go_goroutines")
}

func TestMapErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("x: %w", generalDomain.ErrNotFound), fiber.StatusNotFound},
		{fmt.Errorf("x: %w", generalDomain.ErrInsufficientStock), fiber.StatusConflict},
		{fmt.Errorf("x: %w", generalDomain.ErrInvalidTransition), fiber.StatusConflict},
		{fmt.Errorf("x: %w", generalDomain.ErrConflict), fiber.StatusConflict},
		{fmt.Errorf("x: %w", generalDomain.ErrForbidden), fiber.StatusForbidden},
		{fmt.Errorf("x: %w", generalDomain.ErrInvalidInput), fiber.StatusBadRequest},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}

	for _, tc := range cases {
		require.Equal(t, tc.code, mapErrorCode(tc.err), tc.err.Error())
	}
}
