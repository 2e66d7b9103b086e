package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vaultcore/vaultcore/internal/bootstrap"
	"github.com/vaultcore/vaultcore/internal/config"
	"github.com/vaultcore/vaultcore/internal/logging"
)

type client struct {
	t   *testing.T
	app *fiber.App
}

func (c client) do(method, path, token string, body any, headers map[string]string) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp.StatusCode, out
}

func newTestServer(t *testing.T) client {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	cfg := config.Config{
		AppName:         "VaultCore",
		AppEnv:          "development",
		Port:            "0",
		JWTSecret:       "0123456789abcdef0123456789abcdef",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		IdempotencyTTL:  time.Hour,
		BcryptCost:      bcrypt.MinCost,
		HashConcurrency: 2,
		LoginRateLimit:  5,
	}
	srv, err := New(bootstrap.Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()})
	require.NoError(t, err)
	return client{t: t, app: srv.App()}
}

func amount(t *testing.T, v any) decimal.Decimal {
	t.Helper()
	s, ok := v.(string)
	require.True(t, ok, "amount %v is not a string", v)
	return decimal.RequireFromString(s)
}

func (c client) register(username string) {
	c.t.Helper()
	status, body := c.do(fiber.MethodPost, "/api/v1/identity/register", "", map[string]any{
		"username":  username,
		"email":     username + "@example.com",
		"full_name": "Test " + username,
		"password":  "SecurePass@123",
	}, nil)
	require.Equal(c.t, fiber.StatusCreated, status, body)
}

func (c client) login(username string) map[string]any {
	c.t.Helper()
	status, body := c.do(fiber.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"username": username,
		"password": "SecurePass@123",
	}, nil)
	require.Equal(c.t, fiber.StatusOK, status, body)
	return body
}

func (c client) open(token, typ string) string {
	c.t.Helper()
	status, body := c.do(fiber.MethodPost, "/api/v1/accounts", token, map[string]any{"account_type": typ, "currency": "USD"}, nil)
	require.Equal(c.t, fiber.StatusCreated, status, body)
	return body["id"].(string)
}

func TestBankingFlow(t *testing.T) {
	c := newTestServer(t)

	status, _ := c.do(fiber.MethodGet, "/healthz", "", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)

	c.register("john_doe")
	c.register("jane_smith")
	status, _ = c.do(fiber.MethodPost, "/api/v1/identity/register", "", map[string]any{
		"username": "john_doe", "email": "other@example.com", "full_name": "John Again", "password": "SecurePass@123",
	}, nil)
	assert.Equal(t, fiber.StatusConflict, status)

	john := c.login("john_doe")["access_token"].(string)
	jane := c.login("jane_smith")["access_token"].(string)

	johnChecking := c.open(john, "asset")
	johnEquity := c.open(john, "equity")
	janeChecking := c.open(jane, "asset")

	status, body := c.do(fiber.MethodPost, "/api/v1/ledger/transactions", john, map[string]any{
		"transaction_id": "TXN1001",
		"entries": []map[string]any{
			{"account_id": johnChecking, "amount": "100.00", "direction": "DEBIT", "description": "Initial deposit"},
			{"account_id": johnEquity, "amount": "100.00", "direction": "CREDIT", "description": "Initial deposit"},
		},
	}, nil)
	require.Equal(t, fiber.StatusCreated, status, body)

	status, _ = c.do(fiber.MethodPost, "/api/v1/ledger/transactions", john, map[string]any{
		"transaction_id": "TXN-bad",
		"entries": []map[string]any{
			{"account_id": johnChecking, "amount": "10.00", "direction": "DEBIT"},
			{"account_id": johnEquity, "amount": "9.00", "direction": "CREDIT"},
		},
	}, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = c.do(fiber.MethodPost, "/api/v1/ledger/transactions", jane, map[string]any{
		"transaction_id": "TXN-steal",
		"entries": []map[string]any{
			{"account_id": janeChecking, "amount": "10.00", "direction": "DEBIT"},
			{"account_id": johnChecking, "amount": "10.00", "direction": "CREDIT"},
		},
	}, nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	transfer := map[string]any{"from_account_id": johnChecking, "to_account_id": janeChecking, "amount": "25.00", "client_tx_id": "t-1"}
	status, _ = c.do(fiber.MethodPost, "/api/v1/transfers", john, transfer, nil)
	assert.Equal(t, fiber.StatusBadRequest, status, "idempotency key is required")

	idem := map[string]string{"Idempotency-Key": "k-1"}
	status, first := c.do(fiber.MethodPost, "/api/v1/transfers", john, transfer, idem)
	require.Equal(t, fiber.StatusCreated, status, first)
	assert.Equal(t, "TRF-t-1", first["transaction_id"])
	assert.NotContains(t, first, "to_balance", "recipient balance stays private")
	status, replay := c.do(fiber.MethodPost, "/api/v1/transfers", john, transfer, idem)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, first, replay)

	status, body = c.do(fiber.MethodGet, "/api/v1/accounts/"+janeChecking, jane, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, amount(t, body["balance"]).Equal(decimal.NewFromInt(25)))

	status, body = c.do(fiber.MethodGet, "/api/v1/summary", john, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	totals := body["totals"].([]any)
	require.Len(t, totals, 1)
	assert.True(t, amount(t, totals[0].(map[string]any)["total"]).Equal(decimal.NewFromInt(175)))

	status, body = c.do(fiber.MethodGet, "/api/v1/accounts/"+johnChecking+"/history?limit=1", john, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["entries"], 1)
	assert.Equal(t, true, body["has_more"])

	status, _ = c.do(fiber.MethodGet, "/api/v1/accounts/"+johnChecking+"/history", jane, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = c.do(fiber.MethodGet, "/api/v1/ledger/transactions/TXN1001", jane, nil, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	status, body = c.do(fiber.MethodGet, "/api/v1/ledger/transactions/TXN1001", john, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["entries"], 2)

	status, _ = c.do(fiber.MethodPost, "/api/v1/admin/accounts/"+johnChecking+"/status", john, map[string]any{"status": "SUSPENDED"}, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	status, _ = c.do(fiber.MethodPost, "/api/v1/ledger/transactions/TXN1001/reverse", john, nil, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestSessionLifecycle(t *testing.T) {
	c := newTestServer(t)
	c.register("john_doe")
	pair := c.login("john_doe")
	access := pair["access_token"].(string)
	refresh := pair["refresh_token"].(string)

	status, body := c.do(fiber.MethodGet, "/api/v1/me", access, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "john_doe", body["username"])

	status, rotated := c.do(fiber.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": refresh}, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, _ = c.do(fiber.MethodPost, "/api/v1/auth/refresh", "", map[string]any{"refresh_token": refresh}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = c.do(fiber.MethodGet, "/api/v1/me", rotated["access_token"].(string), nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status, "reuse revokes the whole session")

	fresh := c.login("john_doe")["access_token"].(string)
	status, _ = c.do(fiber.MethodPost, "/api/v1/auth/logout", fresh, nil, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = c.do(fiber.MethodGet, "/api/v1/me", fresh, nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestLoginRateLimit(t *testing.T) {
	c := newTestServer(t)
	c.register("john_doe")
	for i := 0; i < 5; i++ {
		status, _ := c.do(fiber.MethodPost, "/api/v1/auth/login", "", map[string]any{"username": "john_doe", "password": "Wrong@1234"}, nil)
		require.Equal(t, fiber.StatusUnauthorized, status)
	}
	status, _ := c.do(fiber.MethodPost, "/api/v1/auth/login", "", map[string]any{"username": "john_doe", "password": "SecurePass@123"}, nil)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
}
