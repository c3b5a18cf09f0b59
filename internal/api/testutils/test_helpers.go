package testutils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rongwang/envelope-wallet/internal/api"
	"github.com/rongwang/envelope-wallet/internal/idempotency"
	"github.com/rongwang/envelope-wallet/internal/models"
	"github.com/rongwang/envelope-wallet/internal/money"
	"github.com/rongwang/envelope-wallet/internal/repository"
	"github.com/rongwang/envelope-wallet/internal/service"
	"github.com/rongwang/envelope-wallet/internal/share"
)

const (
	TestShareSecret = "test-share-secret"
	TestShareBase   = "https://zappcash.test"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    *service.DefaultService
	Issuer     *share.Issuer
	TestUserID string
}

// SetupTestContext creates a new test context with an in-memory wallet
// repository. Every test gets a fresh user with the default 1000.00 USD.
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	repo := repository.NewMemoryRepository()
	issuer := share.NewIssuer(TestShareSecret, TestShareBase, time.Hour)

	svc := service.NewDefaultService(repo, service.Options{
		InitialBalance: money.New(100000, "USD"),
		Issuer:         issuer,
		Idempotency:    idempotency.NewStore[models.TransferResponse](100, time.Hour),
	})

	handler := api.NewHandler(svc, nil)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler.SetupRoutes(router)

	return &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Issuer:     issuer,
		TestUserID: uuid.New().String(),
	}
}

// CleanupTestContext waits for background work started by the test
func CleanupTestContext(t *TestContext) {
	t.Service.Wait()
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// UserHeaders returns headers naming the wallet owner
func UserHeaders(userID string) map[string]string {
	return map[string]string{
		api.UserIDHeader: userID,
	}
}

// IdempotentHeaders adds an idempotency key to the user headers
func IdempotentHeaders(userID, key string) map[string]string {
	h := UserHeaders(userID)
	h[api.IdempotencyKeyHeader] = key
	return h
}

// CreateEnvelope creates an envelope through the API and returns it
func CreateEnvelope(t *testing.T, tc *TestContext, userID string, req models.CreateEnvelopeRequest) models.EnvelopeView {
	t.Helper()

	w := PerformRequest(tc.Router, http.MethodPost, "/api/envelopes", req, UserHeaders(userID))
	if w.Code != http.StatusCreated {
		t.Fatalf("create envelope: status %d: %s", w.Code, w.Body.String())
	}

	var resp models.EnvelopeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create envelope: %v", err)
	}
	return resp.Envelope
}
