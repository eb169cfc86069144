package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"metering/domain/entities"
	"metering/domain/testhelpers"
	"metering/fallback"
)

type fixture struct {
	server    *Server
	gateway   *testhelpers.MockLedgerGateway
	tracker   *testhelpers.MockSessionTracker
	processor *testhelpers.MockCreditProcessor
	store     *fallback.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := fallback.NewStore(filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &fixture{
		gateway:   &testhelpers.MockLedgerGateway{},
		tracker:   &testhelpers.MockSessionTracker{},
		processor: &testhelpers.MockCreditProcessor{},
		store:     store,
	}
	f.server = NewServer(":0", f.gateway, f.tracker, f.processor, store)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_GetBalance(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetBalance", mock.Anything, "user-1").
		Return(&entities.UserBalance{UserID: "user-1", RemainingMinutes: 77, TotalPurchased: 80, TotalConsumed: 3}, nil)

	rec := f.do(t, http.MethodGet, "/v1/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[balanceResponse](t, rec)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, int64(77), resp.RemainingMinutes)
}

func TestServer_GetBalanceStorageDown(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("GetBalance", mock.Anything, "user-1").
		Return(nil, entities.ErrStorageUnavailable)

	rec := f.do(t, http.MethodGet, "/v1/users/user-1/balance", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_InitializeBalance(t *testing.T) {
	f := newFixture(t)
	f.gateway.On("Initialize", mock.Anything, "user-1").
		Return(&entities.UserBalance{UserID: "user-1"}, nil)

	rec := f.do(t, http.MethodPost, "/v1/users/user-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[balanceResponse](t, rec)
	assert.Equal(t, int64(0), resp.RemainingMinutes)
}

func TestServer_StartSession(t *testing.T) {
	f := newFixture(t)
	f.tracker.On("StartSession", mock.Anything, "user-1", "char-1").
		Return(&entities.StartSessionResult{SessionID: "sess-1", CanStart: true, RemainingMinutes: 10}, nil)

	rec := f.do(t, http.MethodPost, "/v1/sessions", startSessionRequest{UserID: "user-1", CharacterID: "char-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[startSessionResponse](t, rec)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.True(t, resp.CanStart)
	assert.False(t, resp.Degraded)
}

func TestServer_StartSessionRefused(t *testing.T) {
	f := newFixture(t)
	f.tracker.On("StartSession", mock.Anything, "user-1", "").
		Return(&entities.StartSessionResult{CanStart: false, RemainingMinutes: 0}, nil)

	rec := f.do(t, http.MethodPost, "/v1/sessions", startSessionRequest{UserID: "user-1"})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	resp := decode[startSessionResponse](t, rec)
	assert.False(t, resp.CanStart)
}

func TestServer_StartSessionMissingUser(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/sessions", map[string]string{"character_id": "char-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_StartSessionFailsOverToFallback(t *testing.T) {
	f := newFixture(t)
	f.tracker.On("StartSession", mock.Anything, "user-1", "char-1").
		Return(nil, entities.ErrStorageUnavailable)

	rec := f.do(t, http.MethodPost, "/v1/sessions", startSessionRequest{UserID: "user-1", CharacterID: "char-1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	resp := decode[startSessionResponse](t, rec)
	assert.True(t, resp.CanStart)
	assert.True(t, resp.Degraded)
	require.NotEmpty(t, resp.SessionID)

	session, err := f.store.GetSession(t.Context(), resp.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.True(t, session.IsOpen())
}

func TestServer_EndSession(t *testing.T) {
	f := newFixture(t)
	f.tracker.On("EndSession", mock.Anything, "sess-1").
		Return(&entities.EndSessionResult{SessionID: "sess-1", DurationSeconds: 125, MinutesBilled: 3, RemainingMinutes: 77}, nil)

	rec := f.do(t, http.MethodPost, "/v1/sessions/sess-1/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[endSessionResponse](t, rec)
	assert.Equal(t, int64(3), resp.MinutesBilled)
	assert.Equal(t, int64(77), resp.RemainingMinutes)
}

func TestServer_EndSessionUnknown(t *testing.T) {
	f := newFixture(t)
	f.tracker.On("EndSession", mock.Anything, "sess-404").
		Return(nil, entities.ErrSessionNotFound)

	rec := f.do(t, http.MethodPost, "/v1/sessions/sess-404/end", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_EndSessionFailsOverToFallback(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	session := &entities.Session{
		ID:          "sess-local",
		UserID:      "user-1",
		CharacterID: "char-1",
		State:       entities.SessionStateOpen,
		StartedAt:   time.Now().UTC().Add(-125 * time.Second),
	}
	require.NoError(t, f.store.CreateSession(ctx, session))

	f.tracker.On("EndSession", mock.Anything, "sess-local").
		Return(nil, entities.ErrStorageUnavailable)

	rec := f.do(t, http.MethodPost, "/v1/sessions/sess-local/end", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[endSessionResponse](t, rec)
	assert.True(t, resp.Degraded)
	assert.Equal(t, int64(3), resp.MinutesBilled)

	// The debit is queued under the session id for replay
	ops, err := f.store.PendingOps(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, fallback.OpKindDebit, ops[0].Kind)
	assert.Equal(t, "sess-local", ops[0].ReferenceID)
	assert.Equal(t, int64(3), ops[0].Amount)
}

func TestServer_PaymentWebhook(t *testing.T) {
	f := newFixture(t)
	confirmation := entities.PaymentConfirmation{PaymentID: "pay_1", UserID: "user-1", MinutesPurchased: 80}
	f.processor.On("ApplyPaymentConfirmation", mock.Anything, confirmation).
		Return(&entities.CreditResult{RemainingMinutes: 80}, nil)

	rec := f.do(t, http.MethodPost, "/v1/webhooks/payment", paymentWebhookRequest{
		PaymentID: "pay_1", UserID: "user-1", MinutesPurchased: 80,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[paymentWebhookResponse](t, rec)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, int64(80), resp.RemainingMinutes)
}

func TestServer_PaymentWebhookMalformed(t *testing.T) {
	f := newFixture(t)
	confirmation := entities.PaymentConfirmation{UserID: "user-1", MinutesPurchased: 80}
	f.processor.On("ApplyPaymentConfirmation", mock.Anything, confirmation).
		Return(nil, entities.ErrInvalidEvent)

	rec := f.do(t, http.MethodPost, "/v1/webhooks/payment", paymentWebhookRequest{
		UserID: "user-1", MinutesPurchased: 80,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PaymentWebhookStorageDown(t *testing.T) {
	f := newFixture(t)
	confirmation := entities.PaymentConfirmation{PaymentID: "pay_1", UserID: "user-1", MinutesPurchased: 80}
	f.processor.On("ApplyPaymentConfirmation", mock.Anything, confirmation).
		Return(nil, entities.ErrStorageUnavailable)

	rec := f.do(t, http.MethodPost, "/v1/webhooks/payment", paymentWebhookRequest{
		PaymentID: "pay_1", UserID: "user-1", MinutesPurchased: 80,
	})
	// 503 asks the payment processor to redeliver
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
