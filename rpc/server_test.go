package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"escrowd/core/events"
	"escrowd/core/state"
	"escrowd/crypto"
	"escrowd/native/escrow"
	"escrowd/native/params"
	"escrowd/storage"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "escrowd-test"
	testAudience = "escrowd"
	testNow      = int64(1_700_000_000)
	testDeadline = testNow + 3600
)

func testAddr(b byte) crypto.Address {
	var addr crypto.Address
	addr[crypto.AddressLength-1] = b
	return addr
}

var (
	owner  = testAddr(0xf0)
	buyer  = testAddr(0x01)
	seller = testAddr(0x02)
	judge  = testAddr(0x03)
)

type testAPI struct {
	server    *Server
	engine    *escrow.Engine
	receivers *escrow.Receivers
	stream    *events.Broadcaster
}

func newTestAPI(t *testing.T, cfg Config) *testAPI {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { _ = db.Close() })
	mgr := state.NewManager(db)
	require.NoError(t, mgr.Update(func(tx *state.Tx) error {
		return tx.Credit(buyer, big.NewInt(1_000_000))
	}))

	engine, err := escrow.NewEngine(250)
	require.NoError(t, err)
	gate := params.NewGate(mgr, owner)
	receivers := escrow.NewReceivers()
	stream := events.NewBroadcaster()
	engine.SetState(mgr)
	engine.SetGate(gate)
	engine.SetFeeRecipient(owner)
	engine.SetReceivers(receivers)
	engine.SetEmitter(stream)
	engine.SetNowFunc(func() int64 { return testNow })

	if cfg.Auth.HMACSecret == "" {
		cfg.Auth = AuthConfig{HMACSecret: testSecret, Issuer: testIssuer, Audience: testAudience}
	}
	if cfg.RateLimitPerSec == 0 {
		cfg.RateLimitPerSec = 1000
		cfg.RateLimitBurst = 1000
	}
	server, err := NewServer(engine, stream, cfg, nil)
	require.NoError(t, err)
	return &testAPI{server: server, engine: engine, receivers: receivers, stream: stream}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func tokenFor(t *testing.T, caller crypto.Address) string {
	return signToken(t, testSecret, jwt.MapClaims{
		"sub": caller.String(),
		"iss": testIssuer,
		"aud": testAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
}

func (a *testAPI) do(t *testing.T, caller crypto.Address, method, path string, body interface{}) *httptest.ResponseRecorder {
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
	if !caller.IsZero() {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, caller))
	}
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (a *testAPI) create(t *testing.T) uint64 {
	t.Helper()
	rec := a.do(t, buyer, http.MethodPost, "/v1/escrows", createRequest{
		Seller:   seller.String(),
		Arbiter:  judge.String(),
		Deadline: testDeadline,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[createResponse](t, rec).ID
}

func TestEscrowLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t, Config{})
	id := api.create(t)
	require.Equal(t, uint64(0), id)

	rec := api.do(t, buyer, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/fund", id), fundRequest{Value: "10000"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	funded := decode[escrowJSON](t, rec)
	require.Equal(t, "funded", funded.Status)
	require.Equal(t, "9750", funded.DepositedAmount)
	require.Equal(t, "250", funded.PlatformFee)

	rec = api.do(t, seller, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/confirm", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, decode[escrowJSON](t, rec).SellerConfirmedDelivery)

	rec = api.do(t, buyer, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/release", id), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "completed", decode[escrowJSON](t, rec).Status)

	rec = api.do(t, judge, http.MethodGet, "/v1/accounts/"+seller.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "9750", decode[accountJSON](t, rec).Balance)

	rec = api.do(t, judge, http.MethodGet, "/v1/accounts/"+owner.String(), nil)
	require.Equal(t, "250", decode[accountJSON](t, rec).AccumulatedFees)

	rec = api.do(t, judge, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[statusJSON](t, rec)
	require.False(t, status.Paused)
	require.Equal(t, uint32(250), status.FeeBps)
	require.Equal(t, owner.String(), status.FeeRecipient)
	require.Equal(t, uint64(1), status.NextID)
}

func TestAuthentication(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, crypto.ZeroAddress, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	cases := map[string]string{
		"wrong secret": signToken(t, "other", jwt.MapClaims{"sub": buyer.String(), "iss": testIssuer, "aud": testAudience}),
		"wrong issuer": signToken(t, testSecret, jwt.MapClaims{"sub": buyer.String(), "iss": "evil", "aud": testAudience}),
		"no audience":  signToken(t, testSecret, jwt.MapClaims{"sub": buyer.String(), "iss": testIssuer}),
		"bad subject":  signToken(t, testSecret, jwt.MapClaims{"sub": "nobody", "iss": testIssuer, "aud": testAudience}),
		"expired": signToken(t, testSecret, jwt.MapClaims{
			"sub": buyer.String(), "iss": testIssuer, "aud": testAudience,
			"exp": time.Now().Add(-time.Hour).Unix(),
		}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			api.server.Handler().ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/status?access_token="+tokenFor(t, buyer), nil)
	rec = httptest.NewRecorder()
	api.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticatorResolvesCaller(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, nil)
	caller, err := auth.Authenticate(signToken(t, testSecret, jwt.MapClaims{"sub": seller.Hex()}))
	require.NoError(t, err)
	require.Equal(t, seller, caller)

	_, err = auth.Authenticate(signToken(t, testSecret, jwt.MapClaims{"sub": crypto.ZeroAddress.String()}))
	require.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": seller.String()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.Authenticate(unsigned)
	require.Error(t, err)
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t, Config{})
	id := api.create(t)
	path := func(action string) string { return fmt.Sprintf("/v1/escrows/%d/%s", id, action) }

	rec := api.do(t, buyer, http.MethodPost, "/v1/escrows", createRequest{Seller: buyer.String(), Arbiter: judge.String(), Deadline: testDeadline})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "validation", decode[errorResponse](t, rec).Error.Code)

	rec = api.do(t, buyer, http.MethodPost, "/v1/escrows", map[string]interface{}{"seller": seller.String(), "bogus": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, buyer, http.MethodGet, "/v1/escrows/not-a-number", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, buyer, http.MethodGet, "/v1/escrows/77", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, seller, http.MethodPost, path("fund"), fundRequest{Value: "100"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, buyer, http.MethodPost, path("fund"), fundRequest{Value: "1.5"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, buyer, http.MethodPost, path("fund"), fundRequest{Value: "0"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, buyer, http.MethodPost, path("fund"), fundRequest{Value: "1000000000"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, buyer, http.MethodPost, path("release"), nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, buyer, http.MethodPost, path("fund"), fundRequest{Value: "1000"})
	require.Equal(t, http.StatusOK, rec.Code)

	api.receivers.Register(seller, escrow.ReceiverFunc(func(context.Context, escrow.Payment) error {
		return errors.New("rejected")
	}))
	rec = api.do(t, buyer, http.MethodPost, path("release"), nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "transfer", decode[errorResponse](t, rec).Error.Code)
}

func TestAdminPause(t *testing.T) {
	api := newTestAPI(t, Config{})

	rec := api.do(t, buyer, http.MethodPost, "/v1/admin/pause", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, owner, http.MethodPost, "/v1/admin/pause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode[pauseJSON](t, rec).Paused)

	rec = api.do(t, owner, http.MethodPost, "/v1/admin/pause", nil)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, buyer, http.MethodPost, "/v1/escrows", createRequest{Seller: seller.String(), Arbiter: judge.String(), Deadline: testDeadline})
	require.Equal(t, http.StatusLocked, rec.Code)

	rec = api.do(t, owner, http.MethodPost, "/v1/admin/unpause", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[pauseJSON](t, rec).Paused)
	api.create(t)
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, Config{RateLimitPerSec: 0.001, RateLimitBurst: 2})
	for i := 0; i < 2; i++ {
		rec := api.do(t, buyer, http.MethodGet, "/v1/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := api.do(t, buyer, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Buckets are per caller.
	rec = api.do(t, seller, http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	now := time.Unix(testNow, 0)
	limiter.clockNow = func() time.Time { return now }
	limiter.obtainLimiter("a")
	now = now.Add(2 * visitorTTL)
	limiter.obtainLimiter("b")
	require.Len(t, limiter.visitors, 1)
	require.Contains(t, limiter.visitors, "b")
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t, Config{})
	id := api.create(t)
	rec := api.do(t, buyer, http.MethodPost, fmt.Sprintf("/v1/escrows/%d/fund", id), fundRequest{Value: "4000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, crypto.ZeroAddress, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[healthJSON](t, rec)
	require.Equal(t, "ok", health.Status)
	require.Equal(t, "4000", health.Vault)
	require.Equal(t, "4000", health.Required)

	rec = api.do(t, crypto.ZeroAddress, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "escrowd_custody_vault_balance"))
}

func TestStatusFor(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, statusFor(escrow.ErrInvalidDeadline))
	require.Equal(t, http.StatusForbidden, statusFor(params.ErrNotOwner))
	require.Equal(t, http.StatusNotFound, statusFor(escrow.ErrEscrowNotFound))
	require.Equal(t, http.StatusConflict, statusFor(escrow.ErrReentrantCall))
	require.Equal(t, http.StatusLocked, statusFor(params.ErrPaused))
	require.Equal(t, http.StatusUnprocessableEntity, statusFor(state.ErrInsufficientBalance))
	require.Equal(t, http.StatusBadGateway, statusFor(fmt.Errorf("%w: %w", escrow.ErrTransferFailed, errors.New("x"))))
	require.Equal(t, http.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}

func TestEventStream(t *testing.T) {
	api := newTestAPI(t, Config{})
	srv := httptest.NewServer(api.server.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/stream?escrow=1"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + tokenFor(t, judge)}},
	})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool { return api.stream.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	api.create(t)
	api.create(t)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var rec events.Record
	require.NoError(t, json.Unmarshal(data, &rec))
	require.Equal(t, events.TypeEscrowCreated, rec.Type)
	require.Equal(t, "1", rec.EscrowID())
}
