package restservice

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nftmarket/marketd/internal/core/application"
	"github.com/nftmarket/marketd/internal/infrastructure/db"
	watermillpublisher "github.com/nftmarket/marketd/internal/infrastructure/events/watermill"
	inmemorypayments "github.com/nftmarket/marketd/internal/infrastructure/payments/inmemory"
	"github.com/nftmarket/marketd/internal/interface/rest/interceptors"
	"github.com/stretchr/testify/require"
)

const (
	operator = "0x0pera70r"
	market   = "0xmarket"
	alice    = "0xa11ce"
	bob      = "0xb0b"
)

type testServer struct {
	*httptest.Server
	payments  *inmemorypayments.Ledger
	readiness *interceptors.ReadinessService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repoManager, err := db.NewService(db.ServiceConfig{
		DataStoreType:   "badger",
		DataStoreConfig: []interface{}{"", nil},
	})
	require.NoError(t, err)

	payments := inmemorypayments.NewPaymentService()
	svc, err := application.NewService(
		repoManager, payments, watermillpublisher.NewEventPublisher(), nil, nil,
		application.Config{
			OperatorAddress:      operator,
			RegistryOwnerAddress: market,
			MarketAddress:        market,
			DefaultFeeRateBps:    250,
			MaxPageSize:          10,
		},
	)
	require.NoError(t, err)

	readiness := interceptors.NewReadinessService()
	readiness.MarkAppServiceStarted()

	server := httptest.NewServer(newRouter(svc, readiness, "test"))
	t.Cleanup(func() {
		server.Close()
		svc.Stop()
	})
	return &testServer{server, payments, readiness}
}

func (s *testServer) do(
	t *testing.T, method, path, caller string, body any,
) (int, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reqBody = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(t, err)
		reqBody = strings.NewReader(string(buf))
	}

	req, err := http.NewRequest(method, s.URL+path, reqBody)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set(interceptors.CallerHeader, caller)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	// nolint
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get(interceptors.RequestIdHeader))

	var res map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return resp.StatusCode, res
}

func requireErrorResponse(
	t *testing.T, expectedStatus int, expectedName string, status int, res map[string]any,
) {
	t.Helper()
	require.Equal(t, expectedStatus, status, "unexpected response: %v", res)
	require.Equal(t, expectedName, res["name"])
	require.NotEmpty(t, res["message"])
}

func TestMarketFlow(t *testing.T) {
	s := newTestServer(t)

	status, res := s.do(t, http.MethodPost, "/v1/listings", alice, map[string]any{
		"metadataUri": "ipfs://first", "price": 1000,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)
	require.Equal(t, float64(1), res["assetId"])

	status, res = s.do(t, http.MethodGet, "/v1/listings/1", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, alice, res["seller"])
	require.Equal(t, float64(1000), res["price"])
	require.Equal(t, true, res["active"])

	status, res = s.do(t, http.MethodGet, "/v1/listings/count", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(1), res["active"])
	require.Equal(t, float64(1), res["totalEverListed"])

	status, res = s.do(t, http.MethodPost, "/v1/listings/1/buy", bob, map[string]any{
		"payment": 1000,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)
	require.Equal(t, alice, res["seller"])
	require.Equal(t, bob, res["buyer"])
	require.Equal(t, float64(25), res["fee"])
	require.Equal(t, float64(975), res["proceeds"])

	balance, err := s.payments.Balance(context.Background(), alice)
	require.NoError(t, err)
	require.Equal(t, uint64(975), balance)

	status, res = s.do(t, http.MethodPost, "/v1/listings/1/buy", bob, map[string]any{
		"payment": 1000,
	})
	requireErrorResponse(t, http.StatusBadRequest, "LISTING_NOT_ACTIVE", status, res)
	require.Equal(t, float64(10), res["code"])

	status, res = s.do(t, http.MethodGet, "/v1/assets/1/owner", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, bob, res["owner"])

	status, res = s.do(t, http.MethodGet, "/v1/assets/1/uri", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ipfs://first", res["tokenUri"])

	status, res = s.do(t, http.MethodGet, "/v1/treasury", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(250), res["feeRateBps"])
	require.Equal(t, float64(25), res["accruedBalance"])

	status, res = s.do(t, http.MethodPost, "/v1/treasury/withdraw", bob, map[string]any{
		"recipient": bob,
	})
	requireErrorResponse(t, http.StatusForbidden, "UNAUTHORIZED", status, res)

	status, res = s.do(t, http.MethodPost, "/v1/treasury/withdraw", operator, map[string]any{
		"recipient": operator,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)
	require.Equal(t, float64(25), res["amount"])

	status, res = s.do(t, http.MethodPost, "/v1/treasury/withdraw", operator, map[string]any{
		"recipient": operator,
	})
	requireErrorResponse(t, http.StatusBadRequest, "NOTHING_TO_WITHDRAW", status, res)

	status, res = s.do(t, http.MethodGet, "/v1/events?limit=10", "", nil)
	require.Equal(t, http.StatusOK, status)
	events, ok := res["events"].([]any)
	require.True(t, ok)
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.(map[string]any)["type"].(string))
	}
	require.Equal(t, "minted", types[0])
	require.Contains(t, types, "listed")
	require.Contains(t, types, "sold")
	require.Contains(t, types, "fees_withdrawn")

	status, res = s.do(t, http.MethodGet, "/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(0), res["activeListings"])
	require.Equal(t, float64(1), res["totalEverListed"])
	require.Equal(t, float64(1), res["lastAssetId"])
}

func TestListingLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, res := s.do(t, http.MethodPost, "/v1/assets", market, map[string]any{
		"recipient": alice, "metadataUri": "ipfs://minted",
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)
	require.Equal(t, float64(1), res["assetId"])

	status, res = s.do(t, http.MethodPost, "/v1/listings/1", alice, map[string]any{
		"price": 500,
	})
	requireErrorResponse(t, http.StatusForbidden, "NOT_APPROVED", status, res)

	status, res = s.do(t, http.MethodGet, "/v1/listings/count", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, float64(0), res["totalEverListed"])

	status, res = s.do(t, http.MethodPost, "/v1/assets/1/approve", alice, map[string]any{
		"spender": market,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(
		t, http.MethodGet,
		fmt.Sprintf("/v1/assets/1/approved?owner=%s&spender=%s", alice, market), "", nil,
	)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, res["approved"])

	status, res = s.do(t, http.MethodPost, "/v1/listings/1", alice, map[string]any{
		"price": 500,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(t, http.MethodPost, "/v1/listings/1/price", bob, map[string]any{
		"price": 700,
	})
	requireErrorResponse(t, http.StatusForbidden, "NOT_SELLER", status, res)

	status, res = s.do(t, http.MethodPost, "/v1/listings/1/price", alice, map[string]any{
		"price": 700,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(t, http.MethodGet, "/v1/listings?offset=0&limit=5", "", nil)
	require.Equal(t, http.StatusOK, status)
	listings, ok := res["listings"].([]any)
	require.True(t, ok)
	require.Len(t, listings, 1)
	require.Equal(t, float64(700), listings[0].(map[string]any)["price"])

	status, res = s.do(t, http.MethodPost, "/v1/listings/1/buy", alice, map[string]any{
		"payment": 700,
	})
	requireErrorResponse(t, http.StatusBadRequest, "SELF_PURCHASE", status, res)

	status, res = s.do(t, http.MethodPost, "/v1/listings/1/buy", bob, map[string]any{
		"payment": 701,
	})
	requireErrorResponse(t, http.StatusBadRequest, "WRONG_PAYMENT_AMOUNT", status, res)
	require.Equal(t, map[string]any{
		"asset_id": "1", "price": "700", "received": "701",
	}, res["metadata"])

	s.payments.Reject(alice)
	status, res = s.do(t, http.MethodPost, "/v1/listings/1/buy", bob, map[string]any{
		"payment": 700,
	})
	requireErrorResponse(t, http.StatusConflict, "PAYOUT_FAILED", status, res)
	s.payments.Accept(alice)

	status, res = s.do(t, http.MethodGet, "/v1/listings/1", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, res["active"])

	status, res = s.do(t, http.MethodDelete, "/v1/listings/1", alice, nil)
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(t, http.MethodDelete, "/v1/listings/1", alice, nil)
	requireErrorResponse(t, http.StatusBadRequest, "LISTING_NOT_ACTIVE", status, res)

	status, res = s.do(t, http.MethodPost, "/v1/assets/1/transfer", alice, map[string]any{
		"from": alice, "to": bob,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(t, http.MethodPost, "/v1/assets/operators", bob, map[string]any{
		"operator": alice, "approved": true,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(t, http.MethodPost, "/v1/assets/1/transfer", alice, map[string]any{
		"from": bob, "to": alice,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	status, res = s.do(t, http.MethodGet, "/v1/assets/1/owner", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, alice, res["owner"])
}

func TestErrorResponses(t *testing.T) {
	s := newTestServer(t)

	fixtures := []struct {
		name           string
		method         string
		path           string
		caller         string
		body           any
		expectedStatus int
		expectedName   string
	}{
		{
			name:           "missing caller",
			method:         http.MethodPost,
			path:           "/v1/listings",
			body:           map[string]any{"metadataUri": "ipfs://x", "price": 1},
			expectedStatus: http.StatusForbidden,
			expectedName:   "UNAUTHORIZED",
		},
		{
			name:           "malformed asset id",
			method:         http.MethodGet,
			path:           "/v1/assets/abc/owner",
			expectedStatus: http.StatusBadRequest,
			expectedName:   "INVALID_REQUEST",
		},
		{
			name:           "malformed body",
			method:         http.MethodPost,
			path:           "/v1/listings",
			caller:         alice,
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			expectedName:   "INVALID_REQUEST",
		},
		{
			name:           "malformed query",
			method:         http.MethodGet,
			path:           "/v1/listings?limit=-1",
			expectedStatus: http.StatusBadRequest,
			expectedName:   "INVALID_REQUEST",
		},
		{
			name:           "unknown asset",
			method:         http.MethodGet,
			path:           "/v1/assets/42/owner",
			expectedStatus: http.StatusNotFound,
			expectedName:   "ASSET_NOT_FOUND",
		},
		{
			name:           "page too large",
			method:         http.MethodGet,
			path:           "/v1/listings?limit=11",
			expectedStatus: http.StatusTooManyRequests,
			expectedName:   "PAGE_TOO_LARGE",
		},
		{
			name:           "zero price",
			method:         http.MethodPost,
			path:           "/v1/listings",
			caller:         alice,
			body:           map[string]any{"metadataUri": "ipfs://x", "price": 0},
			expectedStatus: http.StatusBadRequest,
			expectedName:   "INVALID_PRICE",
		},
		{
			name:           "fee rate too high",
			method:         http.MethodPost,
			path:           "/v1/treasury/fee-rate",
			caller:         operator,
			body:           map[string]any{"feeRateBps": 1001},
			expectedStatus: http.StatusBadRequest,
			expectedName:   "FEE_TOO_HIGH",
		},
		{
			name:           "mint by stranger",
			method:         http.MethodPost,
			path:           "/v1/assets",
			caller:         bob,
			body:           map[string]any{"recipient": bob, "metadataUri": "ipfs://x"},
			expectedStatus: http.StatusForbidden,
			expectedName:   "UNAUTHORIZED",
		},
	}
	for _, f := range fixtures {
		t.Run(f.name, func(t *testing.T) {
			status, res := s.do(t, f.method, f.path, f.caller, f.body)
			requireErrorResponse(t, f.expectedStatus, f.expectedName, status, res)
		})
	}

	t.Run("never listed", func(t *testing.T) {
		status, res := s.do(t, http.MethodGet, "/v1/listings/42", "", nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, "", res["seller"])
		require.Equal(t, false, res["active"])
	})
}

func TestReadiness(t *testing.T) {
	s := newTestServer(t)
	s.readiness.MarkAppServiceStopped()

	status, res := s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, false, res["ready"])
	require.Equal(t, "test", res["version"])

	status, res = s.do(t, http.MethodGet, "/v1/stats", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, status)
	require.Equal(t, "UNAVAILABLE", res["name"])

	s.readiness.MarkAppServiceStarted()

	status, res = s.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, res["ready"])

	status, _ = s.do(t, http.MethodGet, "/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, status)
}

func TestEventStream(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL+"/v1/events/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	// nolint
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	status, res := s.do(t, http.MethodPost, "/v1/listings", alice, map[string]any{
		"metadataUri": "ipfs://streamed", "price": 1000,
	})
	require.Equal(t, http.StatusOK, status, "unexpected response: %v", res)

	scanner := bufio.NewScanner(resp.Body)
	var received []string
	for scanner.Scan() && len(received) < 3 {
		line := scanner.Text()
		if eventType, ok := strings.CutPrefix(line, "event: "); ok {
			received = append(received, eventType)
		}
	}
	require.Equal(t, []string{"minted", "approval", "listed"}, received)
}
