package bank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	path string
	body map[string]interface{}
}

func newTestServer(status int) (*httptest.Server, *[]recordedCall) {
	var mu sync.Mutex
	calls := &[]recordedCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		*calls = append(*calls, recordedCall{path: r.URL.Path, body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	return srv, calls
}

func TestNotifyMintComplete(t *testing.T) {
	srv, calls := newTestServer(http.StatusOK)
	defer srv.Close()

	id := uuid.New()
	client := NewHTTPClient(srv.URL)
	require.NoError(t, client.NotifyMintComplete(context.Background(), id))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/api/v1/mints/complete", call.path)
	assert.Equal(t, id.String(), call.body["id"])
}

func TestNotifyBurnComplete(t *testing.T) {
	srv, calls := newTestServer(http.StatusOK)
	defer srv.Close()

	id := uuid.New()
	client := NewHTTPClient(srv.URL)
	require.NoError(t, client.NotifyBurnComplete(context.Background(), id))

	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/v1/burns/complete", (*calls)[0].path)
}

func TestNotifyFiatDeposit(t *testing.T) {
	srv, calls := newTestServer(http.StatusOK)
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	dep := DepositNotification{
		ID:          uuid.New(),
		TxHash:      "ABC123",
		FromAddress: "pb1from",
		ToAddress:   "pb1member",
		Amount:      decimal.NewFromInt(100),
		Denom:       "usdf.c",
	}
	require.NoError(t, client.NotifyFiatDeposit(context.Background(), dep))

	require.Len(t, *calls, 1)
	call := (*calls)[0]
	assert.Equal(t, "/api/v1/deposits", call.path)
	assert.Equal(t, "ABC123", call.body["txHash"])
}

func TestNotifyFailureIsReturned(t *testing.T) {
	srv, _ := newTestServer(http.StatusInternalServerError)
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	err := client.NotifyMintComplete(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
