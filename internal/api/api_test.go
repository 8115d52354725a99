package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mincoin-project/mincoin/internal/corenode"
)

func newTestAPI(t *testing.T) *API {
	t.Helper()
	node := corenode.NewManager(corenode.Config{
		SelfAddr:     "127.0.0.1:1",
		Difficulty:   1,
		PingInterval: time.Hour,
		MineInterval: time.Hour,
	})
	return NewAPI(node)
}

func TestGetChainReturnsGenesis(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/chain", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var blocks []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &blocks))
	require.Len(t, blocks, 1)
}

func TestGetPeersReportsSelfInCoreSet(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)

	var view peersView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Contains(t, view.Core, "127.0.0.1:1")
	require.Empty(t, view.Edge)
}

func TestPostTxAppendsToPool(t *testing.T) {
	a := newTestAPI(t)
	body, err := json.Marshal(txRequest{Sender: "a", Recipient: "b", Value: 5})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	poolReq := httptest.NewRequest(http.MethodGet, "/pool", nil)
	poolRec := httptest.NewRecorder()
	a.Router().ServeHTTP(poolRec, poolReq)

	var txs []map[string]interface{}
	require.NoError(t, json.Unmarshal(poolRec.Body.Bytes(), &txs))
	require.Len(t, txs, 1)
}

func TestPostTxDuplicateReturnsOK(t *testing.T) {
	a := newTestAPI(t)
	body, err := json.Marshal(txRequest{Sender: "a", Recipient: "b", Value: 5})
	require.NoError(t, err)

	for i, want := range []int{http.StatusCreated, http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		a.Router().ServeHTTP(rec, req)
		require.Equal(t, want, rec.Code, "attempt %d", i)
	}
}

func TestPostTxRejectsMalformedBody(t *testing.T) {
	a := newTestAPI(t)
	req := httptest.NewRequest(http.MethodPost, "/tx", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	a.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
