package esplora

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddress = "tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"

func newTestClient(baseURL string) *Client {
	return NewClient(ClientConfig{
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     2,
	}, nil, nil)
}

func TestListAddressTransactions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/address/"+testAddress+"/txs", r.URL.Path)
		fmt.Fprintf(w, `[
			{
				"txid": "tx1",
				"vout": [
					{"scriptpubkey_address": %q, "scriptpubkey_type": "v0_p2wpkh", "value": 5000},
					{"scriptpubkey_address": "tb1qother", "scriptpubkey_type": "v0_p2wpkh", "value": 777}
				]
			},
			{"txid": "tx2", "vout": []}
		]`, testAddress)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	txs, err := c.ListAddressTransactions(context.Background(), testAddress)
	require.NoError(t, err)

	require.Len(t, txs, 2)
	assert.Equal(t, "tx1", txs[0].TxID)
	require.Len(t, txs[0].Vout, 2)
	assert.Equal(t, int64(5000), txs[0].Vout[0].Value)
	assert.Equal(t, int64(5000), txs[0].OutputValueTo(testAddress))
	assert.Equal(t, int64(0), txs[1].OutputValueTo(testAddress))
}

func TestGetTxStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tx/abc/status", r.URL.Path)
		fmt.Fprint(w, `{"confirmed": true, "block_height": 1234, "block_hash": "00af", "block_time": 1700000000}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	status, err := c.GetTxStatus(context.Background(), "abc")
	require.NoError(t, err)

	assert.True(t, status.Confirmed)
	assert.Equal(t, int64(1234), status.BlockHeight)
}

func TestGetTxStatus_Unconfirmed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"confirmed": false}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	status, err := c.GetTxStatus(context.Background(), "abc")
	require.NoError(t, err)

	assert.False(t, status.Confirmed)
	assert.Equal(t, int64(0), status.BlockHeight)
}

func TestGetTipHeight(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blocks/tip/height", r.URL.Path)
		fmt.Fprint(w, "868042")
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	height, err := c.GetTipHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(868042), height)
}

func TestDoGet_RetriesOnConnectionFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Kill the connection so the client sees a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, "123")
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	height, err := c.GetTipHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(123), height)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoGet_NoRetryOnHTTPError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "Invalid hex string", http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	_, err := c.GetTxStatus(context.Background(), "nothex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoGet_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := newTestClient(server.URL)
	_, err := c.GetTipHeight(ctx)
	require.Error(t, err)
}
