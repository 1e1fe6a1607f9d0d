package esplora_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unite-defi/swapd/internal/infrastructure/esplora"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/blocks/tip/height", func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte("850010"))
	})
	mux.HandleFunc("/address/bc1qfunded/utxo", func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte(`[
			{"txid":"aa11","vout":0,"value":100000,"status":{"confirmed":true,"block_height":850001}},
			{"txid":"bb22","vout":1,"value":50000,"status":{"confirmed":false}}
		]`))
	})
	mux.HandleFunc("/address/bc1qempty/utxo", func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte(`[]`))
	})
	mux.HandleFunc("/tx/aa11/status", func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte(`{"confirmed":true,"block_height":850001}`))
	})
	mux.HandleFunc("/tx/cc33/status", func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte(`{"confirmed":false}`))
	})
	mux.HandleFunc("/tx", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		// nolint:all
		w.Write([]byte("broadcasttxid"))
	})
	mux.HandleFunc("/fee-estimates", func(w http.ResponseWriter, r *http.Request) {
		// nolint:all
		w.Write([]byte(`{"1":12.5,"6":4.1}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestGetUtxos(t *testing.T) {
	server := newTestServer(t)
	svc := esplora.NewService(server.URL)
	ctx := context.Background()

	utxos, err := svc.GetUtxos(ctx, "bc1qfunded")
	require.NoError(t, err)
	require.Len(t, utxos, 2)

	require.Equal(t, "aa11", utxos[0].Txid)
	require.EqualValues(t, 100000, utxos[0].Amount)
	require.EqualValues(t, 10, utxos[0].Confirmations)

	// unconfirmed outputs report zero confirmations
	require.Equal(t, "bb22", utxos[1].Txid)
	require.EqualValues(t, 0, utxos[1].Confirmations)

	empty, err := svc.GetUtxos(ctx, "bc1qempty")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestGetConfirmations(t *testing.T) {
	server := newTestServer(t)
	svc := esplora.NewService(server.URL)
	ctx := context.Background()

	confs, err := svc.GetConfirmations(ctx, "aa11")
	require.NoError(t, err)
	require.EqualValues(t, 10, confs)

	confs, err = svc.GetConfirmations(ctx, "cc33")
	require.NoError(t, err)
	require.Zero(t, confs)
}

func TestBroadcast(t *testing.T) {
	server := newTestServer(t)
	svc := esplora.NewService(server.URL)

	txid, err := svc.Broadcast(context.Background(), "020000000001...")
	require.NoError(t, err)
	require.Equal(t, "broadcasttxid", txid)
}

func TestGetFeeRate(t *testing.T) {
	server := newTestServer(t)
	svc := esplora.NewService(server.URL)

	rate, err := svc.GetFeeRate(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12.5, rate)
}

func TestGetBlockHeight(t *testing.T) {
	server := newTestServer(t)
	svc := esplora.NewService(server.URL)

	height, err := svc.GetBlockHeight(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 850010, height)
}
