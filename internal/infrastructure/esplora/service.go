package esplora

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/unite-defi/swapd/internal/core/ports"
)

// service implements ports.BtcExplorer against an esplora HTTP REST API.
type service struct {
	baseURL string
	client  *http.Client
}

func NewService(esploraURL string) ports.BtcExplorer {
	return &service{
		baseURL: strings.TrimRight(esploraURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *service) GetBlockHeight(ctx context.Context) (int64, error) {
	url := s.baseURL + "/blocks/tip/height"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get height: %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return 0, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse height: %w", err)
	}
	return n, nil
}

func (s *service) GetUtxos(ctx context.Context, address string) ([]ports.Utxo, error) {
	url := s.baseURL + "/address/" + address + "/utxo"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get address utxos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var utxos []struct {
		Txid   string `json:"txid"`
		Vout   uint32 `json:"vout"`
		Value  uint64 `json:"value"`
		Status struct {
			Confirmed   bool  `json:"confirmed"`
			BlockHeight int64 `json:"block_height"`
		} `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&utxos); err != nil {
		return nil, fmt.Errorf("failed to parse utxos: %w", err)
	}

	var tipHeight int64
	for _, u := range utxos {
		if u.Status.Confirmed {
			tipHeight, err = s.GetBlockHeight(ctx)
			if err != nil {
				return nil, err
			}
			break
		}
	}

	items := make([]ports.Utxo, len(utxos))
	for i, u := range utxos {
		var confirmations int64
		if u.Status.Confirmed && tipHeight >= u.Status.BlockHeight {
			confirmations = tipHeight - u.Status.BlockHeight + 1
		}
		items[i] = ports.Utxo{
			Txid:          u.Txid,
			Vout:          u.Vout,
			Amount:        u.Value,
			Confirmations: confirmations,
		}
	}
	return items, nil
}

func (s *service) GetConfirmations(ctx context.Context, txid string) (int64, error) {
	url := s.baseURL + "/tx/" + txid + "/status"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("get tx status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var status struct {
		Confirmed   bool  `json:"confirmed"`
		BlockHeight int64 `json:"block_height"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return 0, fmt.Errorf("failed to parse tx status: %w", err)
	}

	if !status.Confirmed {
		return 0, nil
	}

	tipHeight, err := s.GetBlockHeight(ctx)
	if err != nil {
		return 0, err
	}
	if tipHeight < status.BlockHeight {
		return 0, nil
	}
	return tipHeight - status.BlockHeight + 1, nil
}

func (s *service) Broadcast(ctx context.Context, txHex string) (string, error) {
	url := s.baseURL + "/tx"

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader([]byte(txHex)),
	)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to broadcast transaction: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("failed to read broadcast response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast failed with status %d: %s", resp.StatusCode, string(body))
	}

	return strings.TrimSpace(string(body)), nil
}

func (s *service) GetFeeRate(ctx context.Context) (float64, error) {
	url := s.baseURL + "/fee-estimates"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	// nolint:all
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to get fee rate: %s", resp.Status)
	}

	var estimates map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&estimates); err != nil {
		return 0, err
	}

	if rate, ok := estimates["1"]; ok && rate > 0 {
		return rate, nil
	}
	return 1, nil
}
