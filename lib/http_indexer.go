package lib

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/GorillaPool/go-junglebus"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/libsv/go-bt/v2"
)

const txCacheSize = 1024

// HTTPIndexer talks to a JungleBus instance for raw transactions and a
// 1sat ordinals API for txo/chain queries and broadcast.
type HTTPIndexer struct {
	jb      *junglebus.JungleBusClient
	jbURL   string
	ordURL  string
	client  *http.Client
	txCache *lru.Cache[string, *bt.Tx]
}

func NewHTTPIndexer(jbURL, ordURL string) (*HTTPIndexer, error) {
	if jbURL == "" {
		jbURL = "https://junglebus.gorillapool.io"
	}
	if ordURL == "" {
		ordURL = "https://ordinals.gorillapool.io"
	}
	jb, err := junglebus.New(
		junglebus.WithHTTP(jbURL),
	)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New[string, *bt.Tx](txCacheSize)
	if err != nil {
		return nil, err
	}
	return &HTTPIndexer{
		jb:      jb,
		jbURL:   jbURL,
		ordURL:  strings.TrimRight(ordURL, "/"),
		client:  http.DefaultClient,
		txCache: cache,
	}, nil
}

func (ix *HTTPIndexer) RawTx(ctx context.Context, txid string) (*bt.Tx, error) {
	if tx, ok := ix.txCache.Get(txid); ok {
		return tx, nil
	}
	rawtx, err := ix.get(ctx, fmt.Sprintf("%s/v1/transaction/get/%s/bin", ix.jbURL, txid))
	if err != nil {
		return nil, err
	}
	tx, err := bt.NewTxFromBytes(rawtx)
	if err != nil {
		return nil, err
	}
	ix.txCache.Add(txid, tx)
	return tx, nil
}

type txoResult struct {
	Txid     string `json:"txid"`
	Vout     uint32 `json:"vout"`
	Satoshis uint64 `json:"satoshis"`
	Script   string `json:"script"`
}

func (ix *HTTPIndexer) Utxos(ctx context.Context, address string, targetSats uint64) ([]*Carrier, error) {
	url := fmt.Sprintf("%s/api/txos/address/%s/unspent", ix.ordURL, address)
	if targetSats > 0 {
		url = fmt.Sprintf("%s?target=%d", url, targetSats)
	}
	body, err := ix.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var txos []txoResult
	if err := json.Unmarshal(body, &txos); err != nil {
		return nil, err
	}
	carriers := make([]*Carrier, 0, len(txos))
	for _, txo := range txos {
		carriers = append(carriers, &Carrier{
			Outpoint: NewOutpoint(txo.Txid, txo.Vout),
			Satoshis: txo.Satoshis,
			Script:   txo.Script,
		})
	}
	return carriers, nil
}

func (ix *HTTPIndexer) Broadcast(ctx context.Context, rawtx []byte) (string, error) {
	payload, err := json.Marshal(map[string]string{"rawtx": hex.EncodeToString(rawtx)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/api/tx", ix.ordURL), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ix.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 400 {
		return "", &HttpError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("broadcast: %s", strings.TrimSpace(string(body))),
		}
	}
	var result struct {
		Txid string `json:"txid"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		// some backends answer with the bare txid string
		txid := strings.Trim(strings.TrimSpace(string(body)), `"`)
		if len(txid) == 64 {
			return txid, nil
		}
		return "", err
	}
	return result.Txid, nil
}

type chainTipResult struct {
	Txid     string            `json:"txid"`
	Vout     uint32            `json:"vout"`
	Satoshis uint64            `json:"satoshis"`
	Script   string            `json:"script"`
	Map      map[string]string `json:"map"`
}

func (ix *HTTPIndexer) LatestInChain(ctx context.Context, origin Outpoint) (*ChainTip, error) {
	body, err := ix.get(ctx, fmt.Sprintf("%s/api/inscriptions/%s/latest", ix.ordURL, origin))
	if err != nil {
		return nil, err
	}
	var result chainTipResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	return &ChainTip{
		Outpoint: NewOutpoint(result.Txid, result.Vout),
		Satoshis: result.Satoshis,
		Script:   result.Script,
		Map:      result.Map,
	}, nil
}

func (ix *HTTPIndexer) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := ix.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == 404 {
		return nil, &HttpError{StatusCode: 404, Err: ErrNotFound}
	}
	if resp.StatusCode >= 400 {
		return nil, &HttpError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("GET %s", url),
		}
	}
	return io.ReadAll(resp.Body)
}
