package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shruggr/ordsite/lib"
)

// NetworkStrategy publishes against the real network through the Indexer.
type NetworkStrategy struct {
	Builder *Builder
	Indexer lib.Indexer
	Retry   lib.RetryPolicy

	// committed tracks funding outpoints consumed during this run. It is
	// the only double-spend guard: single-writer per key is a documented
	// precondition, not an enforced guarantee.
	mu        sync.Mutex
	committed map[string]struct{}
}

func NewNetworkStrategy(builder *Builder, indexer lib.Indexer) *NetworkStrategy {
	return &NetworkStrategy{
		Builder:   builder,
		Indexer:   indexer,
		Retry:     lib.DefaultRetry(),
		committed: map[string]struct{}{},
	}
}

func (s *NetworkStrategy) Quote(ctx context.Context, job *Job) (*Quote, error) {
	return s.Builder.QuoteJob(ctx, job)
}

func (s *NetworkStrategy) Provision(ctx context.Context, quotes []*Quote) (*Provision, error) {
	var total uint64
	for _, q := range quotes {
		total += q.Required
	}

	// headroom for the funding transaction's own fee
	utxos, err := s.Indexer.Utxos(ctx, s.Builder.Wallet.Address(), total+total/10+1000)
	if err != nil {
		return nil, fmt.Errorf("list utxos: %w", err)
	}
	available := make([]*lib.Carrier, 0, len(utxos))
	s.mu.Lock()
	for _, u := range utxos {
		if _, ok := s.committed[u.Outpoint.String()]; ok {
			continue
		}
		available = append(available, u)
	}
	s.mu.Unlock()

	tx, err := s.Builder.FundingTx(ctx, quotes, available)
	if err != nil {
		return nil, err
	}

	raw := tx.Bytes()
	var txid string
	err = s.Retry.Do(ctx, func() error {
		var berr error
		txid, berr = s.Indexer.Broadcast(ctx, raw)
		return classifyBroadcast(berr)
	})
	if err != nil {
		return nil, fmt.Errorf("broadcast funding tx: %w", err)
	}

	s.mu.Lock()
	for _, u := range available {
		s.committed[u.Outpoint.String()] = struct{}{}
	}
	s.mu.Unlock()

	fee, err := s.Builder.feeFor(tx)
	if err != nil {
		return nil, err
	}
	p := &Provision{
		FundingTxid: txid,
		FundingFee:  fee,
		Carriers:    map[string]*lib.Carrier{},
	}
	for i, q := range quotes {
		p.Carriers[q.Job.ID] = &lib.Carrier{
			Outpoint: lib.NewOutpoint(txid, uint32(i)),
			Satoshis: q.Required,
			Script:   s.Builder.Wallet.LockingScriptHex(),
		}
	}
	return p, nil
}

func (s *NetworkStrategy) Build(ctx context.Context, quote *Quote, carrier *lib.Carrier) (*BuiltTx, error) {
	return s.Builder.BuildJob(ctx, quote, carrier)
}

func (s *NetworkStrategy) Broadcast(ctx context.Context, built *BuiltTx) (string, error) {
	txid, err := s.Indexer.Broadcast(ctx, built.Raw)
	if err != nil {
		return "", classifyBroadcast(err)
	}
	return txid, nil
}

// classifyBroadcast maps backend rejections onto the error taxonomy. A
// carrier spent by another process surfaces as a missing-inputs rejection.
func classifyBroadcast(err error) error {
	if err == nil {
		return nil
	}
	var httpErr *lib.HttpError
	if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
		msg := strings.ToLower(httpErr.Error())
		if strings.Contains(msg, "missing inputs") ||
			strings.Contains(msg, "mempool-conflict") ||
			strings.Contains(msg, "mempool conflict") ||
			strings.Contains(msg, "already spent") {
			return fmt.Errorf("%w: %v", lib.ErrCarrierSpent, err)
		}
	}
	return err
}
