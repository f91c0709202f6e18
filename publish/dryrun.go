package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/shruggr/ordsite/lib"
)

// DryRun quotes and builds through the same Builder code paths as the
// network strategy, so fees and transaction shapes are real, but invents
// deterministic funding txids and broadcasts nothing.
type DryRun struct {
	Builder *Builder
}

func NewDryRun(builder *Builder) *DryRun {
	return &DryRun{Builder: builder}
}

func (s *DryRun) Quote(ctx context.Context, job *Job) (*Quote, error) {
	return s.Builder.QuoteJob(ctx, job)
}

func (s *DryRun) Provision(ctx context.Context, quotes []*Quote) (*Provision, error) {
	// deterministic pseudo-txid from the job ids
	h := sha256.New()
	for _, q := range quotes {
		h.Write([]byte(q.Job.ID))
	}
	txid := hex.EncodeToString(h.Sum(nil))

	p := &Provision{
		FundingTxid: txid,
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

func (s *DryRun) Build(ctx context.Context, quote *Quote, carrier *lib.Carrier) (*BuiltTx, error) {
	return s.Builder.BuildJob(ctx, quote, carrier)
}

func (s *DryRun) Broadcast(ctx context.Context, built *BuiltTx) (string, error) {
	return built.Txid, nil
}
