package publish

import (
	"context"
	"fmt"
	"log"

	"github.com/shruggr/ordsite/lib"
)

// DefaultBatchSize is how many broadcasts run concurrently; the next batch
// starts only after the prior fully resolves.
const DefaultBatchSize = 10

// Engine drives the five publish phases for a set of jobs: quote all,
// provision once, build all, broadcast in parallel batches, emit results.
type Engine struct {
	Strategy    Strategy
	BatchSize   int
	Retry       lib.RetryPolicy
	ContentBase string

	// FeesPaid and Txids accumulate across Publish calls for the
	// deployment record: funding fees plus every job's exact fee.
	FeesPaid uint64
	Txids    []string
}

func NewEngine(strategy Strategy, contentBase string) *Engine {
	return &Engine{
		Strategy:    strategy,
		BatchSize:   DefaultBatchSize,
		Retry:       lib.DefaultRetry(),
		ContentBase: contentBase,
	}
}

// Publish runs all jobs to completion. Quoting for every job finishes
// before provisioning (the funding transaction needs the aggregate), and
// provisioning is observed before any build (each job spends its assigned
// carrier). A non-retryable error aborts the remaining pipeline; there is
// no mid-batch rollback, and already-broadcast transactions stay on the
// network.
func (e *Engine) Publish(ctx context.Context, jobs []*Job) ([]*Result, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	quotes := make([]*Quote, 0, len(jobs))
	var total uint64
	for _, job := range jobs {
		quote, err := e.Strategy.Quote(ctx, job)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, quote)
		total += quote.Required
	}
	log.Printf("[PUBLISH] %d jobs quoted, %d sat required", len(quotes), total)

	provision, err := e.Strategy.Provision(ctx, quotes)
	if err != nil {
		return nil, err
	}

	built := make([]*BuiltTx, 0, len(quotes))
	for _, quote := range quotes {
		carrier, ok := provision.Carriers[quote.Job.ID]
		if !ok {
			return nil, fmt.Errorf("no carrier provisioned for %s", quote.Job.Path)
		}
		tx, err := e.Strategy.Build(ctx, quote, carrier)
		if err != nil {
			return nil, err
		}
		built = append(built, tx)
	}

	results, err := e.broadcastAll(ctx, built)
	if err != nil {
		return nil, err
	}
	e.FeesPaid += provision.FundingFee
	e.Txids = append(e.Txids, provision.FundingTxid)
	for _, r := range results {
		e.FeesPaid += r.Fee
		e.Txids = append(e.Txids, r.Outpoint.Txid)
	}
	log.Printf("[PUBLISH] %d/%d jobs broadcast (funding %s)", len(results), len(jobs), provision.FundingTxid)
	return results, nil
}

// broadcastAll submits in fixed-size concurrent batches. Retries resubmit
// identical raw bytes: rebuilding against a different carrier would
// invalidate the quote and risk an intra-batch double spend.
func (e *Engine) broadcastAll(ctx context.Context, built []*BuiltTx) ([]*Result, error) {
	batchSize := e.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	results := make([]*Result, len(built))
	for start := 0; start < len(built); start += batchSize {
		end := start + batchSize
		if end > len(built) {
			end = len(built)
		}
		batch := built[start:end]
		errs := make([]error, len(batch))
		done := make(chan int, len(batch))
		for i := range batch {
			go func(i int) {
				defer func() { done <- i }()
				tx := batch[i]
				var txid string
				errs[i] = e.Retry.Do(ctx, func() error {
					var berr error
					txid, berr = e.Strategy.Broadcast(ctx, tx)
					return berr
				})
				if errs[i] != nil {
					return
				}
				outpoint := lib.NewOutpoint(txid, 0)
				results[start+i] = &Result{
					Job:         tx.Job,
					Outpoint:    outpoint,
					URLPath:     e.ContentBase + "/" + outpoint.String(),
					ContentHash: tx.Job.ContentHash(),
					Fee:         tx.Fee,
				}
			}(i)
		}
		for range batch {
			<-done
		}
		for i, err := range errs {
			if err != nil {
				return nil, fmt.Errorf("broadcast %s: %w", batch[i].Job.Path, err)
			}
		}
	}
	return results, nil
}
