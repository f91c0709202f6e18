package publish

import (
	"context"

	"github.com/shruggr/ordsite/lib"
)

// Strategy is the publish backend, selected once per deployment: network
// against real funds or a deterministic dry run. Both implement the same
// four phases so no publish logic branches on the mode.
type Strategy interface {
	// Quote measures the exact fee of a job via a disposable placeholder
	// transaction built through the real code path.
	Quote(ctx context.Context, job *Job) (*Quote, error)

	// Provision creates one precisely-sized carrier per quote with a
	// single funding transaction.
	Provision(ctx context.Context, quotes []*Quote) (*Provision, error)

	// Build signs the job transaction against its assigned carrier.
	Build(ctx context.Context, quote *Quote, carrier *lib.Carrier) (*BuiltTx, error)

	// Broadcast submits a built transaction and returns its txid.
	// Implementations must submit Raw unchanged.
	Broadcast(ctx context.Context, built *BuiltTx) (string, error)
}
