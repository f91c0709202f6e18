package lib

import (
	"context"

	"github.com/libsv/go-bt/v2"
)

// Indexer is the network query/broadcast surface the pipeline consumes.
// The production implementation is HTTPIndexer; tests swap in fakes.
type Indexer interface {
	// Utxos lists unspent outputs at address. A non-zero targetSats hint
	// lets the backend stop once enough value is accumulated.
	Utxos(ctx context.Context, address string, targetSats uint64) ([]*Carrier, error)

	// Broadcast submits a raw transaction and returns its txid.
	Broadcast(ctx context.Context, rawtx []byte) (string, error)

	// LatestInChain resolves the current tip of the spend-and-recreate
	// chain rooted at origin, with its side-channel metadata.
	LatestInChain(ctx context.Context, origin Outpoint) (*ChainTip, error)

	// RawTx fetches a transaction by id.
	RawTx(ctx context.Context, txid string) (*bt.Tx, error)
}
