// Package testkit provides an in-memory Indexer with just enough ledger
// semantics for pipeline tests: minted utxos, spend tracking, and
// spend-and-recreate chain resolution.
package testkit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/libsv/go-bt/v2"
	"github.com/libsv/go-bt/v2/bscript"
	"github.com/shruggr/ordsite/lib"
)

type FakeIndexer struct {
	mu       sync.Mutex
	unspent  map[string]*lib.Carrier // by outpoint
	txs      map[string]*bt.Tx
	tips     map[string]lib.Outpoint // chain origin -> current tip
	minted   int
	FailWith error // when set, Broadcast returns it once
	// Broadcasts records every accepted raw transaction in order.
	Broadcasts []string
}

func NewFakeIndexer() *FakeIndexer {
	return &FakeIndexer{
		unspent: map[string]*lib.Carrier{},
		txs:     map[string]*bt.Tx{},
		tips:    map[string]lib.Outpoint{},
	}
}

// Fund mints a spendable utxo paying address.
func (f *FakeIndexer) Fund(address string, satoshis uint64) (lib.Outpoint, error) {
	script, err := bscript.NewP2PKHFromAddress(address)
	if err != nil {
		return lib.Outpoint{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minted++
	sum := sha256.Sum256([]byte(fmt.Sprintf("mint-%d", f.minted)))
	op := lib.NewOutpoint(hex.EncodeToString(sum[:]), 0)
	f.unspent[op.String()] = &lib.Carrier{
		Outpoint: op,
		Satoshis: satoshis,
		Script:   script.String(),
	}
	return op, nil
}

func (f *FakeIndexer) Utxos(ctx context.Context, address string, targetSats uint64) ([]*lib.Carrier, error) {
	script, err := bscript.NewP2PKHFromAddress(address)
	if err != nil {
		return nil, err
	}
	want := script.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*lib.Carrier
	var total uint64
	for _, c := range f.unspent {
		// plain value outputs only: one-satoshi carriers hold data
		if c.Script != want || c.Satoshis <= 1 {
			continue
		}
		out = append(out, c)
		total += c.Satoshis
		if targetSats > 0 && total >= targetSats {
			break
		}
	}
	return out, nil
}

func (f *FakeIndexer) Broadcast(ctx context.Context, rawtx []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailWith != nil {
		err := f.FailWith
		f.FailWith = nil
		return "", err
	}
	tx, err := bt.NewTxFromBytes(rawtx)
	if err != nil {
		return "", &lib.HttpError{StatusCode: 400, Err: err}
	}
	txid := tx.TxID()

	// spend inputs, tracking whether one of them was a chain tip
	extended := ""
	for _, in := range tx.Inputs {
		op := lib.NewOutpoint(in.PreviousTxIDStr(), in.PreviousTxOutIndex)
		if _, ok := f.unspent[op.String()]; !ok {
			return "", &lib.HttpError{StatusCode: 422, Err: fmt.Errorf("missing inputs: %s", op)}
		}
		delete(f.unspent, op.String())
		for origin, tip := range f.tips {
			if tip == op {
				extended = origin
			}
		}
	}

	for vout, out := range tx.Outputs {
		op := lib.NewOutpoint(txid, uint32(vout))
		f.unspent[op.String()] = &lib.Carrier{
			Outpoint: op,
			Satoshis: out.Satoshis,
			Script:   out.LockingScript.String(),
		}
	}

	if extended != "" {
		f.tips[extended] = lib.NewOutpoint(txid, 0)
	} else if len(tx.Outputs) > 0 && lib.ParseMap(*tx.Outputs[0].LockingScript) != nil {
		// a fresh carrier with side-channel metadata starts a chain
		origin := lib.NewOutpoint(txid, 0)
		f.tips[origin.String()] = origin
	}

	f.txs[txid] = tx
	f.Broadcasts = append(f.Broadcasts, txid)
	return txid, nil
}

func (f *FakeIndexer) LatestInChain(ctx context.Context, origin lib.Outpoint) (*lib.ChainTip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tip, ok := f.tips[origin.String()]
	if !ok {
		return nil, &lib.HttpError{StatusCode: 404, Err: lib.ErrNotFound}
	}
	tx, ok := f.txs[tip.Txid]
	if !ok {
		return nil, &lib.HttpError{StatusCode: 404, Err: lib.ErrNotFound}
	}
	out := tx.Outputs[tip.Vout]
	return &lib.ChainTip{
		Outpoint: tip,
		Satoshis: out.Satoshis,
		Script:   out.LockingScript.String(),
		Map:      lib.ParseMap(*out.LockingScript),
	}, nil
}

func (f *FakeIndexer) RawTx(ctx context.Context, txid string) (*bt.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txid]
	if !ok {
		return nil, &lib.HttpError{StatusCode: 404, Err: lib.ErrNotFound}
	}
	return tx, nil
}

// Inscription returns the parsed envelope at an outpoint, for asserting
// published content.
func (f *FakeIndexer) Inscription(outpoint lib.Outpoint) (*lib.Inscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[outpoint.Txid]
	if !ok || int(outpoint.Vout) >= len(tx.Outputs) {
		return nil, lib.ErrNotFound
	}
	ins := lib.ParseInscription(*tx.Outputs[outpoint.Vout].LockingScript)
	if ins == nil {
		return nil, lib.ErrNotFound
	}
	return ins, nil
}
