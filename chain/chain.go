// Package chain maintains the append-only on-chain version history: a
// spend-and-recreate chain of carriers whose side-channel metadata
// accumulates version entries. The first carrier (the origin) is the
// chain's permanent identity.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/libsv/go-bt/v2"
	"github.com/shruggr/ordsite/lib"
)

// VersionEntry is the value stored under a "version.<tag>" metadata key.
type VersionEntry struct {
	Outpoint    lib.Outpoint `json:"outpoint"`
	Description string       `json:"description,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

const (
	versionKeyPrefix = "version."
	appKey           = "app"
	typeKey          = "type"
	typeValue        = "ordsite"
)

// BroadcastFunc submits a raw transaction. Swapped for a recorder in dry
// runs and tests.
type BroadcastFunc func(ctx context.Context, rawtx []byte) (string, error)

// Manager originates and appends to a version chain with the deployment
// wallet. Appending requires the signing key that controls the current
// tip.
type Manager struct {
	Wallet    *lib.Wallet
	Indexer   lib.Indexer
	Fees      *bt.FeeQuote
	Retry     lib.RetryPolicy
	Broadcast BroadcastFunc
}

func NewManager(wallet *lib.Wallet, indexer lib.Indexer) *Manager {
	return &Manager{
		Wallet:    wallet,
		Indexer:   indexer,
		Fees:      bt.NewFeeQuote(),
		Retry:     lib.DefaultRetry(),
		Broadcast: indexer.Broadcast,
	}
}

// Originate inscribes the chain's first carrier, holding only the
// application-name tag and no version entries. Its outpoint is the chain's
// identity and never changes.
func (m *Manager) Originate(ctx context.Context, app string) (lib.Outpoint, error) {
	meta := map[string]string{appKey: app, typeKey: typeValue}
	script, err := lib.MetadataScript(m.Wallet.LockingScript(), meta)
	if err != nil {
		return lib.Outpoint{}, err
	}

	tx := bt.NewTx()
	// carrier script is P2PKH plus the metadata tail, too rich for PayTo
	tx.AddOutput(&bt.Output{Satoshis: 1, LockingScript: script})
	if err := m.fund(ctx, tx, nil); err != nil {
		return lib.Outpoint{}, err
	}
	txid, err := m.submit(ctx, tx)
	if err != nil {
		return lib.Outpoint{}, fmt.Errorf("originate chain: %w", err)
	}
	origin := lib.NewOutpoint(txid, 0)
	log.Printf("[CHAIN] originated %s for %s", origin, app)
	return origin, nil
}

// Append spends the chain's current tip and recreates it with one new
// version entry merged into the existing metadata. The merge is additive:
// existing keys are never replaced, and a version tag that already exists
// is rejected before anything is spent.
func (m *Manager) Append(ctx context.Context, origin lib.Outpoint, version, description string) (lib.Outpoint, error) {
	tip, err := m.Indexer.LatestInChain(ctx, origin)
	if err != nil {
		// the write depends on locating the chain: absence is fatal here
		return lib.Outpoint{}, fmt.Errorf("resolve chain tip %s: %w", origin, err)
	}
	meta, err := m.tipMetadata(ctx, tip)
	if err != nil {
		return lib.Outpoint{}, err
	}

	key := versionKeyPrefix + version
	if _, exists := meta[key]; exists {
		return lib.Outpoint{}, &lib.VersionExistsError{
			Version:   version,
			Suggested: lib.SuggestNextVersion(version),
		}
	}
	if !strings.HasPrefix(tip.Script, m.Wallet.LockingScriptHex()) {
		return lib.Outpoint{}, &lib.AuthorityError{
			Want: m.Wallet.Address(),
			Got:  tip.Script,
		}
	}

	entry := VersionEntry{
		Outpoint:    tip.Outpoint,
		Description: description,
		Timestamp:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return lib.Outpoint{}, err
	}
	merged := make(map[string]string, len(meta)+1)
	for k, v := range meta {
		merged[k] = v
	}
	merged[key] = string(encoded)

	script, err := lib.MetadataScript(m.Wallet.LockingScript(), merged)
	if err != nil {
		return lib.Outpoint{}, err
	}
	tx := bt.NewTx()
	tipInput := &lib.Carrier{Outpoint: tip.Outpoint, Satoshis: tip.Satoshis, Script: tip.Script}
	tx.AddOutput(&bt.Output{Satoshis: tip.Satoshis, LockingScript: script})
	if err := m.fund(ctx, tx, tipInput); err != nil {
		return lib.Outpoint{}, err
	}
	txid, err := m.submit(ctx, tx)
	if err != nil {
		return lib.Outpoint{}, fmt.Errorf("append %s: %w", version, err)
	}
	newTip := lib.NewOutpoint(txid, 0)
	log.Printf("[CHAIN] %s appended %s at %s", origin, version, newTip)
	return newTip, nil
}

// tipMetadata prefers the indexer-attached map, falling back to parsing
// the tip transaction's locking script. A tip with unreadable metadata is
// treated as empty: version keys then read as absent, which is safe for
// the duplicate check but never hides the authority check.
func (m *Manager) tipMetadata(ctx context.Context, tip *lib.ChainTip) (map[string]string, error) {
	if tip.Map != nil {
		return tip.Map, nil
	}
	tx, err := m.Indexer.RawTx(ctx, tip.Outpoint.Txid)
	if err != nil {
		return nil, fmt.Errorf("load tip tx: %w", err)
	}
	if int(tip.Outpoint.Vout) >= len(tx.Outputs) {
		return nil, fmt.Errorf("tip vout %d out of range", tip.Outpoint.Vout)
	}
	meta := lib.ParseMap(*tx.Outputs[tip.Outpoint.Vout].LockingScript)
	if meta == nil {
		log.Printf("[CHAIN] no readable metadata on tip %s", tip.Outpoint)
		meta = map[string]string{}
	}
	return meta, nil
}

// fund adds the required extra input(s) and a change output, then signs.
// The optional lead input (the spent tip) comes first so the recreated
// carrier inherits its position.
func (m *Manager) fund(ctx context.Context, tx *bt.Tx, lead *lib.Carrier) error {
	var inputSats uint64
	if lead != nil {
		if err := tx.From(lead.Outpoint.Txid, lead.Outpoint.Vout, lead.Script, lead.Satoshis); err != nil {
			return err
		}
		inputSats += lead.Satoshis
	}

	outputSats := tx.TotalOutputSatoshis()
	utxos, err := m.Indexer.Utxos(ctx, m.Wallet.Address(), outputSats+2000)
	if err != nil {
		return err
	}
	for _, u := range utxos {
		if lead != nil && u.Outpoint == lead.Outpoint {
			continue
		}
		if err := tx.From(u.Outpoint.Txid, u.Outpoint.Vout, u.Script, u.Satoshis); err != nil {
			return err
		}
		inputSats += u.Satoshis
		if inputSats > outputSats+2000 {
			break
		}
	}
	if inputSats <= outputSats {
		return &lib.FundingError{Address: m.Wallet.Address(), Required: outputSats, Have: inputSats}
	}
	if err := tx.ChangeToAddress(m.Wallet.Address(), m.Fees); err != nil {
		return err
	}
	return tx.FillAllInputs(ctx, m.Wallet.Unlocker())
}

func (m *Manager) submit(ctx context.Context, tx *bt.Tx) (string, error) {
	raw := tx.Bytes()
	var txid string
	err := m.Retry.Do(ctx, func() error {
		var berr error
		txid, berr = m.Broadcast(ctx, raw)
		return berr
	})
	return txid, err
}

// Versions decodes every version entry in a metadata map, keyed by tag.
// Malformed entries are skipped.
func Versions(meta map[string]string) map[string]VersionEntry {
	out := map[string]VersionEntry{}
	for k, v := range meta {
		if !strings.HasPrefix(k, versionKeyPrefix) {
			continue
		}
		var entry VersionEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			log.Printf("[CHAIN] skipping malformed entry %s: %v", k, err)
			continue
		}
		out[strings.TrimPrefix(k, versionKeyPrefix)] = entry
	}
	return out
}

// App returns the application tag a chain was originated with.
func App(meta map[string]string) string {
	return meta[appKey]
}

// IsChainNotFound reports whether err means the chain could not be
// resolved at all.
func IsChainNotFound(err error) bool {
	return errors.Is(err, lib.ErrNotFound)
}
