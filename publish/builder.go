package publish

import (
	"context"
	"fmt"

	"github.com/libsv/go-bt/v2"
	"github.com/shruggr/ordsite/lib"
)

// placeholderTxid funds quoting's disposable transactions. Any syntactic
// txid works: the placeholder is signed but never broadcast.
const placeholderTxid = "0000000000000000000000000000000000000000000000000000000000000001"

// carrierSats is the value bound into every inscription output.
const carrierSats = 1

// Builder constructs and signs the engine's transactions with the
// deployment wallet. Fees come from the built transaction's measured size
// against the miner rate, never from estimates.
type Builder struct {
	Wallet *lib.Wallet
	Fees   *bt.FeeQuote
}

func NewBuilder(wallet *lib.Wallet) *Builder {
	return &Builder{Wallet: wallet, Fees: bt.NewFeeQuote()}
}

// feeFor computes the exact fee of a fully built transaction.
func (b *Builder) feeFor(tx *bt.Tx) (uint64, error) {
	fee, err := b.Fees.Fee(bt.FeeTypeStandard)
	if err != nil {
		return 0, err
	}
	size := uint64(tx.Size())
	sats := uint64(fee.MiningFee.Satoshis)
	bytes := uint64(fee.MiningFee.Bytes)
	return (size*sats + bytes - 1) / bytes, nil
}

// jobTx builds and signs a job transaction spending carrier: one input,
// one inscription output, no change. The input must equal the required
// output plus fee, which provisioning guarantees.
func (b *Builder) jobTx(ctx context.Context, job *Job, carrier *lib.Carrier) (*bt.Tx, error) {
	tx := bt.NewTx()
	if err := tx.From(carrier.Outpoint.Txid, carrier.Outpoint.Vout, carrier.Script, carrier.Satoshis); err != nil {
		return nil, err
	}
	script, err := lib.InscriptionScript(b.Wallet.LockingScript(), job.ContentType, job.Bytes, job.Meta)
	if err != nil {
		return nil, err
	}
	// PayTo only accepts pure P2PKH; the envelope script must go in raw
	tx.AddOutput(&bt.Output{Satoshis: carrierSats, LockingScript: script})
	if err := tx.FillAllInputs(ctx, b.Wallet.Unlocker()); err != nil {
		return nil, err
	}
	return tx, nil
}

// QuoteJob builds a disposable placeholder transaction for job through the
// real jobTx path and reads its measured fee. Required funding is the fee
// plus the carrier satoshi.
func (b *Builder) QuoteJob(ctx context.Context, job *Job) (*Quote, error) {
	placeholder := &lib.Carrier{
		Outpoint: lib.NewOutpoint(placeholderTxid, 0),
		Satoshis: carrierSats, // value is irrelevant to size
		Script:   b.Wallet.LockingScriptHex(),
	}
	tx, err := b.jobTx(ctx, job, placeholder)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", job.Path, err)
	}
	fee, err := b.feeFor(tx)
	if err != nil {
		return nil, err
	}
	return &Quote{Job: job, ExactFee: fee, Required: fee + carrierSats}, nil
}

// BuildJob signs the broadcastable job transaction against its provisioned
// carrier and verifies the zero-change invariant: input minus output must
// equal the quoted fee exactly.
func (b *Builder) BuildJob(ctx context.Context, quote *Quote, carrier *lib.Carrier) (*BuiltTx, error) {
	if carrier.Satoshis != quote.Required {
		return nil, fmt.Errorf("carrier for %s holds %d sat, quote requires %d",
			quote.Job.Path, carrier.Satoshis, quote.Required)
	}
	tx, err := b.jobTx(ctx, quote.Job, carrier)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", quote.Job.Path, err)
	}
	if len(tx.Outputs) != 1 {
		return nil, fmt.Errorf("job tx for %s has %d outputs, want 1", quote.Job.Path, len(tx.Outputs))
	}
	paid := tx.TotalInputSatoshis() - tx.TotalOutputSatoshis()
	if paid != quote.ExactFee {
		return nil, fmt.Errorf("job tx for %s pays %d sat fee, quoted %d", quote.Job.Path, paid, quote.ExactFee)
	}
	return &BuiltTx{
		Job:  quote.Job,
		Txid: tx.TxID(),
		Raw:  tx.Bytes(),
		Fee:  paid,
	}, nil
}

// FundingTx builds the single provisioning transaction: it splits the
// given inputs into one precisely-sized output per quote plus change. Only
// this transaction's size may vary.
func (b *Builder) FundingTx(ctx context.Context, quotes []*Quote, utxos []*lib.Carrier) (*bt.Tx, error) {
	var total uint64
	for _, q := range quotes {
		total += q.Required
	}

	tx := bt.NewTx()
	var inputSats uint64
	for _, u := range utxos {
		if err := tx.From(u.Outpoint.Txid, u.Outpoint.Vout, u.Script, u.Satoshis); err != nil {
			return nil, err
		}
		inputSats += u.Satoshis
	}
	for _, q := range quotes {
		if err := tx.PayTo(b.Wallet.LockingScript(), q.Required); err != nil {
			return nil, err
		}
	}
	if inputSats <= total {
		return nil, &lib.FundingError{Address: b.Wallet.Address(), Required: total, Have: inputSats}
	}
	if err := tx.ChangeToAddress(b.Wallet.Address(), b.Fees); err != nil {
		return nil, err
	}
	if err := tx.FillAllInputs(ctx, b.Wallet.Unlocker()); err != nil {
		return nil, err
	}
	fee, err := b.feeFor(tx)
	if err != nil {
		return nil, err
	}
	if inputSats < total+fee {
		return nil, &lib.FundingError{Address: b.Wallet.Address(), Required: total + fee, Have: inputSats}
	}
	return tx, nil
}
