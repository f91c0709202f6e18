// Package publish implements the fee-exact publish engine: every job is
// quoted by building a disposable transaction through the real code path,
// funded by one precisely-sized carrier, and broadcast without a change
// output.
package publish

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/shruggr/ordsite/lib"
)

type Kind string

const (
	KindWhole Kind = "whole"
	KindChunk Kind = "chunk"
)

// Job is one unit of publishable work: a whole file or a single chunk.
type Job struct {
	ID          string
	Kind        Kind
	Path        string
	ContentType string
	Bytes       []byte
	// Destination is the address the carrier stays locked to.
	Destination string
	ChunkIndex  int
	TotalChunks int
	// Meta is the optional MAP side-channel attached to the carrier.
	Meta map[string]string
}

func NewJob(kind Kind, path, contentType string, data []byte, destination string) *Job {
	return &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		Path:        path,
		ContentType: contentType,
		Bytes:       data,
		Destination: destination,
	}
}

// ContentHash is the sha256 of the job payload.
func (j *Job) ContentHash() string {
	sum := sha256.Sum256(j.Bytes)
	return hex.EncodeToString(sum[:])
}

// Quote is the exact funding a job needs: the measured fee of its built
// placeholder transaction plus one satoshi for the carrier output.
type Quote struct {
	Job      *Job
	ExactFee uint64
	Required uint64
}

// BuiltTx is a signed, serialized job transaction awaiting broadcast.
// Retries resubmit Raw unchanged; the transaction is never rebuilt.
type BuiltTx struct {
	Job  *Job
	Txid string
	Raw  []byte
	Fee  uint64
}

// Provision maps every job to the carrier created for it by the single
// funding transaction.
type Provision struct {
	FundingTxid string
	FundingFee  uint64
	Carriers    map[string]*lib.Carrier // by job ID
}

// Result records one successful publication.
type Result struct {
	Job         *Job
	Outpoint    lib.Outpoint
	URLPath     string
	ContentHash string
	Fee         uint64
}
