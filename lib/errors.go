package lib

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
)

var (
	// ErrInsufficientFunds means the funding address cannot cover a
	// provisioning total. Never retried.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrCarrierSpent means a provisioned carrier was spent by another
	// process. Fatal: rebuilding against a different carrier would
	// invalidate the quote and risk an intra-batch double spend.
	ErrCarrierSpent = errors.New("carrier already spent")

	// ErrNotFound is returned by lookups that resolved nothing.
	ErrNotFound = errors.New("not-found")
)

type HttpError struct {
	StatusCode int
	Err        error
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("%d: %v", e.StatusCode, e.Err)
}

func (e *HttpError) Unwrap() error { return e.Err }

// FundingError carries the funding address so the operator knows where to
// send satoshis.
type FundingError struct {
	Address  string
	Required uint64
	Have     uint64
}

func (e *FundingError) Error() string {
	return fmt.Sprintf("insufficient funds at %s: need %d sat, have %d", e.Address, e.Required, e.Have)
}

func (e *FundingError) Unwrap() error { return ErrInsufficientFunds }

// VersionExistsError is returned when a deployment targets a version tag
// already present in the chain metadata.
type VersionExistsError struct {
	Version   string
	Suggested string
}

func (e *VersionExistsError) Error() string {
	return fmt.Sprintf("version %s already deployed, try %s", e.Version, e.Suggested)
}

// AuthorityError means the signing key does not control the chain tip.
type AuthorityError struct {
	Want string // address the signing key controls
	Got  string // locking script found on the tip, hex
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("signing key for %s does not control chain tip locked by %s", e.Want, e.Got)
}

// SuggestNextVersion bumps the last dotted numeric component, so "1.2.3"
// suggests "1.2.4". Non-numeric tails get "-next" appended.
func SuggestNextVersion(v string) string {
	idx := strings.LastIndex(v, ".")
	tail := v[idx+1:]
	n, err := strconv.Atoi(tail)
	if err != nil {
		return v + "-next"
	}
	return v[:idx+1] + strconv.Itoa(n+1)
}

// IsTransient reports whether an error is worth retrying: timeouts,
// connection resets, and 429/5xx responses. Everything else aborts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrCarrierSpent) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HttpError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 429 || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return false
}
