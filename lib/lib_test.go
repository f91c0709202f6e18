package lib

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutpoint(t *testing.T) {
	txid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"

	op, err := ParseOutpoint(txid + "_3")
	require.NoError(t, err)
	assert.Equal(t, txid, op.Txid)
	assert.Equal(t, uint32(3), op.Vout)
	assert.Equal(t, txid+"_3", op.String())

	for _, bad := range []string{
		"",
		"nounderscore",
		txid,
		txid + "_x",
		"abc_0",
		"zz5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b_0",
	} {
		_, err := ParseOutpoint(bad)
		assert.Error(t, err, bad)
	}
}

func TestOutpointBytes(t *testing.T) {
	txid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	op := NewOutpoint(txid, 1)
	b := op.Bytes()
	require.Len(t, b, 36)
	assert.Equal(t, byte(0x4a), b[0])
	assert.Equal(t, []byte{0, 0, 0, 1}, b[32:])
}

func TestOutpointJSONRoundTrip(t *testing.T) {
	txid := "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	op := NewOutpoint(txid, 7)
	data, err := op.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"`+txid+`_7"`, string(data))

	var back Outpoint
	require.NoError(t, back.UnmarshalJSON(data))
	assert.Equal(t, op, back)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(ErrInsufficientFunds))
	assert.False(t, IsTransient(ErrCarrierSpent))
	assert.False(t, IsTransient(&FundingError{Address: "1abc", Required: 10}))
	assert.False(t, IsTransient(context.Canceled))
	assert.False(t, IsTransient(&HttpError{StatusCode: 400, Err: errors.New("bad tx")}))
	assert.True(t, IsTransient(&HttpError{StatusCode: 429, Err: errors.New("rate limit")}))
	assert.True(t, IsTransient(&HttpError{StatusCode: 503, Err: errors.New("busy")}))
}

func TestSuggestNextVersion(t *testing.T) {
	assert.Equal(t, "1.2.4", SuggestNextVersion("1.2.3"))
	assert.Equal(t, "2.1", SuggestNextVersion("2.0"))
	assert.Equal(t, "beta-next", SuggestNextVersion("beta"))
}

func TestRetryDoStopsOnNonRetryable(t *testing.T) {
	calls := 0
	policy := DefaultRetry()
	err := policy.Do(context.Background(), func() error {
		calls++
		return ErrCarrierSpent
	})
	assert.ErrorIs(t, err, ErrCarrierSpent)
	assert.Equal(t, 1, calls)
}

func TestRetryDoExhausts(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Retryable:   func(error) bool { return true },
	}
	transient := &HttpError{StatusCode: 503, Err: errors.New("busy")}
	err := policy.Do(context.Background(), func() error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	var httpErr *HttpError
	assert.True(t, errors.As(err, &httpErr))
}

func TestRetryDoEventualSuccess(t *testing.T) {
	calls := 0
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		Retryable:   func(error) bool { return true },
	}
	err := policy.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestNoRetry(t *testing.T) {
	calls := 0
	err := NoRetry().Do(context.Background(), func() error {
		calls++
		return errors.New("nope")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
