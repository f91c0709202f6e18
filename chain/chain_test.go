package chain

import (
	"context"
	"errors"
	"testing"

	"github.com/shruggr/ordsite/lib"
	"github.com/shruggr/ordsite/lib/testkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWIF = "KwDiBf89QgGbjEhKnhXJuH7LrciVrZi3qYjgd9M7rFU73sVHnoWn"

// otherWIF encodes the same secret uncompressed, which hashes to a
// different address, so it acts as a foreign key for authority checks.
const otherWIF = "5HpHagT65TZzG1PH3CSu63k8DbpvD8s5ip4nEB3kEsreAnchuDf"

func setup(t *testing.T) (*Manager, *testkit.FakeIndexer) {
	t.Helper()
	wallet, err := lib.NewWallet(testWIF)
	require.NoError(t, err)
	ix := testkit.NewFakeIndexer()
	_, err = ix.Fund(wallet.Address(), 100_000)
	require.NoError(t, err)
	return NewManager(wallet, ix), ix
}

func TestOriginateAndAppend(t *testing.T) {
	m, ix := setup(t)
	ctx := context.Background()

	origin, err := m.Originate(ctx, "mysite")
	require.NoError(t, err)
	assert.False(t, origin.IsZero())

	tip, err := ix.LatestInChain(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, origin, tip.Outpoint, "fresh chain: tip is the origin")
	assert.Equal(t, "mysite", App(tip.Map))
	assert.Empty(t, Versions(tip.Map), "origin carries no version entries")

	newTip, err := m.Append(ctx, origin, "1.0.0", "first deploy")
	require.NoError(t, err)
	assert.NotEqual(t, origin, newTip)

	tip, err = ix.LatestInChain(ctx, origin)
	require.NoError(t, err)
	assert.Equal(t, newTip, tip.Outpoint)
	versions := Versions(tip.Map)
	require.Contains(t, versions, "1.0.0")
	assert.Equal(t, origin, versions["1.0.0"].Outpoint, "entry points at the spent tip")
	assert.Equal(t, "first deploy", versions["1.0.0"].Description)
	assert.Equal(t, "mysite", App(tip.Map), "identity keys survive the merge")
}

func TestAppendIsAdditiveAcrossN(t *testing.T) {
	m, ix := setup(t)
	ctx := context.Background()

	origin, err := m.Originate(ctx, "mysite")
	require.NoError(t, err)

	tags := []string{"1.0.0", "1.0.1", "1.1.0", "2.0.0", "2.0.1"}
	for _, tag := range tags {
		_, err := m.Append(ctx, origin, tag, "release "+tag)
		require.NoError(t, err, tag)
	}

	// origin identity is stable across N appends
	tip, err := ix.LatestInChain(ctx, origin)
	require.NoError(t, err)
	versions := Versions(tip.Map)
	assert.Len(t, versions, len(tags))
	for _, tag := range tags {
		assert.Contains(t, versions, tag)
	}
	assert.Equal(t, "mysite", App(tip.Map))
}

func TestAppendRejectsDuplicateVersion(t *testing.T) {
	m, ix := setup(t)
	ctx := context.Background()

	origin, err := m.Originate(ctx, "mysite")
	require.NoError(t, err)
	_, err = m.Append(ctx, origin, "1.2.3", "")
	require.NoError(t, err)

	before := len(ix.Broadcasts)
	_, err = m.Append(ctx, origin, "1.2.3", "")
	require.Error(t, err)
	var verr *lib.VersionExistsError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "1.2.3", verr.Version)
	assert.Equal(t, "1.2.4", verr.Suggested)
	assert.Equal(t, before, len(ix.Broadcasts), "nothing spent on rejection")
}

func TestAppendRejectsForeignTip(t *testing.T) {
	m, ix := setup(t)
	ctx := context.Background()

	origin, err := m.Originate(ctx, "mysite")
	require.NoError(t, err)

	// a different key now tries to append
	other, err := lib.NewWallet(otherWIF)
	require.NoError(t, err)
	intruder := NewManager(other, ix)
	_, err = intruder.Append(ctx, origin, "9.9.9", "")
	require.Error(t, err)
	var aerr *lib.AuthorityError
	require.True(t, errors.As(err, &aerr))
	assert.Equal(t, other.Address(), aerr.Want)
}

func TestAppendMissingChainIsFatal(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	missing := lib.NewOutpoint(
		"00000000000000000000000000000000000000000000000000000000000000ff", 0)
	_, err := m.Append(ctx, missing, "1.0.0", "")
	require.Error(t, err)
	assert.True(t, IsChainNotFound(err))
}

func TestVersionsSkipsMalformed(t *testing.T) {
	meta := map[string]string{
		"app":             "mysite",
		"version.1.0.0":   `{"outpoint":"` + "00000000000000000000000000000000000000000000000000000000000000aa_0" + `","timestamp":"2024-01-01T00:00:00Z"}`,
		"version.broken":  `{not json`,
		"unrelated.thing": "x",
	}
	versions := Versions(meta)
	assert.Len(t, versions, 1)
	assert.Contains(t, versions, "1.0.0")
}
