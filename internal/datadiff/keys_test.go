package datadiff_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"db-reconcile/internal/datadiff"
)

func TestParseAlternateKeys(t *testing.T) {
	keys, err := datadiff.ParseAlternateKeys([]string{"orders=order_no, region", ` "Lines" =line_id`})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"ORDERS": {"order_no", "region"},
		"LINES":  {"line_id"},
	}, keys)

	for _, bad := range []string{"orders", "=a", "orders=", "orders=a,,b"} {
		_, err := datadiff.ParseAlternateKeys([]string{bad})
		assert.Error(t, err, bad)
	}

	_, err = datadiff.ParseAlternateKeys([]string{"a=x", "A=y"})
	assert.Error(t, err)
}

func TestKeyResolver(t *testing.T) {
	tgt := openDB(t, "tgt",
		`CREATE TABLE pk2 (a INTEGER, b INTEGER, c TEXT, PRIMARY KEY (a, b))`,
		`CREATE TABLE nopk (a INTEGER)`)
	ctx := context.Background()

	r := datadiff.NewKeyResolver(map[string][]string{"NOPK": {"a"}}, nil, false)

	k1, err := r.Resolve(ctx, tgt, id("PK2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, k1.Columns)
	assert.Equal(t, datadiff.KeyPrimary, k1.Source)
	assert.True(t, k1.Contains(`"A"`))
	assert.False(t, k1.Contains("c"))

	k2, err := r.Resolve(ctx, tgt, id("pk2"))
	require.NoError(t, err)
	assert.Same(t, k1, k2)

	alt, err := r.Resolve(ctx, tgt, id("nopk"))
	require.NoError(t, err)
	assert.Equal(t, datadiff.KeyAlternate, alt.Source)
	assert.Equal(t, []string{"NOPK"}, r.Overrides())
}

func TestKeyResolver_ExcludeIgnored(t *testing.T) {
	tgt := openDB(t, "tgt",
		`CREATE TABLE pk2 (a INTEGER, b INTEGER, PRIMARY KEY (a, b))`,
		`CREATE TABLE pk1 (a INTEGER PRIMARY KEY)`)
	ctx := context.Background()

	r := datadiff.NewKeyResolver(nil, []string{"B", "a"}, false)
	k, err := r.Resolve(ctx, tgt, id("pk2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, k.Columns)

	r = datadiff.NewKeyResolver(nil, []string{"B"}, true)
	k, err = r.Resolve(ctx, tgt, id("pk2"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, k.Columns)

	r = datadiff.NewKeyResolver(nil, []string{"a"}, true)
	_, err = r.Resolve(ctx, tgt, id("pk1"))
	assert.ErrorIs(t, err, datadiff.ErrNoPK)
	_, err = r.Resolve(ctx, tgt, id("pk1"))
	assert.ErrorIs(t, err, datadiff.ErrNoPK, "negative result is cached")
}
