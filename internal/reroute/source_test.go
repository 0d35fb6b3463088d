package reroute

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"reroute/internal/docstore"
)

func openStore(t *testing.T) *docstore.Store {
	t.Helper()
	c, err := docstore.Open(t.TempDir())
	require.NoError(t, err)
	in, ok := c.(docstore.Initialized)
	require.True(t, ok)
	t.Cleanup(func() { _ = in.Store.Close() })
	return in.Store
}

func TestStoreSource_ReadsRulesInStoredOrder(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	var ids []string
	for _, r := range []Rule{
		{Source: "/b", Destination: "/bee", StatusCode: "302", OpenInNewTab: true},
		{Source: "/a", Destination: "https://a.example.com", StatusCode: "301"},
	} {
		id, err := store.Create(ctx, DefaultCollection, EncodeRule(r))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	src := NewStoreSource(docstore.Initialized{Store: store}, "", zap.NewNop())
	rules, err := src.ListRules(ctx)
	require.NoError(t, err)

	assert.Equal(t, []Rule{
		{ID: ids[0], Source: "/b", Destination: "/bee", StatusCode: "302", OpenInNewTab: true},
		{ID: ids[1], Source: "/a", Destination: "https://a.example.com", StatusCode: "301"},
	}, rules)
}

func TestStoreSource_SkipsUndecodableDocuments(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	okID, err := store.Create(ctx, DefaultCollection, EncodeRule(Rule{Source: "/ok", Destination: "/fine", StatusCode: "301"}))
	require.NoError(t, err)
	badID, err := store.Create(ctx, DefaultCollection, 42)
	require.NoError(t, err)
	lastID, err := store.Create(ctx, DefaultCollection, EncodeRule(Rule{Source: "/also-ok", Destination: "/also-fine"}))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.WarnLevel)
	src := NewStoreSource(docstore.Initialized{Store: store}, DefaultCollection, zap.New(core))
	c := NewCache(src, nil)

	require.NoError(t, c.Refresh(ctx))
	rs := c.Current()
	require.Equal(t, 2, rs.Len())
	assert.Equal(t, okID, rs.Rules[0].ID)
	assert.Equal(t, lastID, rs.Rules[1].ID)

	out := NewResolver(c).Resolve("/ok", time.Now())
	assert.True(t, out.IsRedirect())
	assert.Equal(t, "/fine", out.Destination)
	assert.Equal(t, http.StatusMovedPermanently, out.StatusCode)

	assert.Equal(t, uint64(1), src.(*storeSource).skipped.Load())
	entries := logs.FilterMessage("skipping undecodable redirect documents").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, DefaultCollection, fields["collection"])
	assert.Equal(t, []interface{}{badID}, fields["ids"])
}

func TestStoreSource_NotConfiguredIsAlwaysEmpty(t *testing.T) {
	src := NewStoreSource(docstore.NotConfigured{Reason: "no path"}, DefaultCollection, zap.NewNop())

	rules, err := src.ListRules(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, rules)
}

func TestStoreSource_NilLoggerIsAllowed(t *testing.T) {
	var src RuleSource
	require.NotPanics(t, func() {
		src = NewStoreSource(docstore.NotConfigured{Reason: "no path"}, "", nil)
	})

	rules, err := src.ListRules(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, rules)
}

func TestStoreSource_NilClientIsTreatedAsNotConfigured(t *testing.T) {
	src := NewStoreSource(nil, DefaultCollection, zap.NewNop())

	rules, err := src.ListRules(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, rules)
}
