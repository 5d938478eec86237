package main

import (
	"context"
	"testing"

	"github.com/example/erp-event-pipeline/internal/app"
	"github.com/example/erp-event-pipeline/internal/domain/ledger"
	"github.com/example/erp-event-pipeline/internal/infrastructure/store"
	"github.com/example/erp-event-pipeline/internal/uow"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixture_SeedAndRun(t *testing.T) {
	fx, err := readFixture("testdata/fixture.json")
	require.NoError(t, err)
	require.Len(t, fx.Sales, 2)

	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	codec, err := app.NewCodec()
	require.NoError(t, err)
	stores := app.MemoryStores()
	a, err := app.New(uow.NewMemoryTransactor(), stores, codec, logger, app.Options{})
	require.NoError(t, err)

	require.NoError(t, seed(ctx, stores, fx))

	first, err := a.Commands.CompleteSale(ctx, fx.Sales[0])
	require.NoError(t, err)
	second, err := a.Commands.CompleteSale(ctx, fx.Sales[1])
	require.NoError(t, err)

	entries, err := stores.Ledger.Entries(ctx, "tenant-1", ledger.ReferenceSale, first.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	// Deferred, no customer: stock only.
	entries, err = stores.Ledger.Entries(ctx, "tenant-1", ledger.ReferenceSale, second.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	level, err := stores.Stock.GetLevel(ctx, "tenant-1", "item-b", "shop-1")
	require.NoError(t, err)
	assert.True(t, level.Quantity.Equal(decimal.NewFromInt(2)))

	assert.Len(t, stores.Alerts.(*store.MemoryAlertStore).Alerts(), 1)
	assert.Len(t, stores.Documents.(*store.MemoryDocumentStore).Documents(), 1)

	failures, err := stores.Failures.ListFailures(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func TestReadFixture_Missing(t *testing.T) {
	_, err := readFixture("testdata/absent.json")
	assert.Error(t, err)
}
