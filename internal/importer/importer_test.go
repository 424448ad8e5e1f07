package importer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/go-ecommerce-core/internal/logging"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository/memory"
	"github.com/flicky/go-ecommerce-core/internal/service"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newCatalog() *service.CatalogService {
	hub := notify.NewHub()
	return service.NewCatalogService(memory.New(hub), hub, nil, 10, logging.Discard())
}

const mugs = `
products:
  - sku: MUG-1
    name: Mug
    price: "7.50"
    stock: 3
  - sku: MUG-2
    name: Retired mug
    price: "5"
    stock: 0
    active: false
`

const tea = `{"products": [{"sku": "TEA-1", "name": "Tea", "price": "4.20", "stock": 10}]}`

func TestLoadFile(t *testing.T) {
	inputs, err := LoadFile(writeFile(t, "mugs.yaml", mugs))
	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "MUG-1", inputs[0].SKU)
	assert.True(t, decimal.RequireFromString("7.50").Equal(inputs[0].Price))
	assert.True(t, inputs[0].Active)
	assert.False(t, inputs[1].Active)

	_, err = LoadFile(writeFile(t, "bad.yaml", "products:\n  - sku: X\n    name: X\n    price: abc\n"))
	assert.ErrorContains(t, err, "record 1")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	a := writeFile(t, "mugs.yaml", mugs)
	b := writeFile(t, "tea.json", tea)

	inputs, err := LoadFiles(context.Background(), a, b)
	require.NoError(t, err)
	require.Len(t, inputs, 3)
	assert.Equal(t, "TEA-1", inputs[2].SKU)

	_, err = LoadFiles(context.Background(), a, writeFile(t, "again.yaml", mugs))
	assert.ErrorContains(t, err, `sku "MUG-1" appears in both`)
}

func TestImporter_RunAndExport(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog()
	im := New(catalog, 2, logging.Discard())

	inputs, err := LoadFiles(ctx, writeFile(t, "mugs.yaml", mugs), writeFile(t, "tea.json", tea))
	require.NoError(t, err)

	report, err := im.Run(ctx, inputs)
	require.NoError(t, err)
	assert.Equal(t, Report{Created: 3}, report)

	var buf bytes.Buffer
	require.NoError(t, im.Export(ctx, &buf))
	assert.Contains(t, buf.String(), "sku: TEA-1")
	assert.Contains(t, buf.String(), "expected_version: 1")

	exported, err := LoadFile(writeFile(t, "export.yaml", buf.String()))
	require.NoError(t, err)
	require.Len(t, exported, 3)
	exported[0].Stock = 99

	report, err = im.Run(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, Report{Updated: 3}, report)

	report, err = im.Run(ctx, exported[:1])
	assert.ErrorIs(t, err, service.ErrConflict, "stale expected_version")
	assert.Zero(t, report)
}

const bolts = `
products:
  - sku: BOLT-1
    name: Bolt
    category: Hardware
    brand: Acme
    price: "0.125"
    stock: 1000
`

func TestImporter_ExportReimportKeepsPriceAndCategory(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog()
	im := New(catalog, 0, logging.Discard())

	inputs, err := LoadFile(writeFile(t, "bolts.yaml", bolts))
	require.NoError(t, err)
	_, err = im.Run(ctx, inputs)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, im.Export(ctx, &buf))
	assert.Contains(t, buf.String(), `price: "0.125"`)
	assert.Contains(t, buf.String(), "category: Hardware")

	exported, err := LoadFile(writeFile(t, "export.yaml", buf.String()))
	require.NoError(t, err)
	require.Len(t, exported, 1)
	report, err := im.Run(ctx, exported)
	require.NoError(t, err)
	assert.Equal(t, Report{Updated: 1}, report)

	var buf2 bytes.Buffer
	require.NoError(t, im.Export(ctx, &buf2))
	again, err := LoadFile(writeFile(t, "export2.yaml", buf2.String()))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.True(t, decimal.RequireFromString("0.125").Equal(again[0].Price), "got %s", again[0].Price)
	assert.Equal(t, "Hardware", again[0].Category)
	assert.Equal(t, "Acme", again[0].Brand)

	categories, err := catalog.Categories(ctx)
	require.NoError(t, err)
	assert.Len(t, categories, 1)
}

func TestImporter_UnversionedReimportConflicts(t *testing.T) {
	ctx := context.Background()
	catalog := newCatalog()
	im := New(catalog, 0, logging.Discard())

	inputs, err := LoadFile(writeFile(t, "mugs.yaml", mugs))
	require.NoError(t, err)
	_, err = im.Run(ctx, inputs)
	require.NoError(t, err)

	inputs[0].Stock = 0
	_, err = im.Run(ctx, inputs[:1])
	assert.ErrorIs(t, err, service.ErrConflict)

	p, err := catalog.Page(ctx, service.ProductQuery{})
	require.NoError(t, err)
	require.Len(t, p.Products, 1)
	assert.Equal(t, 3, p.Products[0].Stock)
}

func TestImporter_RunStopsAtFailingBatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	catalog := newCatalog()
	im := New(catalog, 1, logging.Discard())

	inputs, err := LoadFile(writeFile(t, "mugs.yaml", mugs))
	require.NoError(t, err)
	inputs[1].Name = ""

	report, err := im.Run(ctx, inputs)
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	assert.Equal(t, Report{Created: 1}, report)

	page, err := catalog.Page(ctx, service.ProductQuery{ListOptions: service.ListOptions{IncludeUnavailable: true}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
