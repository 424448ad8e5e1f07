// Package importer loads catalog files and applies them through the catalog
// service.
package importer

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/flicky/go-ecommerce-core/internal/dto"
	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/service"
)

// Catalog is the part of the catalog service the importer drives.
type Catalog interface {
	BulkUpsert(ctx context.Context, inputs []model.ProductInput) ([]model.Product, error)
	ListAvailable(ctx context.Context, opts service.ListOptions) iter.Seq2[model.Product, error]
	Categories(ctx context.Context) ([]model.Category, error)
}

type Report struct {
	Created int
	Updated int
}

type Importer struct {
	catalog   Catalog
	batchSize int
	log       *slog.Logger
}

// New returns an importer that applies at most batchSize records per
// transaction. A batchSize of zero applies everything at once.
func New(catalog Catalog, batchSize int, log *slog.Logger) *Importer {
	return &Importer{catalog: catalog, batchSize: batchSize, log: log}
}

// LoadFile parses one catalog file. JSON documents are accepted as YAML.
func LoadFile(path string) ([]model.ProductInput, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file dto.CatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	inputs := make([]model.ProductInput, 0, len(file.Products))
	for i, rec := range file.Products {
		in, err := rec.ToInput()
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i+1, err)
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// LoadFiles parses files concurrently and concatenates their records in
// argument order. A SKU may appear in only one place.
func LoadFiles(ctx context.Context, paths ...string) ([]model.ProductInput, error) {
	loaded := make([][]model.ProductInput, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			inputs, err := LoadFile(path)
			if err != nil {
				return err
			}
			loaded[i] = inputs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]string)
	var all []model.ProductInput
	for i, inputs := range loaded {
		for _, in := range inputs {
			if prev, ok := seen[in.SKU]; ok {
				return nil, fmt.Errorf("sku %q appears in both %s and %s", in.SKU, prev, paths[i])
			}
			seen[in.SKU] = paths[i]
			all = append(all, in)
		}
	}
	return all, nil
}

// Run upserts inputs batch by batch. Batches already applied stay applied
// when a later one fails.
func (im *Importer) Run(ctx context.Context, inputs []model.ProductInput) (Report, error) {
	var report Report
	size := im.batchSize
	if size <= 0 {
		size = len(inputs)
	}
	for start := 0; start < len(inputs); start += size {
		end := min(start+size, len(inputs))
		out, err := im.catalog.BulkUpsert(ctx, inputs[start:end])
		if err != nil {
			return report, fmt.Errorf("records %d-%d: %w", start+1, end, err)
		}
		for _, p := range out {
			if p.Version == 1 {
				report.Created++
			} else {
				report.Updated++
			}
		}
		im.log.Info("catalog batch applied", "from", start+1, "to", end)
	}
	return report, nil
}

// Export writes the full catalog, including unavailable products, in the
// import format. Exported records carry their current version, so feeding
// the output back in updates products instead of failing as duplicates.
func (im *Importer) Export(ctx context.Context, w io.Writer) error {
	categories, err := im.catalog.Categories(ctx)
	if err != nil {
		return fmt.Errorf("export categories: %w", err)
	}
	names := make(map[uuid.UUID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}

	var file dto.CatalogFile
	for p, err := range im.catalog.ListAvailable(ctx, service.ListOptions{IncludeUnavailable: true}) {
		if err != nil {
			return fmt.Errorf("export catalog: %w", err)
		}
		file.Products = append(file.Products, dto.FromProduct(p, names[p.CategoryID]))
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	return enc.Close()
}
