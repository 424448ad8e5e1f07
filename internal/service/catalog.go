package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/go-ecommerce-core/internal/cache"
	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
)

const maxPageLimit = 200

// ListOptions narrows a catalog listing. Zero fields match everything.
// Brand matches case-insensitively and the price bounds are inclusive.
type ListOptions struct {
	Search             string
	IncludeUnavailable bool
	CategoryID         uuid.UUID
	Brand              string
	MinPrice           decimal.NullDecimal
	MaxPrice           decimal.NullDecimal
}

func (o ListOptions) query() (repository.ProductQuery, error) {
	if o.MinPrice.Valid && o.MaxPrice.Valid && o.MinPrice.Decimal.GreaterThan(o.MaxPrice.Decimal) {
		return repository.ProductQuery{}, fmt.Errorf("%w: min price %s is above max price %s",
			ErrInvalidInput, o.MinPrice.Decimal, o.MaxPrice.Decimal)
	}
	return repository.ProductQuery{
		Search:             o.Search,
		IncludeUnavailable: o.IncludeUnavailable,
		CategoryID:         o.CategoryID,
		Brand:              strings.TrimSpace(o.Brand),
		MinPrice:           o.MinPrice,
		MaxPrice:           o.MaxPrice,
	}, nil
}

// ProductQuery selects one page of a product list screen. Page is 1-based.
type ProductQuery struct {
	ListOptions
	Page  int
	Limit int
}

type ProductPage struct {
	Products []model.Product
	Total    int
	Page     int
	Limit    int
}

// CatalogService owns products and their stock.
type CatalogService struct {
	gw       repository.Gateway
	hub      *notify.Hub
	cache    *cache.ProductCache
	pageSize int
	log      *slog.Logger
}

// NewCatalogService accepts a nil cache.
func NewCatalogService(gw repository.Gateway, hub *notify.Hub, pc *cache.ProductCache, pageSize int, log *slog.Logger) *CatalogService {
	if pageSize < 1 {
		pageSize = 50
	}
	return &CatalogService{gw: gw, hub: hub, cache: pc, pageSize: pageSize, log: log}
}

func (s *CatalogService) Get(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	if p := s.cache.Get(ctx, id); p != nil {
		return p, nil
	}
	p, err := s.gw.Products().GetByID(ctx, id)
	if err != nil {
		return nil, classify("get product", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	s.cache.Set(ctx, p)
	return p, nil
}

// ListAvailable lazily walks the catalog in (name, id) order, one page per
// store round trip. Each iteration starts from the first product.
func (s *CatalogService) ListAvailable(ctx context.Context, opts ListOptions) iter.Seq2[model.Product, error] {
	return func(yield func(model.Product, error) bool) {
		q, err := opts.query()
		if err != nil {
			yield(model.Product{}, err)
			return
		}
		q.Limit = s.pageSize
		for {
			page, err := s.gw.Products().List(ctx, q)
			if err != nil {
				yield(model.Product{}, classify("list products", err))
				return
			}
			for _, p := range page {
				if !yield(p, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			last := page[len(page)-1]
			q.After = &repository.ProductCursor{Name: last.Name, ID: last.ID}
		}
	}
}

func (s *CatalogService) Page(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	page := max(q.Page, 1)
	limit := q.Limit
	if limit <= 0 {
		limit = s.pageSize
	}
	limit = min(limit, maxPageLimit)

	rq, err := q.query()
	if err != nil {
		return nil, err
	}
	rq.Offset, rq.Limit = (page-1)*limit, limit
	total, err := s.gw.Products().Count(ctx, rq)
	if err != nil {
		return nil, classify("count products", err)
	}
	products, err := s.gw.Products().List(ctx, rq)
	if err != nil {
		return nil, classify("list products", err)
	}
	return &ProductPage{Products: products, Total: total, Page: page, Limit: limit}, nil
}

// AdjustStock adds delta to a product's stock if its stored version still
// equals expectedVersion.
func (s *CatalogService) AdjustStock(ctx context.Context, id uuid.UUID, delta int, expectedVersion int64) (*model.Product, error) {
	var out *model.Product
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		p, err := st.Products().Lock(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrNotFound
		}
		if p.Version != expectedVersion {
			return fmt.Errorf("%w: product %s is at version %d, expected %d", ErrConflict, id, p.Version, expectedVersion)
		}
		if p.Stock+delta < 0 {
			return &InsufficientStockError{ProductID: id, Requested: -delta, Available: p.Stock}
		}
		p.Stock += delta
		if err := st.Products().Save(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, classify("adjust stock", catalogConflict(err))
	}
	s.cache.Invalidate(ctx, id)
	return out, nil
}

// BulkUpsert inserts or updates products keyed by SKU in one transaction.
// A record without an expected version may only insert; updating an
// existing SKU requires its current version. Nothing is written unless
// every record applies. Results follow the input order.
func (s *CatalogService) BulkUpsert(ctx context.Context, inputs []model.ProductInput) ([]model.Product, error) {
	seen := make(map[string]struct{}, len(inputs))
	for i := range inputs {
		if err := check(inputs[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[inputs[i].SKU]; dup {
			return nil, fmt.Errorf("%w: duplicate sku %q", ErrInvalidInput, inputs[i].SKU)
		}
		seen[inputs[i].SKU] = struct{}{}
	}

	order := make([]int, len(inputs))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int { return cmp.Compare(inputs[a].SKU, inputs[b].SKU) })

	out := make([]model.Product, len(inputs))
	err := s.gw.InTx(ctx, func(st repository.Store) error {
		categories, err := ensureCategories(ctx, st, inputs)
		if err != nil {
			return err
		}
		for _, i := range order {
			in := inputs[i]
			p, err := st.Products().LockBySKU(ctx, in.SKU)
			if err != nil {
				return err
			}
			if p == nil {
				p = &model.Product{SKU: in.SKU}
				applyInput(p, in, categories)
				if err := st.Products().Insert(ctx, p); err != nil {
					return err
				}
				out[i] = *p
				continue
			}
			if in.ExpectedVersion == 0 {
				return fmt.Errorf("%w: sku %q already exists at version %d", ErrConflict, in.SKU, p.Version)
			}
			if in.ExpectedVersion != p.Version {
				return fmt.Errorf("%w: sku %q is at version %d, expected %d", ErrConflict, in.SKU, p.Version, in.ExpectedVersion)
			}
			applyInput(p, in, categories)
			if err := st.Products().Save(ctx, p); err != nil {
				return err
			}
			out[i] = *p
		}
		return nil
	})
	if err != nil {
		return nil, classify("bulk upsert", catalogConflict(err))
	}
	ids := make([]uuid.UUID, len(out))
	for i := range out {
		ids[i] = out[i].ID
	}
	s.cache.Invalidate(ctx, ids...)
	s.log.Info("catalog upserted", "records", len(inputs))
	return out, nil
}

func applyInput(p *model.Product, in model.ProductInput, categories map[string]uuid.UUID) {
	p.Name = in.Name
	p.Description = in.Description
	p.Price = in.Price
	p.Stock = in.Stock
	p.CategoryID = categories[in.Category]
	p.Brand = in.Brand
	p.Active = in.Active
}

// ensureCategories resolves the category names used by inputs to ids,
// creating the missing ones.
func ensureCategories(ctx context.Context, st repository.Store, inputs []model.ProductInput) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID)
	for _, in := range inputs {
		if in.Category == "" {
			continue
		}
		if _, ok := ids[in.Category]; ok {
			continue
		}
		c := &model.Category{Name: in.Category}
		if err := st.Categories().Ensure(ctx, c); err != nil {
			return nil, err
		}
		ids[in.Category] = c.ID
	}
	return ids, nil
}

func (s *CatalogService) Categories(ctx context.Context) ([]model.Category, error) {
	categories, err := s.gw.Categories().List(ctx)
	if err != nil {
		return nil, classify("list categories", err)
	}
	return categories, nil
}

type categoryInput struct {
	Name        string `validate:"required,max=100"`
	Description string `validate:"max=1000"`
}

func (s *CatalogService) CreateCategory(ctx context.Context, name, description string) (*model.Category, error) {
	in := categoryInput{Name: strings.TrimSpace(name), Description: description}
	if err := check(in); err != nil {
		return nil, err
	}
	c := &model.Category{Name: in.Name, Description: in.Description}
	if err := s.gw.Categories().Create(ctx, c); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: category %q exists", ErrConflict, in.Name)
		}
		return nil, classify("create category", err)
	}
	return c, nil
}

// catalogConflict maps store-level races on product rows to ErrConflict so
// callers re-read and retry.
func catalogConflict(err error) error {
	if errors.Is(err, repository.ErrVersionConflict) ||
		errors.Is(err, repository.ErrTxConflict) ||
		errors.Is(err, repository.ErrUniqueViolation) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// Watch streams the catalog listing selected by opts after every catalog
// change.
func (s *CatalogService) Watch(ctx context.Context, opts ListOptions) (<-chan []model.Product, error) {
	return feed(ctx, s.hub, notify.ForTopic(notify.TopicCatalog), s.log,
		func(ctx context.Context) ([]model.Product, error) {
			var products []model.Product
			for p, err := range s.ListAvailable(ctx, opts) {
				if err != nil {
					return nil, err
				}
				products = append(products, p)
			}
			return products, nil
		})
}
