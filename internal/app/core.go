// Package app assembles the stores and services and exposes them as
// asynchronous operations for a client front end.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/go-ecommerce-core/internal/cache"
	"github.com/flicky/go-ecommerce-core/internal/config"
	"github.com/flicky/go-ecommerce-core/internal/model"
	"github.com/flicky/go-ecommerce-core/internal/notify"
	"github.com/flicky/go-ecommerce-core/internal/repository"
	"github.com/flicky/go-ecommerce-core/internal/repository/memory"
	"github.com/flicky/go-ecommerce-core/internal/service"
	"github.com/flicky/go-ecommerce-core/internal/worker"
)

type Core struct {
	Auth      *service.AuthService
	Catalog   *service.CatalogService
	Carts     *service.CartService
	Favorites *service.FavoriteService
	Reviews   *service.ReviewService
	Orders    *service.OrderService

	gw     repository.Gateway
	hub    *notify.Hub
	pool   *worker.Pool
	db     *pgxpool.Pool
	cache  *cache.ProductCache
	log    *slog.Logger
	cancel context.CancelFunc
}

// Open connects the configured store, applies migrations when asked to and
// starts the worker pool.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Core, error) {
	hub := notify.NewHub()

	var (
		gw repository.Gateway
		db *pgxpool.Pool
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		gw = memory.New(hub)
		log.Info("using in-memory store")
	default:
		var err error
		db, err = repository.Connect(ctx, cfg.DB.DSN(), cfg.DB.MaxConns)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := repository.Migrate(ctx, db); err != nil {
				db.Close()
				return nil, err
			}
			log.Info("schema migrated")
		}
		gw = repository.NewPgGateway(db, hub)
		log.Info("connected to PostgreSQL", "host", cfg.DB.Host, "database", cfg.DB.Name)
	}

	var pc *cache.ProductCache
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			if db != nil {
				db.Close()
			}
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		pc = cache.NewProductCache(client, cfg.Redis.TTL, log)
		log.Info("connected to Redis", "addr", cfg.Redis.Addr)
	}

	return New(gw, hub, pc, db, cfg, log), nil
}

// New builds a Core over an existing gateway. db may be nil.
func New(gw repository.Gateway, hub *notify.Hub, pc *cache.ProductCache, db *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *Core {
	ctx, cancel := context.WithCancel(context.Background())
	if pc != nil {
		go pc.Follow(ctx, hub.Subscribe(notify.ForTopic(notify.TopicCatalog)))
	}

	pool := worker.NewPool(cfg.Worker.Size, cfg.Worker.QueueSize, log)
	pool.Start()

	return &Core{
		Auth: service.NewAuthService(gw, service.NewBcryptHasher(service.PasswordCost), service.SessionConfig{
			Secret: cfg.Session.Secret,
			TTL:    cfg.Session.Expiration,
		}),
		Catalog:   service.NewCatalogService(gw, hub, pc, cfg.Catalog.PageSize, log),
		Carts:     service.NewCartService(gw, hub, log),
		Favorites: service.NewFavoriteService(gw, hub, log),
		Reviews:   service.NewReviewService(gw, hub, log),
		Orders: service.NewOrderService(gw, hub, pc, log, service.RetryPolicy{
			Attempts: cfg.Order.RetryAttempts,
			Backoff:  cfg.Order.RetryBackoff,
		}),
		gw:     gw,
		hub:    hub,
		pool:   pool,
		db:     db,
		cache:  pc,
		log:    log,
		cancel: cancel,
	}
}

// Close drains queued work and releases connections. Watches end when
// their own contexts are cancelled.
func (c *Core) Close() {
	c.pool.Stop()
	c.cancel()
	if err := c.cache.Close(); err != nil {
		c.log.Warn("close redis", "error", err)
	}
	if c.db != nil {
		c.db.Close()
	}
	c.log.Info("core closed")
}

// Ready checks the store and, when configured, the cache.
func (c *Core) Ready(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.gw.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

func run[T any](ctx context.Context, c *Core, op string, fn func(context.Context) (T, error)) <-chan worker.Result[T] {
	return worker.Submit(ctx, c.pool, func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		if err != nil {
			c.report(op, err)
		}
		return v, err
	})
}

func (c *Core) report(op string, err error) {
	switch {
	case service.IsDomain(err):
		c.log.Debug("operation rejected", "op", op, "error", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
	default:
		c.log.Error("operation failed", "op", op, "error", err)
	}
}

// --- Credentials ---

func (c *Core) Register(ctx context.Context, username, password string) <-chan worker.Result[uuid.UUID] {
	return run(ctx, c, "register", func(ctx context.Context) (uuid.UUID, error) {
		return c.Auth.Register(ctx, username, password)
	})
}

func (c *Core) Authenticate(ctx context.Context, username, password string) <-chan worker.Result[uuid.UUID] {
	return run(ctx, c, "authenticate", func(ctx context.Context) (uuid.UUID, error) {
		return c.Auth.Authenticate(ctx, username, password)
	})
}

func (c *Core) Login(ctx context.Context, username, password string) <-chan worker.Result[*model.Session] {
	return run(ctx, c, "login", func(ctx context.Context) (*model.Session, error) {
		return c.Auth.Login(ctx, username, password)
	})
}

func (c *Core) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword, newPassword string) <-chan worker.Result[struct{}] {
	return run(ctx, c, "change password", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Auth.ChangePassword(ctx, userID, oldPassword, newPassword)
	})
}

func (c *Core) Profile(ctx context.Context, userID uuid.UUID) <-chan worker.Result[*model.User] {
	return run(ctx, c, "get profile", func(ctx context.Context) (*model.User, error) {
		return c.Auth.Profile(ctx, userID)
	})
}

func (c *Core) UpdateProfile(ctx context.Context, userID uuid.UUID, profile model.Profile) <-chan worker.Result[*model.User] {
	return run(ctx, c, "update profile", func(ctx context.Context) (*model.User, error) {
		return c.Auth.UpdateProfile(ctx, userID, profile)
	})
}

// ResolveSession does no I/O and runs on the caller's goroutine.
func (c *Core) ResolveSession(token string) (uuid.UUID, error) {
	return c.Auth.ResolveSession(token)
}

// --- Catalog ---

func (c *Core) Product(ctx context.Context, id uuid.UUID) <-chan worker.Result[*model.Product] {
	return run(ctx, c, "get product", func(ctx context.Context) (*model.Product, error) {
		return c.Catalog.Get(ctx, id)
	})
}

// AvailableProducts collects the whole listing. Use Catalog.ListAvailable
// directly to stop early.
func (c *Core) AvailableProducts(ctx context.Context, opts service.ListOptions) <-chan worker.Result[[]model.Product] {
	return run(ctx, c, "list products", func(ctx context.Context) ([]model.Product, error) {
		var out []model.Product
		for p, err := range c.Catalog.ListAvailable(ctx, opts) {
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	})
}

func (c *Core) ProductPage(ctx context.Context, q service.ProductQuery) <-chan worker.Result[*service.ProductPage] {
	return run(ctx, c, "page products", func(ctx context.Context) (*service.ProductPage, error) {
		return c.Catalog.Page(ctx, q)
	})
}

func (c *Core) AdjustStock(ctx context.Context, id uuid.UUID, delta int, expectedVersion int64) <-chan worker.Result[*model.Product] {
	return run(ctx, c, "adjust stock", func(ctx context.Context) (*model.Product, error) {
		return c.Catalog.AdjustStock(ctx, id, delta, expectedVersion)
	})
}

func (c *Core) UpsertProducts(ctx context.Context, inputs []model.ProductInput) <-chan worker.Result[[]model.Product] {
	return run(ctx, c, "upsert products", func(ctx context.Context) ([]model.Product, error) {
		return c.Catalog.BulkUpsert(ctx, inputs)
	})
}

func (c *Core) Categories(ctx context.Context) <-chan worker.Result[[]model.Category] {
	return run(ctx, c, "list categories", func(ctx context.Context) ([]model.Category, error) {
		return c.Catalog.Categories(ctx)
	})
}

func (c *Core) CreateCategory(ctx context.Context, name, description string) <-chan worker.Result[*model.Category] {
	return run(ctx, c, "create category", func(ctx context.Context) (*model.Category, error) {
		return c.Catalog.CreateCategory(ctx, name, description)
	})
}

// --- Cart ---

func (c *Core) SetCartItem(ctx context.Context, userID, productID uuid.UUID, quantity int) <-chan worker.Result[struct{}] {
	return run(ctx, c, "set cart item", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Carts.AddOrUpdate(ctx, userID, productID, quantity)
	})
}

func (c *Core) RemoveCartItem(ctx context.Context, userID, productID uuid.UUID) <-chan worker.Result[struct{}] {
	return run(ctx, c, "remove cart item", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Carts.Remove(ctx, userID, productID)
	})
}

func (c *Core) Cart(ctx context.Context, userID uuid.UUID) <-chan worker.Result[*model.CartView] {
	return run(ctx, c, "view cart", func(ctx context.Context) (*model.CartView, error) {
		return c.Carts.View(ctx, userID)
	})
}

func (c *Core) CartSummary(ctx context.Context, userID uuid.UUID) <-chan worker.Result[*model.CartSummary] {
	return run(ctx, c, "cart summary", func(ctx context.Context) (*model.CartSummary, error) {
		return c.Carts.Summary(ctx, userID)
	})
}

func (c *Core) ClearCart(ctx context.Context, userID uuid.UUID) <-chan worker.Result[struct{}] {
	return run(ctx, c, "clear cart", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Carts.Clear(ctx, userID)
	})
}

// --- Favorites ---

func (c *Core) AddFavorite(ctx context.Context, userID, productID uuid.UUID) <-chan worker.Result[struct{}] {
	return run(ctx, c, "add favorite", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Favorites.Add(ctx, userID, productID)
	})
}

func (c *Core) RemoveFavorite(ctx context.Context, userID, productID uuid.UUID) <-chan worker.Result[struct{}] {
	return run(ctx, c, "remove favorite", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Favorites.Remove(ctx, userID, productID)
	})
}

func (c *Core) ToggleFavorite(ctx context.Context, userID, productID uuid.UUID) <-chan worker.Result[bool] {
	return run(ctx, c, "toggle favorite", func(ctx context.Context) (bool, error) {
		return c.Favorites.Toggle(ctx, userID, productID)
	})
}

func (c *Core) FavoriteProducts(ctx context.Context, userID uuid.UUID) <-chan worker.Result[[]model.Product] {
	return run(ctx, c, "list favorites", func(ctx context.Context) ([]model.Product, error) {
		return c.Favorites.List(ctx, userID)
	})
}

// --- Reviews ---

func (c *Core) SubmitReview(ctx context.Context, userID, productID uuid.UUID, rating int, comment string) <-chan worker.Result[*model.Review] {
	return run(ctx, c, "submit review", func(ctx context.Context) (*model.Review, error) {
		return c.Reviews.Submit(ctx, userID, productID, rating, comment)
	})
}

func (c *Core) DeleteReview(ctx context.Context, userID, productID uuid.UUID) <-chan worker.Result[struct{}] {
	return run(ctx, c, "delete review", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Reviews.Delete(ctx, userID, productID)
	})
}

func (c *Core) ProductReviews(ctx context.Context, productID uuid.UUID, limit int) <-chan worker.Result[[]model.Review] {
	return run(ctx, c, "list reviews", func(ctx context.Context) ([]model.Review, error) {
		return c.Reviews.List(ctx, productID, limit)
	})
}

func (c *Core) ProductRating(ctx context.Context, productID uuid.UUID) <-chan worker.Result[*model.Rating] {
	return run(ctx, c, "product rating", func(ctx context.Context) (*model.Rating, error) {
		return c.Reviews.Rating(ctx, productID)
	})
}

// --- Orders ---

func (c *Core) PlaceOrder(ctx context.Context, userID uuid.UUID, opts ...service.OrderOption) <-chan worker.Result[*model.Order] {
	return run(ctx, c, "place order", func(ctx context.Context) (*model.Order, error) {
		return c.Orders.PlaceOrder(ctx, userID, opts...)
	})
}

func (c *Core) CancelOrder(ctx context.Context, orderID, userID uuid.UUID) <-chan worker.Result[struct{}] {
	return run(ctx, c, "cancel order", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Orders.CancelOrder(ctx, orderID, userID)
	})
}

func (c *Core) Order(ctx context.Context, orderID, userID uuid.UUID) <-chan worker.Result[*model.Order] {
	return run(ctx, c, "get order", func(ctx context.Context) (*model.Order, error) {
		return c.Orders.Get(ctx, orderID, userID)
	})
}

func (c *Core) OrderHistory(ctx context.Context, userID uuid.UUID, filter service.OrderFilter) <-chan worker.Result[[]model.Order] {
	return run(ctx, c, "list orders", func(ctx context.Context) ([]model.Order, error) {
		return c.Orders.List(ctx, userID, filter)
	})
}

func (c *Core) OrderStats(ctx context.Context, userID uuid.UUID) <-chan worker.Result[*model.OrderStats] {
	return run(ctx, c, "order stats", func(ctx context.Context) (*model.OrderStats, error) {
		return c.Orders.Stats(ctx, userID)
	})
}

// --- Watches ---

func (c *Core) WatchCatalog(ctx context.Context, opts service.ListOptions) (<-chan []model.Product, error) {
	return c.Catalog.Watch(ctx, opts)
}

func (c *Core) WatchCart(ctx context.Context, userID uuid.UUID) (<-chan model.CartView, error) {
	return c.Carts.Watch(ctx, userID)
}

func (c *Core) WatchOrders(ctx context.Context, userID uuid.UUID) (<-chan []model.Order, error) {
	return c.Orders.Watch(ctx, userID)
}

func (c *Core) WatchFavorites(ctx context.Context, userID uuid.UUID) (<-chan []model.Product, error) {
	return c.Favorites.Watch(ctx, userID)
}

func (c *Core) WatchReviews(ctx context.Context, productID uuid.UUID) (<-chan service.ProductReviews, error) {
	return c.Reviews.Watch(ctx, productID)
}
