package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/go-ecommerce-core/internal/notify"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type pgStore struct {
	users      *pgUserRepo
	categories *pgCategoryRepo
	products   *pgProductRepo
	carts      *pgCartRepo
	favorites  *pgFavoriteRepo
	reviews    *pgReviewRepo
	orders     *pgOrderRepo
}

func newPgStore(db DBTX, rec notify.Recorder) *pgStore {
	return &pgStore{
		users:      &pgUserRepo{db: db},
		categories: &pgCategoryRepo{db: db, rec: rec},
		products:   &pgProductRepo{db: db, rec: rec},
		carts:      &pgCartRepo{db: db, rec: rec},
		favorites:  &pgFavoriteRepo{db: db, rec: rec},
		reviews:    &pgReviewRepo{db: db, rec: rec},
		orders:     &pgOrderRepo{db: db, rec: rec},
	}
}

func (s *pgStore) Users() UserRepository          { return s.users }
func (s *pgStore) Categories() CategoryRepository { return s.categories }
func (s *pgStore) Products() ProductRepository    { return s.products }
func (s *pgStore) Carts() CartRepository          { return s.carts }
func (s *pgStore) Favorites() FavoriteRepository  { return s.favorites }
func (s *pgStore) Reviews() ReviewRepository      { return s.reviews }
func (s *pgStore) Orders() OrderRepository        { return s.orders }

// PgGateway is the PostgreSQL Gateway. Product rows touched by a transaction
// are locked with SELECT ... FOR UPDATE so concurrent orders serialize on the
// products they share. Cart writers and checkout also lock the user row.
type PgGateway struct {
	*pgStore
	pool *pgxpool.Pool
	hub  *notify.Hub
}

func NewPgGateway(pool *pgxpool.Pool, hub *notify.Hub) *PgGateway {
	return &PgGateway{
		pgStore: newPgStore(pool, notify.Direct{Hub: hub}),
		pool:    pool,
		hub:     hub,
	}
}

func (g *PgGateway) InTx(ctx context.Context, fn func(Store) error) error {
	ctx = context.WithoutCancel(ctx)

	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	var batch notify.Batch
	if err := fn(newPgStore(tx, &batch)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	batch.Flush(g.hub)
	return nil
}

func (g *PgGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}

// classify maps PostgreSQL error codes onto the package sentinels, keeping
// the driver error in the chain.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case "40001", "40P01":
		return fmt.Errorf("%w: %w", ErrTxConflict, err)
	}
	return err
}
