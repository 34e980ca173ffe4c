package postgres

import (
	"context"

	"github.com/factuurly/factuurly/internal/config"
	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/factuurly/factuurly/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// IClient is the interface the repositories depend on
type IClient interface {
	DB() *sqlx.DB
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
	Close() error
}

// Client wraps the sqlx connection pool
type Client struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewClient connects to postgres using the configured DSN
func NewClient(cfg *config.Configuration, logger *logger.Logger) (IClient, error) {
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to the database").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	logger.Infow("connected to postgres",
		"host", cfg.Postgres.Host,
		"database", cfg.Postgres.DBName)

	return &Client{db: db, logger: logger}, nil
}

func (c *Client) DB() *sqlx.DB {
	return c.db
}

// WithTx runs fn inside a transaction, rolling back on error
func (c *Client) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to start transaction").
			Mark(ierr.ErrDatabase)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Errorw("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to commit transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}
