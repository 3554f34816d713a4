package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type DBOptions struct {
	DSN       string
	PingTO    time.Duration
	MaxOpen   int
	MaxIdle   int
	ConnMaxLT time.Duration
}

// OpenDB opens the Postgres audit database through the pgx driver.
func OpenDB(ctx context.Context, opt DBOptions) (*sql.DB, error) {
	if opt.DSN == "" {
		return nil, fmt.Errorf("AUDIT_PG_DSN is not set")
	}
	if opt.PingTO == 0 {
		opt.PingTO = 2 * time.Second
	}
	if opt.MaxOpen == 0 {
		opt.MaxOpen = 10
	}
	if opt.MaxIdle == 0 {
		opt.MaxIdle = 5
	}
	if opt.ConnMaxLT == 0 {
		opt.ConnMaxLT = 30 * time.Minute
	}

	db, err := sql.Open("pgx", opt.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(opt.MaxOpen)
	db.SetMaxIdleConns(opt.MaxIdle)
	db.SetConnMaxLifetime(opt.ConnMaxLT)

	pctx, cancel := context.WithTimeout(ctx, opt.PingTO)
	defer cancel()

	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}
