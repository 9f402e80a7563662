// Package execution runs read queries against the relational store and
// normalizes both results and failures.
package execution

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

const defaultTimeout = 30 * time.Second

// ExecutionError carries the engine-native failure message. Timeout is set
// when the per-call deadline expired.
type ExecutionError struct {
	Message string
	Timeout bool
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// Options tune an Executor. Zero values select the defaults.
type Options struct {
	Timeout    time.Duration
	DisplayCap int
}

// Executor runs queries with a per-call timeout. It never retries.
type Executor struct {
	db         *sql.DB
	driver     string
	timeout    time.Duration
	displayCap int
}

// driverNames maps configured driver names to registered database/sql drivers.
var driverNames = map[string]string{
	"sqlite":    "sqlite",
	"postgres":  "postgres",
	"sqlserver": "sqlserver",
}

// Open connects to the relational store. driver is one of sqlite, postgres
// or sqlserver.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Executor, error) {
	name, ok := driverNames[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("database DSN is empty")
	}

	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}

	return New(db, driver, opts), nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver string, opts Options) *Executor {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.DisplayCap <= 0 {
		opts.DisplayCap = DefaultDisplayCap
	}
	return &Executor{db: db, driver: driver, timeout: opts.Timeout, displayCap: opts.DisplayCap}
}

// Driver returns the configured driver name.
func (e *Executor) Driver() string {
	return e.driver
}

// Ping checks connectivity.
func (e *Executor) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close closes the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

// Execute runs query and returns at most the display cap of rows. Every
// failure is returned as *ExecutionError.
func (e *Executor) Execute(ctx context.Context, query string) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.run(callCtx, query)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return Result{}, &ExecutionError{
				Message: fmt.Sprintf("query timed out after %s", e.timeout),
				Timeout: true,
			}
		}
		return Result{}, &ExecutionError{Message: err.Error()}
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, query string) (Result, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	res := Result{Columns: cols}
	for rows.Next() {
		res.TotalRows++
		if res.TotalRows > e.displayCap {
			continue
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, err
		}
		for i, v := range values {
			values[i] = normalize(v)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	if res.TotalRows > e.displayCap {
		res.Truncated = true
		res.OmittedRows = res.TotalRows - e.displayCap
	}
	return res, nil
}
