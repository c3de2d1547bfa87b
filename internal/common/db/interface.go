package db

import "context"

// Database is the relational store surface the repositories work
// against. Implementations own their connection pool.
type Database interface {
	// Query runs a statement that returns rows.
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)

	// QueryRow runs a statement that returns at most one row.
	QueryRow(ctx context.Context, query string, args ...interface{}) Row

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)

	// Transaction runs fn inside a transaction, committing when fn
	// returns nil and rolling back otherwise.
	Transaction(ctx context.Context, fn func(tx Transaction) error) error

	// Ping verifies the connection is still alive.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// Transaction is the statement surface available inside Transaction.
type Transaction interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
	Commit() error
	Rollback() error
}

// Rows is the result of a query that returns multiple rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of a query that returns at most one row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Scanner is the scan surface shared by Row and Rows, so one scan
// helper serves both single-row and iterated reads.
type Scanner interface {
	Scan(dest ...interface{}) error
}

// Result summarizes an executed statement.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}
