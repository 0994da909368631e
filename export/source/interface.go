package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/samjbobb/exportbench/export/record"
)

// Table is the relation every source reads from and seeds into.
const Table = "data"

var selectAll = fmt.Sprintf("select %s from %s", strings.Join(record.Columns, ", "), Table)

// DataSource is the origin of exported records. Every call re-issues the query, nothing is shared
// between calls.
type DataSource interface {
	// StreamRecords returns records one at a time without holding the result set in memory.
	// The stream must be exhausted or closed to release the underlying connection.
	StreamRecords(ctx context.Context) (RecordStream, error)
	// FetchAll reads every record into memory before returning.
	FetchAll(ctx context.Context) ([]record.Record, error)
	// FetchAllViaRawQuery has the semantics of FetchAll but goes through an alternate client path.
	FetchAllViaRawQuery(ctx context.Context) ([]record.Record, error)
}

// RecordStream is a forward-only cursor over records, used like pgx.Rows.
type RecordStream interface {
	Next() bool
	Record() record.Record
	// Err returns the error, if any, that stopped iteration.
	Err() error
	// Close releases the cursor. It is safe to call more than once.
	Close()
}

// DataSourceError is returned for any connection, query or decode failure.
type DataSourceError struct {
	Op string
	// Code is the SQLSTATE when the error came from a Postgres server.
	Code string
	Err  error
}

func newError(op string, err error) *DataSourceError {
	e := &DataSourceError{Op: op, Err: err}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		e.Code = pgErr.Code
	}
	return e
}

func (e *DataSourceError) Error() string {
	if pgconn.Timeout(e.Err) {
		return fmt.Sprintf("data source %s: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("data source %s: %v", e.Op, e.Err)
}

func (e *DataSourceError) Unwrap() error {
	return e.Err
}

// collect drains a stream into a slice.
func collect(s RecordStream) ([]record.Record, error) {
	defer s.Close()
	out := make([]record.Record, 0)
	for s.Next() {
		out = append(out, s.Record())
	}
	return out, s.Err()
}
