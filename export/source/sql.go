package source

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samjbobb/exportbench/export/record"
	"github.com/sirupsen/logrus"
	_ "github.com/snowflakedb/gosnowflake"
	_ "modernc.org/sqlite"
)

// Dialect holds what differs between database/sql backends.
type Dialect struct {
	// Driver is the name the database/sql driver registers under.
	Driver      string
	CreateTable string
	Placeholder func(n int) string
}

func question(int) string { return "?" }

var (
	SQLite = Dialect{
		Driver:      "sqlite",
		CreateTable: `create table if not exists data (employee_id text not null, name text, department text)`,
		Placeholder: question,
	}
	Snowflake = Dialect{
		Driver:      "snowflake",
		CreateTable: `create table if not exists data (employee_id varchar not null, name varchar, department varchar)`,
		Placeholder: question,
	}
)

// SQL is a DataSource over any database/sql driver.
// The raw query path uses a dedicated connection and a prepared statement.
type SQL struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQL(db *sql.DB, dialect Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// OpenSQL opens and pings a database/sql source.
func OpenSQL(ctx context.Context, dialect Dialect, dsn string) (*SQL, error) {
	db, err := sql.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, newError("open", err)
	}
	if dialect.Driver == SQLite.Driver {
		// a single connection keeps readers and the seeding writer from hitting SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, newError("ping", err)
	}
	return NewSQL(db, dialect), nil
}

func (s *SQL) StreamRecords(ctx context.Context) (RecordStream, error) {
	rows, err := s.db.QueryContext(ctx, selectAll)
	if err != nil {
		return nil, newError("query", err)
	}
	return &sqlStream{rows: rows}, nil
}

func (s *SQL) FetchAll(ctx context.Context) ([]record.Record, error) {
	stream, err := s.StreamRecords(ctx)
	if err != nil {
		return nil, err
	}
	return collect(stream)
}

func (s *SQL) FetchAllViaRawQuery(ctx context.Context) ([]record.Record, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, newError("conn", err)
	}
	defer conn.Close()
	stmt, err := conn.PrepareContext(ctx, selectAll)
	if err != nil {
		return nil, newError("prepare", err)
	}
	defer stmt.Close()
	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, newError("raw query", err)
	}
	return collect(&sqlStream{rows: rows})
}

func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateTable); err != nil {
		return newError("create table", err)
	}
	return nil
}

func (s *SQL) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("select count(*) from (select 1 from %s limit 1) t", Table)).Scan(&n); err != nil {
		return false, newError("count", err)
	}
	return n == 0, nil
}

// InsertBatch writes the batch as one multi-row insert inside a transaction.
func (s *SQL) InsertBatch(ctx context.Context, batch []record.Record) error {
	if len(batch) == 0 {
		return nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "insert into %s (%s) values ", Table, strings.Join(record.Columns, ", "))
	args := make([]interface{}, 0, len(batch)*len(record.Columns))
	for i, r := range batch {
		if i > 0 {
			b.WriteString(", ")
		}
		n := len(args)
		fmt.Fprintf(&b, "(%s, %s, %s)", s.dialect.Placeholder(n+1), s.dialect.Placeholder(n+2), s.dialect.Placeholder(n+3))
		args = append(args, r.EmployeeID.String(), r.Name, r.Department)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return newError("begin", err)
	}
	if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logrus.WithError(rbErr).Warnln("could not roll back insert")
		}
		return newError("insert", err)
	}
	if err := tx.Commit(); err != nil {
		return newError("commit", err)
	}
	return nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

type sqlStream struct {
	rows *sql.Rows
	cur  record.Record
	err  error
}

func (s *sqlStream) Next() bool {
	if s.err != nil {
		return false
	}
	if !s.rows.Next() {
		if err := s.rows.Err(); err != nil {
			s.err = newError("read", err)
		}
		return false
	}
	var (
		id         string
		name, dept sql.NullString
	)
	if err := s.rows.Scan(&id, &name, &dept); err != nil {
		s.err = newError("scan", err)
		s.rows.Close()
		return false
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		s.err = newError("decode", fmt.Errorf("employee_id %q: %w", id, err))
		s.rows.Close()
		return false
	}
	s.cur = record.Record{EmployeeID: parsed, Name: name, Department: dept}
	return true
}

func (s *sqlStream) Record() record.Record {
	return s.cur
}

func (s *sqlStream) Err() error {
	return s.err
}

func (s *sqlStream) Close() {
	s.rows.Close()
}
