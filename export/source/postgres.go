package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/samjbobb/exportbench/export/record"
	"github.com/sirupsen/logrus"
)

// Postgres reads through a pgx pool. The raw query path uses database/sql over the pgx stdlib driver.
type Postgres struct {
	pool *pgxpool.Pool
	raw  *sql.DB
}

func NewPostgres(pool *pgxpool.Pool, raw *sql.DB) *Postgres {
	return &Postgres{pool: pool, raw: raw}
}

func (p *Postgres) StreamRecords(ctx context.Context) (RecordStream, error) {
	rows, err := p.pool.Query(ctx, selectAll)
	if err != nil {
		return nil, newError("query", err)
	}
	return &pgxStream{rows: rows}, nil
}

func (p *Postgres) FetchAll(ctx context.Context) ([]record.Record, error) {
	s, err := p.StreamRecords(ctx)
	if err != nil {
		return nil, err
	}
	return collect(s)
}

func (p *Postgres) FetchAllViaRawQuery(ctx context.Context) ([]record.Record, error) {
	rows, err := p.raw.QueryContext(ctx, selectAll)
	if err != nil {
		return nil, newError("raw query", err)
	}
	return collect(&sqlStream{rows: rows})
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(
		`create table if not exists %s (employee_id uuid not null, name text, department text)`,
		pgx.Identifier{Table}.Sanitize()))
	if err != nil {
		return newError("create table", err)
	}
	return nil
}

func (p *Postgres) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, fmt.Sprintf("select exists (select 1 from %s)", pgx.Identifier{Table}.Sanitize())).Scan(&exists)
	if err != nil {
		return false, newError("count", err)
	}
	return !exists, nil
}

// InsertBatch loads records with COPY.
func (p *Postgres) InsertBatch(ctx context.Context, batch []record.Record) error {
	rows := make([][]interface{}, len(batch))
	for i, r := range batch {
		rows[i] = []interface{}{
			pgtype.UUID{Bytes: r.EmployeeID, Status: pgtype.Present},
			pgText(r.Name),
			pgText(r.Department),
		}
	}
	n, err := p.pool.CopyFrom(ctx, pgx.Identifier{Table}, record.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return newError("copy", err)
	}
	logrus.WithField("rows", n).Debugln("copied batch")
	return nil
}

// Close releases the pool and the raw connection.
func (p *Postgres) Close() error {
	p.pool.Close()
	return p.raw.Close()
}

func pgText(s sql.NullString) pgtype.Text {
	if !s.Valid {
		return pgtype.Text{Status: pgtype.Null}
	}
	return pgtype.Text{String: s.String, Status: pgtype.Present}
}

func nullString(t pgtype.Text) sql.NullString {
	return sql.NullString{String: t.String, Valid: t.Status == pgtype.Present}
}

type pgxStream struct {
	rows pgx.Rows
	cur  record.Record
	err  error
}

func (s *pgxStream) Next() bool {
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
		id         pgtype.UUID
		name, dept pgtype.Text
	)
	if err := s.rows.Scan(&id, &name, &dept); err != nil {
		s.err = newError("scan", err)
		s.rows.Close()
		return false
	}
	s.cur = record.Record{
		EmployeeID: uuid.UUID(id.Bytes),
		Name:       nullString(name),
		Department: nullString(dept),
	}
	return true
}

func (s *pgxStream) Record() record.Record {
	return s.cur
}

func (s *pgxStream) Err() error {
	return s.err
}

func (s *pgxStream) Close() {
	s.rows.Close()
}
