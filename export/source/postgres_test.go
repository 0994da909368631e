package source

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/samjbobb/exportbench/export/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	connString := os.Getenv("POSTGRES_CONNECTION")
	if connString == "" {
		t.Skip("POSTGRES_CONNECTION not set")
	}
	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(connString)
	require.NoError(t, err)
	pool, err := pgxpool.ConnectConfig(ctx, poolConfig)
	require.NoError(t, err)
	src := NewPostgres(pool, stdlib.OpenDB(*poolConfig.ConnConfig))
	defer src.Close()

	_, err = pool.Exec(ctx, `drop table if exists data`)
	require.NoError(t, err)
	require.NoError(t, src.EnsureSchema(ctx))

	empty, err := src.IsEmpty(ctx)
	require.NoError(t, err)
	assert.True(t, empty)

	want := []record.Record{
		{EmployeeID: uuid.New(), Name: record.Text("Taylor Swift"), Department: record.Text("Pop")},
		{EmployeeID: uuid.New()},
	}
	require.NoError(t, src.InsertBatch(ctx, want))

	empty, err = src.IsEmpty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)

	stream, err := src.StreamRecords(ctx)
	require.NoError(t, err)
	streamed, err := collect(stream)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, streamed)

	all, err := src.FetchAll(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, all)

	raw, err := src.FetchAllViaRawQuery(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, want, raw)
}
