package runner

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/samjbobb/exportbench/export/record"
	"github.com/samjbobb/exportbench/export/seed"
	"github.com/samjbobb/exportbench/export/sink"
	"github.com/samjbobb/exportbench/export/source"
	"github.com/samjbobb/exportbench/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// the snowflake driver's keyring opens a session bus connection during init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/godbus/dbus.(*Conn).inWorker"))
}

func openSQLite(t *testing.T) *source.SQL {
	t.Helper()
	src, err := source.OpenSQL(context.Background(), source.SQLite, filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, src.Close())
	})
	return src
}

var reportLine = regexp.MustCompile(`^(\w+): Time = \S+, Max Memory Used = -?\d+\.\d{2} MB$`)

func TestRunner_Run(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t)
	dir := t.TempDir()
	var out bytes.Buffer
	r := NewRunner(src, sink.DirOpener(dir), WithOutput(&out), WithSeed(seed.Options{Rows: 40, BatchSize: 7}))

	results, err := r.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, len(FirstPass)+len(SecondPass))

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	var names []string
	for i, line := range lines {
		if i >= len(FirstPass) && i < len(FirstPass)+3 {
			assert.Equal(t, separator, line)
			continue
		}
		m := reportLine.FindStringSubmatch(line)
		require.NotNil(t, m, line)
		names = append(names, m[1])
	}
	assert.Equal(t, Names(), names)
	assert.Len(t, lines, len(FirstPass)+3+len(SecondPass))

	for _, res := range results[len(FirstPass):] {
		assert.True(t, res.Pinned, res.Name)
	}

	var reference []string
	for _, file := range []string{FileStreaming, FileList, FileListAsync, FileBatchedList, FileBatchedListAsync, FileBatchedListRaw} {
		got, err := utils.ReadLines(filepath.Join(dir, file))
		require.NoError(t, err)
		require.Len(t, got, 41, file)
		assert.Equal(t, record.Header, got[0], file)
		if reference == nil {
			reference = got
			continue
		}
		assert.ElementsMatch(t, reference, got, file)
	}

	// a second run does not seed again
	out.Reset()
	_, err = r.Run(ctx)
	require.NoError(t, err)
	got, err := utils.ReadLines(filepath.Join(dir, FileList))
	require.NoError(t, err)
	assert.Len(t, got, 41)
}

func TestRunner_RunOne(t *testing.T) {
	ctx := context.Background()
	src := openSQLite(t)
	dir := t.TempDir()
	var out bytes.Buffer
	r := NewRunner(src, sink.DirOpener(dir), WithOutput(&out), WithSeed(seed.Options{Rows: 5, BatchSize: 2}))
	require.NoError(t, r.EnsureSeeded(ctx))

	res, err := r.RunOne(ctx, "BatchedListAsyncPinned")
	require.NoError(t, err)
	assert.True(t, res.Pinned)
	got, err := utils.ReadLines(filepath.Join(dir, FileBatchedListAsync))
	require.NoError(t, err)
	assert.Len(t, got, 6)

	_, err = r.RunOne(ctx, "Nope")
	assert.EqualError(t, err, `unknown strategy "Nope"`)
}

// failingSource streams fine but fails every materializing read.
type failingSource struct {
	*source.SQL
}

func (f failingSource) FetchAll(context.Context) ([]record.Record, error) {
	return nil, &source.DataSourceError{Op: "query", Err: errors.New("connection reset")}
}

func TestRunner_StopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	src := failingSource{openSQLite(t)}
	var out bytes.Buffer
	r := NewRunner(src, sink.DirOpener(t.TempDir()), WithOutput(&out), WithSeed(seed.Options{Rows: 3, BatchSize: 3}))

	results, err := r.Run(ctx)
	var dsErr *source.DataSourceError
	require.True(t, errors.As(err, &dsErr), "got %v", err)
	assert.Contains(t, err.Error(), "EagerList: ")
	require.Len(t, results, 1)
	assert.Equal(t, "StreamingCursor", results[0].Name)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 1, "only the strategy before the failure is reported")
	assert.Regexp(t, reportLine, lines[0])
}

func TestRunner_UnwritableOutput(t *testing.T) {
	src := openSQLite(t)
	var out bytes.Buffer
	r := NewRunner(src, sink.DirOpener(filepath.Join(t.TempDir(), "missing")), WithOutput(&out), WithSeed(seed.Options{Rows: 1}))

	_, err := r.Run(context.Background())
	var sinkErr *sink.SinkError
	assert.True(t, errors.As(err, &sinkErr), "got %v", err)
	assert.Empty(t, out.String())
}
