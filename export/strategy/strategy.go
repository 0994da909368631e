package strategy

import (
	"context"

	"github.com/samjbobb/exportbench/export/record"
	"github.com/samjbobb/exportbench/export/sink"
	"github.com/samjbobb/exportbench/export/source"
	"github.com/samjbobb/exportbench/utils"
	"github.com/sirupsen/logrus"
)

// Strategy reads every record from a source and writes it to its own sink.
// Execute leaves the sink closed on every path.
type Strategy interface {
	Name() string
	Execute(ctx context.Context, src source.DataSource, open sink.Opener) error
}

// StreamingCursor writes each record as the cursor yields it.
type StreamingCursor struct {
	Label string
	File  string
}

func (s StreamingCursor) Name() string { return s.Label }

func (s StreamingCursor) Execute(ctx context.Context, src source.DataSource, open sink.Opener) error {
	return export(open, s.File, func(w sink.Writer) error {
		stream, err := src.StreamRecords(ctx)
		if err != nil {
			return err
		}
		defer stream.Close()
		for stream.Next() {
			if err := w.WriteLine(stream.Record().Line()); err != nil {
				return err
			}
		}
		return stream.Err()
	})
}

// EagerList loads the whole result set with FetchAll, then writes it.
// With Async the fetch runs on its own goroutine and is awaited.
type EagerList struct {
	Label string
	File  string
	Async bool
}

func (s EagerList) Name() string { return s.Label }

func (s EagerList) Execute(ctx context.Context, src source.DataSource, open sink.Opener) error {
	return export(open, s.File, func(w sink.Writer) error {
		var (
			all []record.Record
			err error
		)
		if s.Async {
			all, err = utils.Await(ctx, src.FetchAll)
		} else {
			all, err = src.FetchAll(ctx)
		}
		if err != nil {
			return err
		}
		return writeAll(w, all)
	})
}

// Query selects how BatchedList runs its query.
type Query int

const (
	// SyncQuery fetches inline.
	SyncQuery Query = iota
	// AsyncQuery fetches on its own goroutine and awaits the result.
	AsyncQuery
	// ListQuery copies the fetched result into a list it owns before writing.
	ListQuery
)

func (q Query) String() string {
	switch q {
	case SyncQuery:
		return "sync"
	case AsyncQuery:
		return "async"
	case ListQuery:
		return "list"
	}
	return "unknown"
}

// BatchedList materializes the result set through the source's raw query path.
// It keeps the same memory profile as EagerList, the difference is the client code path.
type BatchedList struct {
	Label string
	File  string
	Query Query
}

func (s BatchedList) Name() string { return s.Label }

func (s BatchedList) Execute(ctx context.Context, src source.DataSource, open sink.Opener) error {
	return export(open, s.File, func(w sink.Writer) error {
		var (
			all []record.Record
			err error
		)
		switch s.Query {
		case AsyncQuery:
			all, err = utils.Await(ctx, src.FetchAllViaRawQuery)
		case ListQuery:
			var fetched []record.Record
			fetched, err = src.FetchAllViaRawQuery(ctx)
			all = make([]record.Record, len(fetched))
			copy(all, fetched)
		default:
			all, err = src.FetchAllViaRawQuery(ctx)
		}
		if err != nil {
			return err
		}
		return writeAll(w, all)
	})
}

// export opens the sink for file, runs write and closes the sink. A close error is returned
// only when write succeeded.
func export(open sink.Opener, file string, write func(w sink.Writer) error) (err error) {
	w, err := open(file)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			if err == nil {
				err = closeErr
			} else {
				logrus.WithError(closeErr).WithField("file", file).Warnln("could not close sink")
			}
		}
	}()
	return write(w)
}

func writeAll(w sink.Writer, all []record.Record) error {
	for i := range all {
		if err := w.WriteLine(all[i].Line()); err != nil {
			return err
		}
	}
	return nil
}
