package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samjbobb/exportbench/export/record"
	"github.com/sirupsen/logrus"
)

const (
	DefaultRows      = 2100000
	DefaultBatchSize = 1000

	logEveryBatches = 100
)

// Store is the write side of a data source.
type Store interface {
	EnsureSchema(ctx context.Context) error
	IsEmpty(ctx context.Context) (bool, error)
	InsertBatch(ctx context.Context, batch []record.Record) error
}

type Options struct {
	Rows      int
	BatchSize int
	// Now stamps generated names, defaults to time.Now.
	Now func() time.Time
}

// SeedError is returned when the table cannot be created, checked or filled.
type SeedError struct {
	// Inserted is the number of rows written before the failure.
	Inserted int
	Err      error
}

func (e *SeedError) Error() string {
	return fmt.Sprintf("seed failed after %d rows: %v", e.Inserted, e.Err)
}

func (e *SeedError) Unwrap() error {
	return e.Err
}

// EnsureSeeded fills the store with synthetic records when it is empty.
// It returns the number of rows inserted, 0 when the store already had data.
func EnsureSeeded(ctx context.Context, store Store, opts Options) (int, error) {
	if opts.Rows <= 0 {
		opts.Rows = DefaultRows
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := store.EnsureSchema(ctx); err != nil {
		return 0, &SeedError{Err: err}
	}
	empty, err := store.IsEmpty(ctx)
	if err != nil {
		return 0, &SeedError{Err: err}
	}
	if !empty {
		logrus.Infoln("data already present, skipping seed")
		return 0, nil
	}

	logrus.WithFields(logrus.Fields{
		"rows":      opts.Rows,
		"batchSize": opts.BatchSize,
	}).Infoln("seeding data")
	start := time.Now()
	inserted := 0
	batch := make([]record.Record, 0, opts.BatchSize)
	for batches := 1; inserted < opts.Rows; batches++ {
		batch = batch[:0]
		for len(batch) < opts.BatchSize && inserted+len(batch) < opts.Rows {
			batch = append(batch, newRecord(opts.Now()))
		}
		if err := store.InsertBatch(ctx, batch); err != nil {
			return inserted, &SeedError{Inserted: inserted, Err: err}
		}
		inserted += len(batch)
		if batches%logEveryBatches == 0 {
			logrus.WithField("inserted", inserted).Infoln("seed progress")
		}
	}
	logrus.WithFields(logrus.Fields{
		"inserted": inserted,
		"elapsed":  time.Since(start),
	}).Infoln("seed complete")
	return inserted, nil
}

func newRecord(now time.Time) record.Record {
	stamp := now.Format("2006-01-02 15:04:05")
	return record.Record{
		EmployeeID: uuid.New(),
		Name:       record.Text("Name" + stamp),
		Department: record.Text("Department" + stamp),
	}
}
