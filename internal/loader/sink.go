/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package loader

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/geonames"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/logging"
)

// Executor runs a single statement. *sql.DB, *sql.Tx and *database.DB satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// TxBeginner starts transactions. *sql.DB and *database.DB satisfy it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Sink consumes projected rows. Write blocks until the sink can accept the next row.
// Both methods return the lines persisted by the call; on error the lines covered
// by the error were not persisted (see BatchError).
type Sink interface {
	Write(ctx context.Context, row geonames.Row) ([]int, error)
	// Flush persists anything buffered. It is always called once at end of stream.
	Flush(ctx context.Context) ([]int, error)
}

// SinkOptions are shared by all sinks.
type SinkOptions struct {
	Retry  RetryOptions
	Logger *zap.Logger
}

func (o SinkOptions) logger() *zap.Logger { return logging.OrNop(o.Logger) }

// UpsertStatement returns the statement a sink would execute for every row of schema.
func UpsertStatement(dialect database.DialectHandler, schema *geonames.Schema, table string) (string, error) {
	if strings.TrimSpace(table) == "" {
		return "", fmt.Errorf("%s: %w", schema.Name, ErrTableNotConfigured)
	}
	query, err := dialect.GenerateUpsertSQL(table, schema.RetainedColumns(), schema.PrimaryKey)
	if err != nil {
		return "", &ErrInvalidInput{Msg: "cannot build upsert statement for " + table, Err: err}
	}
	return query, nil
}

func checkRow(row geonames.Row, want int) error {
	if len(row.Values) != want {
		return &ErrInvalidInput{Msg: fmt.Sprintf("line %d has %d values, statement expects %d", row.Line, len(row.Values), want)}
	}
	return nil
}

// UpsertSink executes one upsert per row and waits for the store to answer before
// accepting the next row.
type UpsertSink struct {
	exec    Executor
	query   string
	columns int
	opts    SinkOptions
}

var _ Sink = (*UpsertSink)(nil)

// NewUpsertSink fails with ErrTableNotConfigured when table is empty; no statement
// is executed in that case.
func NewUpsertSink(exec Executor, dialect database.DialectHandler, schema *geonames.Schema, table string, opts SinkOptions) (*UpsertSink, error) {
	query, err := UpsertStatement(dialect, schema, table)
	if err != nil {
		return nil, err
	}
	return &UpsertSink{exec: exec, query: query, columns: len(schema.RetainedColumns()), opts: opts}, nil
}

// Query returns the upsert statement.
func (s *UpsertSink) Query() string { return s.query }

func (s *UpsertSink) Write(ctx context.Context, row geonames.Row) ([]int, error) {
	if err := checkRow(row, s.columns); err != nil {
		return nil, err
	}
	_, err := withRetry(ctx, s.opts.logger(), s.opts.Retry, func(ctx context.Context) (sql.Result, error) {
		res, err := s.exec.ExecContext(ctx, s.query, row.Values...)
		if err != nil {
			return nil, &ErrQueryExecution{Msg: fmt.Sprintf("upsert line %d", row.Line), Err: err}
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return []int{row.Line}, nil
}

// Flush is a no-op; every Write is already persisted.
func (s *UpsertSink) Flush(context.Context) ([]int, error) { return nil, nil }

// BatchSink buffers rows and persists each full batch in one transaction. A partial
// batch is only written by Flush, so callers must Flush at end of stream.
type BatchSink struct {
	db      TxBeginner
	query   string
	columns int
	size    int
	opts    SinkOptions

	buf []geonames.Row
}

var _ Sink = (*BatchSink)(nil)

func NewBatchSink(db TxBeginner, dialect database.DialectHandler, schema *geonames.Schema, table string, size int, opts SinkOptions) (*BatchSink, error) {
	if size < 1 {
		return nil, &ErrInvalidInput{Msg: fmt.Sprintf("batch size must be at least 1, got %d", size)}
	}
	query, err := UpsertStatement(dialect, schema, table)
	if err != nil {
		return nil, err
	}
	return &BatchSink{
		db:      db,
		query:   query,
		columns: len(schema.RetainedColumns()),
		size:    size,
		opts:    opts,
		buf:     make([]geonames.Row, 0, size),
	}, nil
}

// Pending is the number of buffered rows.
func (s *BatchSink) Pending() int { return len(s.buf) }

func (s *BatchSink) Write(ctx context.Context, row geonames.Row) ([]int, error) {
	if err := checkRow(row, s.columns); err != nil {
		return nil, err
	}
	s.buf = append(s.buf, row)
	if len(s.buf) < s.size {
		return nil, nil
	}
	return s.commit(ctx)
}

func (s *BatchSink) Flush(ctx context.Context) ([]int, error) {
	if len(s.buf) == 0 {
		return nil, nil
	}
	return s.commit(ctx)
}

// commit writes the buffer in one transaction. The buffer is cleared whether or not
// the transaction succeeds.
func (s *BatchSink) commit(ctx context.Context) ([]int, error) {
	rows := s.buf
	s.buf = make([]geonames.Row, 0, s.size)

	lines := make([]int, len(rows))
	for i, r := range rows {
		lines[i] = r.Line
	}

	_, err := withRetry(ctx, s.opts.logger(), s.opts.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.execBatch(ctx, rows)
	})
	if err != nil {
		return nil, &BatchError{Lines: lines, Err: err}
	}
	s.opts.logger().Debug("batch committed", zap.Int("rows", len(rows)), zap.String("lines", lineRange(lines)))
	return lines, nil
}

func (s *BatchSink) execBatch(ctx context.Context, rows []geonames.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &ErrDatabaseConnection{Msg: "failed to begin transaction", Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.query)
	if err != nil {
		return &ErrQueryExecution{Msg: "failed to prepare upsert", Err: err}
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.Values...); err != nil {
			return &ErrQueryExecution{Msg: fmt.Sprintf("upsert line %d", row.Line), Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &ErrQueryExecution{Msg: "failed to commit transaction", Err: err}
	}
	return nil
}
