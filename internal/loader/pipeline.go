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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/geonames"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/logging"
)

// DefaultMaxReportedFailures bounds Summary.Failures.
const DefaultMaxReportedFailures = 100

// Status is the outcome of one input line.
type Status int

const (
	StatusUpserted Status = iota
	StatusSkipped
	StatusMalformed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUpserted:
		return "upserted"
	case StatusSkipped:
		return "skipped"
	case StatusMalformed:
		return "malformed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// RowResult is delivered to RunOptions.OnResult once per input line. With a batching
// sink, results for a batch arrive when the batch is committed or rolled back.
type RowResult struct {
	Line   int
	Status Status
	Err    error
}

// RowFailure records a malformed or failed line.
type RowFailure struct {
	Line int
	Err  error
}

// RunOptions controls a single pipeline run.
type RunOptions struct {
	// MaxLineSize bounds a single input line. Zero means geonames.DefaultMaxLineSize.
	MaxLineSize int
	// FailFast stops reading at the first malformed or failed line.
	FailFast bool
	// MaxReportedFailures bounds Summary.Failures. Zero means DefaultMaxReportedFailures;
	// negative keeps none.
	MaxReportedFailures int
	OnResult            func(RowResult)
	Logger              *zap.Logger
}

// Summary describes a finished run. Lines = Upserted + Skipped + Malformed + Failed
// unless the run was interrupted before every line had been handed to the sink.
// Replaced counts lines holding U+FFFD, which the decoder substitutes for bytes that
// are invalid in the input encoding.
type Summary struct {
	RunID     string
	Dataset   string
	Table     string
	Country   string
	Path      string
	ETag      string
	Lines     int
	Upserted  int
	Skipped   int
	Malformed int
	Failed    int
	Failures  []RowFailure
	Duration  time.Duration
	Replaced  int
}

// Err returns a *RowsFailedError when any line was malformed or not persisted.
func (s Summary) Err() error {
	if s.Failed == 0 && s.Malformed == 0 {
		return nil
	}
	return &RowsFailedError{Failed: s.Failed, Malformed: s.Malformed, First: s.Failures}
}

type run struct {
	summary *Summary
	opts    RunOptions
	logger  *zap.Logger
	stop    bool
}

func (r *run) emit(line int, status Status, err error) {
	switch status {
	case StatusUpserted:
		r.summary.Upserted++
	case StatusSkipped:
		r.summary.Skipped++
	case StatusMalformed:
		r.summary.Malformed++
	case StatusFailed:
		r.summary.Failed++
	}
	if err != nil {
		if len(r.summary.Failures) < r.opts.MaxReportedFailures {
			r.summary.Failures = append(r.summary.Failures, RowFailure{Line: line, Err: err})
		}
		r.logger.Warn("line not loaded", zap.Int("line", line), zap.Stringer("status", status), zap.Error(err))
		if r.opts.FailFast {
			r.stop = true
		}
	}
	if r.opts.OnResult != nil {
		r.opts.OnResult(RowResult{Line: line, Status: status, Err: err})
	}
}

func (r *run) sinkResult(persisted []int, err error, line int) {
	for _, l := range persisted {
		r.emit(l, StatusUpserted, nil)
	}
	if err != nil {
		for _, l := range failedLines(err, line) {
			r.emit(l, StatusFailed, err)
		}
	}
}

// Run streams r line by line through schema projection into sink, strictly in
// order. Malformed and failed lines are counted and reported, not fatal, unless
// FailFast is set. The sink is flushed once the input ends, the run stops early or
// ctx is cancelled. The returned error is non-nil only when the input could not be
// read, ctx was cancelled or the final flush failed outside any batch; use
// Summary.Err for row level failures.
func Run(ctx context.Context, r io.Reader, schema *geonames.Schema, sink Sink, opts RunOptions) (Summary, error) {
	start := time.Now()
	if opts.MaxReportedFailures == 0 {
		opts.MaxReportedFailures = DefaultMaxReportedFailures
	}
	logger := logging.OrNop(opts.Logger)

	summary := Summary{Dataset: schema.Name}
	st := &run{summary: &summary, opts: opts, logger: logger}

	var runErr error
	for line, err := range geonames.Lines(r, opts.MaxLineSize) {
		if err != nil {
			runErr = fmt.Errorf("read %s input: %w", schema.Name, err)
			break
		}
		if ctx.Err() != nil {
			runErr = contextError(ctx, fmt.Sprintf("stopped before line %d", line.Number))
			break
		}
		summary.Lines++
		if strings.ContainsRune(line.Text, utf8.RuneError) {
			if summary.Replaced == 0 {
				logger.Warn("input holds bytes invalid in the configured encoding; check import.encoding",
					zap.Int("line", line.Number))
			}
			summary.Replaced++
		}

		if line.Text == "" {
			st.emit(line.Number, StatusSkipped, nil)
			continue
		}

		row, err := geonames.Project(line, schema)
		if err != nil {
			st.emit(line.Number, StatusMalformed, err)
		} else {
			if ce := logger.Check(zap.DebugLevel, "row"); ce != nil {
				ce.Write(zap.Int("line", row.Line), zap.Any("values", row.Pairs()))
			}
			persisted, err := sink.Write(ctx, row)
			st.sinkResult(persisted, err, row.Line)
		}
		if st.stop {
			logger.Info("stopping at first failure", zap.Int("line", line.Number))
			break
		}
	}

	persisted, err := sink.Flush(ctx)
	var be *BatchError
	if err != nil && !errors.As(err, &be) {
		// not tied to any line
		st.sinkResult(persisted, nil, 0)
		if runErr == nil {
			runErr = fmt.Errorf("flush %s sink: %w", schema.Name, err)
		}
	} else {
		st.sinkResult(persisted, err, 0)
	}

	summary.Duration = time.Since(start)
	return summary, runErr
}
