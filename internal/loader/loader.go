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

// Package loader streams GeoNames dump files into a database table.
package loader

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/geonames-loader/internal/config"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/database"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/geonames"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/logging"
	"github.com/GoogleCloudPlatform/geonames-loader/internal/metrics"
)

// Store is what the loader needs from a database. *database.DB satisfies it.
type Store interface {
	Executor
	TxBeginner
}

type Service struct {
	exec     Executor
	tx       TxBeginner
	dialect  database.DialectHandler
	cfg      config.ImportConfig
	logger   *zap.Logger
	reporter metrics.Reporter
	onResult func(RowResult)
}

// Option customizes a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = logging.OrNop(l) } }

func WithReporter(r metrics.Reporter) Option { return func(s *Service) { s.reporter = r } }

// WithResultHandler receives the outcome of every line.
func WithResultHandler(fn func(RowResult)) Option { return func(s *Service) { s.onResult = fn } }

func NewService(store Store, dialect database.DialectHandler, cfg config.ImportConfig, opts ...Option) *Service {
	s := &Service{
		exec:     store,
		tx:       store,
		dialect:  dialect,
		cfg:      cfg,
		logger:   zap.NewNop(),
		reporter: metrics.Nop{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewDryRunService writes every statement to w instead of executing it. Rows are
// never batched in dry-run mode.
func NewDryRunService(w io.Writer, dialect database.DialectHandler, cfg config.ImportConfig, opts ...Option) *Service {
	s := NewService(nil, dialect, cfg, opts...)
	s.exec = NewDryRunExecutor(w)
	s.tx = nil
	return s
}

// LoadGeonames loads a per-country or allCountries dump into the configured
// geonames table. countryCode, path and etag describe the source and are only
// recorded.
func (s *Service) LoadGeonames(ctx context.Context, entry io.Reader, countryCode, path, etag string) (Summary, error) {
	return s.load(ctx, geonames.GeonamesSchema, s.cfg.GeonamesTable, entry, countryCode, path, etag)
}

// LoadAlternateNames loads alternateNamesV2.txt into the configured alternate names
// table. It fails with ErrTableNotConfigured when no table is configured.
func (s *Service) LoadAlternateNames(ctx context.Context, entry io.Reader, countryCode, path, etag string) (Summary, error) {
	return s.load(ctx, geonames.AlternateNamesSchema, s.cfg.AlternateNamesTable, entry, countryCode, path, etag)
}

func (s *Service) newSink(schema *geonames.Schema, table string, logger *zap.Logger) (Sink, error) {
	opts := SinkOptions{Retry: RetryOptionsFrom(s.cfg.Retry), Logger: logger}
	if s.cfg.BatchSize > 1 && s.tx != nil {
		return NewBatchSink(s.tx, s.dialect, schema, table, s.cfg.BatchSize, opts)
	}
	return NewUpsertSink(s.exec, s.dialect, schema, table, opts)
}

func (s *Service) load(ctx context.Context, schema *geonames.Schema, table string, entry io.Reader, countryCode, path, etag string) (Summary, error) {
	runID := uuid.NewString()
	logger := s.logger.With(
		zap.String("run_id", runID),
		zap.String("dataset", schema.Name),
		zap.String("table", table),
	)

	sink, err := s.newSink(schema, table, logger)
	if err != nil {
		return Summary{RunID: runID, Dataset: schema.Name}, err
	}

	r, err := Decode(entry, s.cfg.Encoding)
	if err != nil {
		return Summary{RunID: runID, Dataset: schema.Name, Table: table}, err
	}

	logger.Info("load started",
		zap.String("country", countryCode),
		zap.String("path", path),
		zap.String("etag", etag),
		zap.Int("batch_size", s.cfg.BatchSize))

	summary, runErr := Run(ctx, r, schema, sink, RunOptions{
		MaxLineSize:         s.cfg.MaxLineSize,
		FailFast:            s.cfg.FailFast,
		MaxReportedFailures: s.reportedFailures(),
		OnResult:            s.onResult,
		Logger:              logger,
	})
	summary.RunID = runID
	summary.Table = table
	summary.Country = countryCode
	summary.Path = path
	summary.ETag = etag

	logger.Info("load finished",
		zap.Int("lines", summary.Lines),
		zap.Int("upserted", summary.Upserted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("malformed", summary.Malformed),
		zap.Int("failed", summary.Failed),
		zap.Int("replaced", summary.Replaced),
		zap.Duration("duration", summary.Duration))

	if err := s.reporter.Report(ctx, summary.metricsRun()); err != nil {
		logger.Warn("failed to report metrics", zap.Error(err))
	}

	if runErr != nil {
		return summary, runErr
	}
	if err := summary.Err(); err != nil {
		return summary, fmt.Errorf("load %s into %s: %w", schema.Name, table, err)
	}
	return summary, nil
}

// reportedFailures maps the configured limit onto RunOptions, where zero means default.
func (s *Service) reportedFailures() int {
	if s.cfg.MaxReportedFailures == 0 {
		return -1
	}
	return s.cfg.MaxReportedFailures
}

func (s Summary) metricsRun() metrics.Run {
	return metrics.Run{
		Dataset:   s.Dataset,
		Table:     s.Table,
		Country:   s.Country,
		Lines:     s.Lines,
		Upserted:  s.Upserted,
		Skipped:   s.Skipped,
		Malformed: s.Malformed,
		Failed:    s.Failed,
		Duration:  s.Duration,
	}
}
