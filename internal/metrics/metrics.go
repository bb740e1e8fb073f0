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

// Package metrics reports the outcome of load runs to a monitoring backend.
package metrics

import (
	"context"
	"time"
)

// Run is the backend-neutral view of a finished load.
type Run struct {
	Dataset   string
	Table     string
	Country   string
	Lines     int
	Upserted  int
	Skipped   int
	Malformed int
	Failed    int
	Duration  time.Duration
}

// Reporter submits run results. Implementations must not retain r.
type Reporter interface {
	Report(ctx context.Context, r Run) error
	Close() error
}

// Nop discards every report.
type Nop struct{}

func (Nop) Report(context.Context, Run) error { return nil }
func (Nop) Close() error                      { return nil }

var _ Reporter = Nop{}
