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
	"strconv"
	"strings"
)

// ErrTableNotConfigured is returned when a sink is built without a destination table.
var ErrTableNotConfigured = errors.New("destination table is not configured")

// ErrDatabaseConnection represents errors that occur during database connection attempts
type ErrDatabaseConnection struct {
	Msg string
	Err error
}

// ErrQueryExecution represents errors that occur during query execution
type ErrQueryExecution struct {
	Msg string
	Err error
}

// ErrInvalidInput represents errors related to invalid input parameters
type ErrInvalidInput struct {
	Msg string
	Err error
}

// ErrTimeout represents timeout errors during operations
type ErrTimeout struct {
	Msg string
	Err error
}

// ErrCancelled represents errors when an operation is cancelled
type ErrCancelled struct {
	Msg string
	Err error
}

func format(kind, msg string, err error) string {
	if err == nil {
		return kind + ": " + msg
	}
	return kind + ": " + msg + ": " + err.Error()
}

func (e *ErrDatabaseConnection) Error() string {
	return format("database connection error", e.Msg, e.Err)
}

func (e *ErrDatabaseConnection) Unwrap() error { return e.Err }

func (e *ErrQueryExecution) Error() string {
	return format("query execution error", e.Msg, e.Err)
}

func (e *ErrQueryExecution) Unwrap() error { return e.Err }

func (e *ErrInvalidInput) Error() string {
	return format("invalid input error", e.Msg, e.Err)
}

func (e *ErrInvalidInput) Unwrap() error { return e.Err }

func (e *ErrTimeout) Error() string {
	return format("timeout error", e.Msg, e.Err)
}

func (e *ErrTimeout) Unwrap() error { return e.Err }

func (e *ErrCancelled) Error() string {
	return format("operation cancelled", e.Msg, e.Err)
}

func (e *ErrCancelled) Unwrap() error { return e.Err }

// contextError classifies a done context as a timeout or a cancellation.
func contextError(ctx context.Context, msg string) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &ErrTimeout{Msg: msg, Err: err}
	}
	return &ErrCancelled{Msg: msg, Err: err}
}

// BatchError reports a batch that was rolled back. None of its lines were persisted.
type BatchError struct {
	Lines []int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch of %d rows (lines %s) rolled back: %v", len(e.Lines), lineRange(e.Lines), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

func lineRange(lines []int) string {
	switch len(lines) {
	case 0:
		return "none"
	case 1:
		return strconv.Itoa(lines[0])
	default:
		return strconv.Itoa(lines[0]) + "-" + strconv.Itoa(lines[len(lines)-1])
	}
}

// failedLines returns the lines an error from a sink covers.
func failedLines(err error, line int) []int {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Lines
	}
	return []int{line}
}

// RowsFailedError is returned by Summary.Err when at least one row was not persisted.
type RowsFailedError struct {
	Failed    int
	Malformed int
	First     []RowFailure
}

func (e *RowsFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d rows failed and %d lines were malformed", e.Failed, e.Malformed)
	if len(e.First) > 0 {
		fmt.Fprintf(&b, "; first: line %d: %v", e.First[0].Line, e.First[0].Err)
	}
	return b.String()
}

// Unwrap exposes the recorded row errors to errors.Is and errors.As.
func (e *RowsFailedError) Unwrap() []error {
	errs := make([]error, len(e.First))
	for i, f := range e.First {
		errs[i] = f.Err
	}
	return errs
}
