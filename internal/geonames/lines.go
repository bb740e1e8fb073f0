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
package geonames

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
)

// DefaultMaxLineSize bounds a single line. allCountries.txt lines stay well below it.
const DefaultMaxLineSize = 1024 * 1024

// Line is one line of input without its terminator. Number is 1-based.
type Line struct {
	Number int
	Text   string
}

// Lines splits r into lines terminated by "\n" or "\r\n".
// A final line without a terminator is still produced; a "\r" not followed by "\n",
// including one at end of input, is part of the line. The sequence reads r lazily
// and can only be iterated once. A read error, or a line longer than maxLineSize,
// is yielded once as the last element.
func Lines(r io.Reader, maxLineSize int) iter.Seq2[Line, error] {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return func(yield func(Line, error) bool) {
		scanner := bufio.NewScanner(r)
		initial := 64 * 1024
		if initial > maxLineSize {
			initial = maxLineSize
		}
		scanner.Buffer(make([]byte, 0, initial), maxLineSize)
		scanner.Split(scanLines)

		n := 0
		for scanner.Scan() {
			n++
			if !yield(Line{Number: n, Text: scanner.Text()}, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			if err == bufio.ErrTooLong {
				err = fmt.Errorf("line %d exceeds %d bytes: %w", n+1, maxLineSize, err)
			} else {
				err = fmt.Errorf("failed to read line %d: %w", n+1, err)
			}
			yield(Line{Number: n + 1}, err)
		}
	}
}

// scanLines is bufio.ScanLines without stripping a bare "\r" at end of input.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
