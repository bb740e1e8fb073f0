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
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode returns a reader producing UTF-8. For "" and "utf-8" a leading byte order
// mark is dropped; any other WHATWG encoding label (latin1, windows-1252, shift_jis)
// is transcoded. Bytes that are invalid in the chosen encoding are replaced with
// U+FFFD rather than rejected; Run counts such lines in Summary.Replaced.
func Decode(r io.Reader, name string) (io.Reader, error) {
	t, err := decoder(name)
	if err != nil {
		return nil, &ErrInvalidInput{Msg: "unknown input encoding " + name, Err: err}
	}
	return transform.NewReader(r, t), nil
}

func decoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, err
	}
	return enc.NewDecoder(), nil
}
