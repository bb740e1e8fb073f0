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
package utils

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Input is an opened source stream. Path is what gets recorded for the run,
// "<archive>/<entry>" for files read out of a zip.
type Input struct {
	io.Reader
	Path    string
	closers []io.Closer
}

func (in *Input) Close() error {
	var first error
	for i := len(in.closers) - 1; i >= 0; i-- {
		if err := in.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenInput opens path for reading. "-" is stdin. A .zip archive is opened and
// the named entry read from it; with no entry name the archive must contain
// exactly one data file (readme.txt is ignored), as the GeoNames downloads do.
func OpenInput(path, entry string) (*Input, error) {
	if path == "" {
		return nil, fmt.Errorf("no input file given")
	}
	if path == "-" {
		return &Input{Reader: os.Stdin, Path: "stdin"}, nil
	}
	if !strings.EqualFold(filepath.Ext(path), ".zip") {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		return &Input{Reader: f, Path: path, closers: []io.Closer{f}}, nil
	}

	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive %s: %w", path, err)
	}
	f, err := findEntry(&zr.Reader, entry)
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rc, err := f.Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("failed to open %s in %s: %w", f.Name, path, err)
	}
	return &Input{
		Reader:  rc,
		Path:    filepath.Base(path) + "/" + f.Name,
		closers: []io.Closer{zr, rc},
	}, nil
}

func findEntry(zr *zip.Reader, name string) (*zip.File, error) {
	var candidates []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if name != "" {
			if f.Name == name {
				return f, nil
			}
			continue
		}
		if strings.EqualFold(filepath.Base(f.Name), "readme.txt") {
			continue
		}
		candidates = append(candidates, f)
	}
	if name != "" {
		return nil, fmt.Errorf("entry %q not found", name)
	}
	switch len(candidates) {
	case 0:
		return nil, fmt.Errorf("archive has no data file")
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, f := range candidates {
			names[i] = f.Name
		}
		return nil, fmt.Errorf("archive has several data files (%s), choose one with --entry", strings.Join(names, ", "))
	}
}

// CountryFromPath guesses the country code from a per-country dump name such as
// US.zip or DE.txt. allCountries and anything else yields "".
func CountryFromPath(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(base) != 2 {
		return ""
	}
	for _, r := range base {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return base
}

func GetDefaultOutputFilePath(name, commandName string) string {
	switch commandName {
	case "print-sql":
		return fmt.Sprintf("%s_upsert.sql", name)
	default: // load-geonames, load-alternate-names
		return fmt.Sprintf("%s_dry_run.sql", name)
	}
}
