// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package archiver implements the pure zip computation: files in a
// descriptor's archive directory older than ~2 calendar months are
// zipped into a monthly archive and removed from the working archive
// directory. This is a library function, not a scheduled job: the
// periodic wrapper around it (the deep-archive job) is an external
// collaborator out of scope here, but the on-disk contract it produces
// is a public interface the query layer depends on, so the computation
// itself is exercised and tested here.
package archiver

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DeepArchiveBoundary computes the calendar-month cutoff: on the first
// day of month M, files dated M-1 remain unzipped; files dated M-2 or
// earlier are zipped. The returned value is the M-2 month itself —
// the last month still eligible for zipping.
func DeepArchiveBoundary(now time.Time) time.Time {
	y, m, _ := now.Date()
	firstOfThisMonth := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return firstOfThisMonth.AddDate(0, -2, 0)
}

// RunDeepArchive scans archiveDir for "{iso8601}.txt" files whose
// embedded timestamp falls in or before boundary's month, groups
// them by calendar month, and zips each group into
// deepDir/YYYYMM.zip, removing the originals. Existing entries in an
// already-present monthly zip are preserved;
// new files for that month are appended.
func RunDeepArchive(archiveDir, deepDir string, boundary time.Time) error {
	if err := os.MkdirAll(deepDir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", deepDir, err)
	}

	entries, err := os.ReadDir(archiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", archiveDir, err)
	}

	boundaryMonth := monthKey(boundary)
	byMonth := map[string][]string{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ts, ok := parseFileTimestamp(e.Name())
		if !ok {
			continue
		}
		month := monthKey(ts)
		if month > boundaryMonth {
			continue
		}
		byMonth[month] = append(byMonth[month], e.Name())
	}

	for month, names := range byMonth {
		zipPath := filepath.Join(deepDir, month+".zip")
		if err := appendToMonthlyZip(zipPath, archiveDir, names); err != nil {
			return fmt.Errorf("zip %s: %w", zipPath, err)
		}
		for _, name := range names {
			if err := os.Remove(filepath.Join(archiveDir, name)); err != nil {
				return fmt.Errorf("remove archived %s: %w", name, err)
			}
		}
	}
	return nil
}

func monthKey(t time.Time) string { return t.UTC().Format("200601") }

func parseFileTimestamp(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	t, err := time.Parse(time.RFC3339, base)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func appendToMonthlyZip(zipPath, sourceDir string, names []string) error {
	existing := map[string][]byte{}
	if data, err := os.ReadFile(zipPath); err == nil {
		reader, rerr := zip.NewReader(strings.NewReader(string(data)), int64(len(data)))
		if rerr == nil {
			for _, f := range reader.File {
				rc, err := f.Open()
				if err != nil {
					continue
				}
				content, err := io.ReadAll(rc)
				rc.Close()
				if err != nil {
					continue
				}
				existing[f.Name] = content
			}
		}
	}

	out, err := os.Create(zipPath + ".tmp")
	if err != nil {
		return err
	}
	writer := zip.NewWriter(out)

	for name, content := range existing {
		w, err := writer.Create(name)
		if err != nil {
			writer.Close()
			out.Close()
			return err
		}
		if _, err := w.Write(content); err != nil {
			writer.Close()
			out.Close()
			return err
		}
	}
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(sourceDir, name))
		if err != nil {
			writer.Close()
			out.Close()
			return err
		}
		w, err := writer.Create(name)
		if err != nil {
			writer.Close()
			out.Close()
			return err
		}
		if _, err := w.Write(content); err != nil {
			writer.Close()
			out.Close()
			return err
		}
	}
	if err := writer.Close(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(zipPath+".tmp", zipPath)
}
