package filesrc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SplitOptions configures SplitJSONL.
type SplitOptions struct {
	// OutputDir receives one <id>.json file per assignment.
	OutputDir string

	// DryRun counts without writing.
	DryRun bool
}

// SplitResult reports what SplitJSONL did.
type SplitResult struct {
	Converted    int
	FilesWritten int
	Errors       []string
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName returns the file name used for an assignment id.
func FileName(id string) string {
	name := unsafeFileChars.ReplaceAllString(id, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "assignment"
	}
	return name + ".json"
}

// SplitJSONL converts a JSONL export (one assignment object per line) into a
// directory the file adapter can read. Lines without an id or name are
// reported in Errors and skipped; a malformed line aborts.
func SplitJSONL(r io.Reader, opts SplitOptions) (*SplitResult, error) {
	if opts.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}

	result := &SplitResult{}
	decoder := json.NewDecoder(r)
	seen := make(map[string]bool)

	for line := 1; ; line++ {
		var f File
		if err := decoder.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return result, fmt.Errorf("invalid JSON at line %d: %w", line, err)
		}

		if f.ID == "" || f.Name == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: id and name are required", line))
			continue
		}
		if seen[f.ID] {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: duplicate id %s", line, f.ID))
			continue
		}
		seen[f.ID] = true
		result.Converted++

		if opts.DryRun {
			continue
		}
		if err := WriteFile(&f, opts.OutputDir); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to write %s: %v", f.ID, err))
			continue
		}
		result.FilesWritten++
	}

	return result, nil
}

// WriteFile writes one assignment to dir atomically.
func WriteFile(f *File, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal assignment: %w", err)
	}

	path := filepath.Join(dir, FileName(f.ID))
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
