// Package filesrc reads assignments from a local directory.
//
// Every *.json, *.yaml or *.yml file in the directory holds either one
// assignment or a list of them:
//
//	id: hw-3
//	name: Problem set 3
//	description: Chapter 4, odd problems
//	due: next friday 5pm
//	modified: 2026-03-01T10:00:00Z
//
// A single-assignment file without an id uses its file name (without
// extension). "due" accepts RFC3339, a plain date, or natural language; the
// latter is resolved relative to the file's modification time so that the
// result does not drift between polls. "modified" defaults to the file's
// modification time.
//
// Connection details:
//
//	dir  directory to read (required)
package filesrc

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/sources"
)

// KeyDir is the detail key naming the directory.
const KeyDir = "dir"

// Extensions lists the file extensions the adapter reads.
var Extensions = []string{".json", ".yaml", ".yml"}

// File is the on-disk form of one assignment.
type File struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Due         string `json:"due,omitempty" yaml:"due,omitempty"`
	Modified    string `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// Adapter reads assignment files.
type Adapter struct {
	parser *when.Parser
}

// New creates the file adapter.
func New() *Adapter {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Adapter{parser: w}
}

// Type implements sources.Adapter.
func (a *Adapter) Type() schema.SourceType {
	return schema.SourceTypeFile
}

// ValidateDetails implements sources.Adapter.
func (a *Adapter) ValidateDetails(details map[string]string) error {
	if err := sources.RequireDetails(details, KeyDir); err != nil {
		return err
	}
	info, err := os.Stat(details[KeyDir])
	if err != nil {
		return fmt.Errorf("cannot access dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", details[KeyDir])
	}
	return nil
}

// Poll implements sources.Adapter. A file that cannot be parsed fails the
// whole poll, so a half-written file never looks like deleted assignments.
func (a *Adapter) Poll(ctx context.Context, acct schema.SourceAccount) ([]schema.RawAssignment, error) {
	dir := acct.Detail(KeyDir, "")
	if dir == "" {
		return nil, fmt.Errorf("missing required details: %s", KeyDir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read assignments directory: %w", err)
	}

	var out []schema.RawAssignment
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.IsDir() || !IsAssignmentFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		raws, err := a.ReadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, raws...)
	}
	return out, nil
}

// IsAssignmentFile reports whether name has one of Extensions.
func IsAssignmentFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// ReadFile parses one assignment file.
func (a *Adapter) ReadFile(path string) ([]schema.RawAssignment, error) {
	// #nosec G304 - path comes from the configured directory listing
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	mtime := info.ModTime()

	files, single, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if single && files[0].ID == "" {
		base := filepath.Base(path)
		files[0].ID = strings.TrimSuffix(base, filepath.Ext(base))
	}

	out := make([]schema.RawAssignment, 0, len(files))
	for _, f := range files {
		raw, err := a.toRaw(f, mtime)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// decode accepts a mapping (one assignment) or a sequence. yaml.v3 also
// parses JSON.
func decode(data []byte) ([]File, bool, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, false, err
	}
	if node.Kind == 0 || len(node.Content) == 0 {
		return nil, false, nil
	}

	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var files []File
		if err := root.Decode(&files); err != nil {
			return nil, false, err
		}
		return files, false, nil
	case yaml.MappingNode:
		var f File
		if err := root.Decode(&f); err != nil {
			return nil, false, err
		}
		return []File{f}, true, nil
	default:
		return nil, false, fmt.Errorf("expected an assignment or a list of assignments")
	}
}

func (a *Adapter) toRaw(f File, mtime time.Time) (schema.RawAssignment, error) {
	raw := schema.RawAssignment{
		ExternalID: strings.TrimSpace(f.ID),
		Name:       strings.TrimSpace(f.Name),
	}
	if d := strings.TrimSpace(f.Description); d != "" {
		raw.Description = &d
	}

	if s := strings.TrimSpace(f.Due); s != "" {
		due, err := a.ParseDue(s, mtime)
		if err != nil {
			return raw, err
		}
		raw.DueAt = &due
	}

	modified := mtime
	if s := strings.TrimSpace(f.Modified); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return raw, fmt.Errorf("invalid modified %q: %w", s, err)
		}
		modified = t
	}
	raw.ModifiedAt = &modified
	return raw, nil
}

// ParseDue parses RFC3339, a YYYY-MM-DD date, or a natural-language
// expression relative to base.
func (a *Adapter) ParseDue(s string, base time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, base.Location()); err == nil {
		return t, nil
	}

	r, err := a.parser.Parse(s, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid due %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid due %q: no date found", s)
	}
	return r.Time, nil
}

// SortByID orders assignments by external id. Used for stable output.
func SortByID(raws []schema.RawAssignment) {
	sort.SliceStable(raws, func(i, j int) bool { return raws[i].ExternalID < raws[j].ExternalID })
}
