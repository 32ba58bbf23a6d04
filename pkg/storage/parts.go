package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const (
	partPrefix = "part-"
	partExt    = ".parquet"
	tempExt    = ".tmp"
)

// Part is one durable batch file
type Part struct {
	Index int
	Path  string
}

// Parts tracks the part files in one directory. The directory is created on
// the first write.
type Parts struct {
	dir   string
	parts []Part
	mu    sync.RWMutex
}

// OpenParts scans dir for existing parts. A missing directory is empty.
func OpenParts(dir string) (*Parts, error) {
	p := &Parts{dir: dir}
	if err := p.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan parts: %w", err)
	}
	return p, nil
}

// scanExistingFiles loads complete parts and removes leftover temp files
func (p *Parts) scanExistingFiles() error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tempExt) {
			os.Remove(filepath.Join(p.dir, name))
			continue
		}
		index, ok := parseIndex(name)
		if !ok {
			continue
		}
		p.parts = append(p.parts, Part{Index: index, Path: filepath.Join(p.dir, name)})
	}

	sort.Slice(p.parts, func(i, j int) bool { return p.parts[i].Index < p.parts[j].Index })
	return nil
}

func parseIndex(name string) (int, bool) {
	if !strings.HasPrefix(name, partPrefix) || !strings.HasSuffix(name, partExt) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, partPrefix), partExt))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// Dir returns the parts directory
func (p *Parts) Dir() string {
	return p.dir
}

// List returns the parts in index order
func (p *Parts) List() []Part {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Part, len(p.parts))
	copy(out, p.parts)
	return out
}

// Len returns the number of parts
func (p *Parts) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.parts)
}

// Next returns the index the next part should use
func (p *Parts) Next() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.parts) == 0 {
		return 1
	}
	return p.parts[len(p.parts)-1].Index + 1
}

// PathFor returns the file name of part index
func (p *Parts) PathFor(index int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s%06d%s", partPrefix, index, partExt))
}

// Write creates part index from the content written by fill
func (p *Parts) Write(index int, fill func(w io.Writer) error) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create parts directory: %w", err)
	}

	filename := p.PathFor(index)
	tempFile := filename + tempExt
	out, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}

	if err := fill(out); err != nil {
		out.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to write part data: %w", err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempFile)
		return fmt.Errorf("failed to sync part: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tempFile, filename); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.parts = append(p.parts, Part{Index: index, Path: filename})
	sort.Slice(p.parts, func(i, j int) bool { return p.parts[i].Index < p.parts[j].Index })
	return nil
}

// Truncate keeps the first n parts and deletes the rest
func (p *Parts) Truncate(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n >= len(p.parts) {
		return nil
	}
	for _, part := range p.parts[n:] {
		if err := os.Remove(part.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", filepath.Base(part.Path), err)
		}
	}
	p.parts = p.parts[:n]
	return nil
}

// RemoveAll deletes every part and the directory itself
func (p *Parts) RemoveAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.RemoveAll(p.dir); err != nil {
		return fmt.Errorf("failed to remove parts directory: %w", err)
	}
	p.parts = nil
	return nil
}
