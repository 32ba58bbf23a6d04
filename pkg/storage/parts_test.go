package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeString(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func TestParts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out.parquet.parts")

	parts, err := OpenParts(dir)
	if err != nil {
		t.Fatalf("Failed to open parts: %v", err)
	}

	if parts.Len() != 0 {
		t.Error("Expected no parts in a missing directory")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected directory to be created lazily")
	}
	if parts.Next() != 1 {
		t.Errorf("Expected first index 1, got %d", parts.Next())
	}

	for i := 0; i < 3; i++ {
		if err := parts.Write(parts.Next(), writeString("batch")); err != nil {
			t.Fatalf("Failed to write part: %v", err)
		}
	}

	list := parts.List()
	if len(list) != 3 {
		t.Fatalf("Expected 3 parts, got %d", len(list))
	}
	if filepath.Base(list[2].Path) != "part-000003.parquet" {
		t.Errorf("Unexpected part name %s", filepath.Base(list[2].Path))
	}

	content, err := os.ReadFile(list[0].Path)
	if err != nil {
		t.Fatalf("Failed to read part: %v", err)
	}
	if string(content) != "batch" {
		t.Errorf("Part content = %q", content)
	}
}

func TestPartsScanExisting(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"part-000002.parquet", "part-000001.parquet", "part-000003.parquet.tmp", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	parts, err := OpenParts(dir)
	if err != nil {
		t.Fatalf("Failed to open parts: %v", err)
	}

	list := parts.List()
	if len(list) != 2 || list[0].Index != 1 || list[1].Index != 2 {
		t.Errorf("Unexpected parts %+v", list)
	}
	if parts.Next() != 3 {
		t.Errorf("Expected next index 3, got %d", parts.Next())
	}
	if _, err := os.Stat(filepath.Join(dir, "part-000003.parquet.tmp")); !os.IsNotExist(err) {
		t.Error("Expected leftover temp file to be removed")
	}
}

func TestPartsFailedWriteLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	parts, err := OpenParts(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = parts.Write(1, func(w io.Writer) error { return errors.New("encode failed") })
	if err == nil {
		t.Fatal("Expected write error")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected empty directory, found %d entries", len(entries))
	}
	if parts.Len() != 0 {
		t.Error("Failed part must not be tracked")
	}
}

func TestPartsTruncateAndRemove(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "parts")
	parts, err := OpenParts(dir)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= 4; i++ {
		if err := parts.Write(i, writeString("x")); err != nil {
			t.Fatal(err)
		}
	}

	if err := parts.Truncate(2); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if parts.Len() != 2 {
		t.Errorf("Expected 2 parts after truncate, got %d", parts.Len())
	}
	if _, err := os.Stat(parts.PathFor(3)); !os.IsNotExist(err) {
		t.Error("Expected part 3 to be deleted")
	}

	if err := parts.RemoveAll(); err != nil {
		t.Fatalf("RemoveAll failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Expected parts directory to be removed")
	}
}
