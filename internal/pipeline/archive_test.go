package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/invoice-processor/internal/entity"
	"github.com/joseph-ayodele/invoice-processor/internal/ingest"
)

func stage(t *testing.T, dir, name string, data []byte) entity.Document {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return entity.Document{Path: path, Filename: name, SHA256: ingest.HashBytes(data), Size: len(data)}
}

func TestArchiveFileAndHolds(t *testing.T) {
	staging, archiveDir := t.TempDir(), filepath.Join(t.TempDir(), "archive")
	a := NewArchive(archiveDir)
	data := []byte("%PDF one")
	doc := stage(t, staging, "inv.pdf", data)

	if _, ok, err := a.Holds("inv.pdf", doc.SHA256); err != nil || ok {
		t.Fatalf("Holds() before filing = %v, %v", ok, err)
	}
	got, err := a.File(doc)
	if err != nil {
		t.Fatalf("File() error = %v", err)
	}
	if got != filepath.Join(archiveDir, "inv.pdf") {
		t.Errorf("File() = %s", got)
	}
	if path, ok, err := a.Holds("inv.pdf", doc.SHA256); err != nil || !ok || path != got {
		t.Errorf("Holds() after filing = %s, %v, %v", path, ok, err)
	}
	if _, ok, _ := a.Holds("inv.pdf", ingest.HashBytes([]byte("other"))); ok {
		t.Error("Holds() matched different content")
	}
}

func TestArchiveNeverOverwrites(t *testing.T) {
	staging, archiveDir := t.TempDir(), t.TempDir()
	a := NewArchive(archiveDir)

	first := stage(t, staging, "inv.pdf", []byte("%PDF first"))
	if _, err := a.File(first); err != nil {
		t.Fatal(err)
	}
	second := stage(t, staging, "inv.pdf", []byte("%PDF second"))
	got, err := a.File(second)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(archiveDir, "inv-"+second.SHA256[:8]+".pdf")
	if got != want {
		t.Errorf("File() = %s, want %s", got, want)
	}
	if b, _ := os.ReadFile(filepath.Join(archiveDir, "inv.pdf")); string(b) != "%PDF first" {
		t.Errorf("first document overwritten: %q", b)
	}
	if _, ok, _ := a.Holds("inv.pdf", second.SHA256); !ok {
		t.Error("Holds() should find the suffixed document")
	}
}

func TestArchiveDuplicateContentIsNotCopiedTwice(t *testing.T) {
	staging, archiveDir := t.TempDir(), t.TempDir()
	a := NewArchive(archiveDir)
	data := []byte("%PDF same")

	if _, err := a.File(stage(t, staging, "inv.pdf", data)); err != nil {
		t.Fatal(err)
	}
	dup := stage(t, staging, "inv.pdf", data)
	if _, err := a.File(dup); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(archiveDir)
	if len(entries) != 1 {
		t.Errorf("archive holds %d files, want 1", len(entries))
	}
	if _, err := os.Stat(dup.Path); !os.IsNotExist(err) {
		t.Error("staged duplicate should be removed")
	}
}

func TestSuffixedName(t *testing.T) {
	if got := suffixedName("ACME.pdf", "0123456789abcdef"); got != "ACME-01234567.pdf" {
		t.Errorf("suffixedName() = %s", got)
	}
}
