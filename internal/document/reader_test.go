package document

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRead_PlainTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte("Revenue grew 12%.\n\n\nNet income flat.\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r := NewPDFReader()
	text, err := r.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if text != "Revenue grew 12%.\nNet income flat." {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRead_MissingFile(t *testing.T) {
	r := NewPDFReader()
	_, err := r.Read(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestRead_EmptyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	if err := os.WriteFile(path, []byte("   \n\n  "), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r := NewPDFReader()
	_, err := r.Read(context.Background(), path)
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestRead_CorruptPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	r := NewPDFReader()
	_, err := r.Read(context.Background(), path)
	if !errors.Is(err, ErrUnreadable) {
		t.Fatalf("expected ErrUnreadable, got %v", err)
	}
}

func TestRead_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewPDFReader()
	if _, err := r.Read(ctx, "whatever.pdf"); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}
