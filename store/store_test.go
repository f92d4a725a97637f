package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/classvm/compiler"
	"github.com/chazu/classvm/pkg/bytecode"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "cache", "images.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func wideProgram(t *testing.T, n int) *bytecode.Program {
	t.Helper()
	p, err := compiler.Compile(compiler.WideClassProgram(n))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return p
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := wideProgram(t, 257)

	hash, err := s.Put(ctx, p)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	want, _ := bytecode.ContentHash(p)
	if hash != HashString(want) {
		t.Errorf("Put hash = %s, want %s", hash, HashString(want))
	}

	got, err := s.Get(ctx, hash)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != p.Name || len(got.Functions) != len(p.Functions) {
		t.Fatalf("Get returned %s with %d functions", got.Name, len(got.Functions))
	}
	for i := range p.Functions {
		if !bytes.Equal(got.Functions[i].Code, p.Functions[i].Code) {
			t.Errorf("function %d code differs", i)
		}
	}

	// Storing the same program again is a no-op.
	again, err := s.Put(ctx, p)
	if err != nil || again != hash {
		t.Errorf("second Put = %s, %v", again, err)
	}
	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "wide257" || entries[0].Size == 0 {
		t.Errorf("List = %+v", entries)
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestBindLookup(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	p := wideProgram(t, 4)

	key := SourceKey([]byte("unit text"), false)
	if _, err := s.Lookup(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Lookup before Bind = %v, want ErrNotFound", err)
	}

	hash, err := s.Put(ctx, p)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Bind(ctx, key, hash); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	got, err := s.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got.Name != "wide4" {
		t.Errorf("Lookup returned %s", got.Name)
	}

	if err := s.Delete(ctx, hash); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Lookup(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup after Delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, hash); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestSourceKey(t *testing.T) {
	a := SourceKey([]byte("x"), false)
	if a != SourceKey([]byte("x"), false) {
		t.Error("SourceKey is not deterministic")
	}
	if a == SourceKey([]byte("x"), true) {
		t.Error("debug setting should change the key")
	}
	if a == SourceKey([]byte("y"), false) {
		t.Error("source text should change the key")
	}
}

func TestReopenKeepsImages(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "images.db")

	s, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	hash, err := s.Put(ctx, wideProgram(t, 2))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Close()

	s, err = Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.Get(ctx, hash); err != nil {
		t.Errorf("Get after reopen: %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Put(ctx, wideProgram(t, 1)); err == nil {
		t.Error("expected error with a canceled context")
	}
}
