package datastore

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *DataStore {
	t.Helper()
	cfg := DefaultConfig(filepath.Join(t.TempDir(), "state.json"))
	cfg.AutoSaveInterval = time.Hour // tests flush explicitly
	cfg.Logger = log.New(io.Discard, "", 0)
	ds, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { ds.Close() })
	return ds
}

func TestAddGetDelete(t *testing.T) {
	ds := openTestStore(t)

	ds.Add("k", "v")
	if got, ok := ds.Get("k"); !ok || got != "v" {
		t.Fatalf("get = %v ok=%v", got, ok)
	}

	ds.Delete("k")
	if _, ok := ds.Get("k"); ok {
		t.Fatalf("key survived delete")
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ds, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ds.Add("greeting", "hello")
	if err := ds.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if got, ok := again.Get("greeting"); !ok || got != "hello" {
		t.Fatalf("reopened value = %v ok=%v", got, ok)
	}
}

func TestSaveSkipsWhenClean(t *testing.T) {
	ds := openTestStore(t)
	ds.Add("k", "v")
	if err := ds.SaveToFile(); err != nil {
		t.Fatalf("save: %v", err)
	}
	before, err := os.Stat(ds.file)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	// unchanged data does not rewrite the file
	if err := ds.SaveToFile(); err != nil {
		t.Fatalf("second save: %v", err)
	}
	after, err := os.Stat(ds.file)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatalf("clean save rewrote the file")
	}
}

func TestClosedStoreRejectsUse(t *testing.T) {
	ds := openTestStore(t)
	if err := ds.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ds.Add("k", "v")
	if _, ok := ds.Get("k"); ok {
		t.Fatalf("closed store accepted a write")
	}
	if err := ds.SaveToFile(); err == nil {
		t.Fatalf("save on closed store did not fail")
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("double close: %v", err)
	}
}

func TestRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(path); err == nil {
		t.Fatalf("corrupt file accepted")
	}
}
