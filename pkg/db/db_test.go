package db

import (
	"path/filepath"
	"testing"
)

func TestInitCreatesSchema(t *testing.T) {
	d, err := Init(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer d.Close()

	for _, table := range []string{"event_audit", "reshuffle_audit"} {
		var name string
		err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestInitIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	d1, err := Init(path)
	if err != nil {
		t.Fatalf("first Init: %v", err)
	}
	d1.Close()

	d2, err := Init(path)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	d2.Close()
}
