package geoip

import "testing"

func TestOpenWithoutPath(t *testing.T) {
	r, err := Open("  ")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if r != nil {
		t.Fatal("expected nil resolver without a database path")
	}
	if got := r.Country("203.0.113.7"); got != "" {
		t.Fatalf("Country = %q", got)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenMissingDatabase(t *testing.T) {
	if _, err := Open(t.TempDir() + "/missing.mmdb"); err == nil {
		t.Fatal("expected error for missing database")
	}
}
