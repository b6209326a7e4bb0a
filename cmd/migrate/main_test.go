package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestVersionFromFile(t *testing.T) {
	tests := []struct {
		name    string
		want    int64
		wantErr bool
	}{
		{"001_certification_ledger.up.sql", 1, false},
		{"002_webhooks.up.sql", 2, false},
		{"noprefix.sql", 0, true},
		{"abc_webhooks.up.sql", 0, true},
	}
	for _, tc := range tests {
		got, err := versionFromFile(tc.name)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("versionFromFile(%q) = %d, %v", tc.name, got, err)
		}
	}
}

func TestUpFilesSkipsDownAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_b.up.sql", "001_a.up.sql", "001_a.down.sql", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := upFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"001_a.up.sql", "002_b.up.sql"}; !reflect.DeepEqual(got, want) {
		t.Errorf("upFiles = %v, want %v", got, want)
	}
}
