package env

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestMerge_LaterWins(t *testing.T) {
	got := Merge(
		Vars{"A": "1", "B": "1"},
		Vars{"B": "2"},
		Vars{"C": "3"},
	)
	want := Vars{"A": "1", "B": "2", "C": "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseInline(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Vars
		wantErr bool
	}{
		{"empty", "", Vars{}, false},
		{"single", "A=1", Vars{"A": "1"}, false},
		{"multiple with spaces", " A=1 , B=two ", Vars{"A": "1", "B": "two"}, false},
		{"value with equals", "URL=http://x?a=b", Vars{"URL": "http://x?a=b"}, false},
		{"missing value separator", "A", nil, true},
		{"empty key", "=1", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInline(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.env")
	content := "# comment\nMODE=prod\nTOKEN=\"secret value\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["MODE"] != "prod" {
		t.Errorf("MODE: got %q", got["MODE"])
	}
	if got["TOKEN"] != "secret value" {
		t.Errorf("TOKEN: got %q", got["TOKEN"])
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.env")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFiles_MergesInOrder(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.env")
	second := filepath.Join(dir, "b.env")
	if err := os.WriteFile(first, []byte("A=1\nB=1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(second, []byte("B=2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := LoadFiles([]string{first, second, ""})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got["A"] != "1" || got["B"] != "2" {
		t.Errorf("unexpected merge result: %v", got)
	}
}

func TestEnviron_Sorted(t *testing.T) {
	v := Vars{"Z": "26", "A": "1", "M": "13"}
	got := v.Environ()
	want := []string{"A=1", "M=13", "Z=26"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestSortedKeys(t *testing.T) {
	v := Vars{"B": "2", "A": "1"}
	got := v.SortedKeys()
	if !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("got %v", got)
	}
}
