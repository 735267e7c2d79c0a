package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaskKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "não configurada"},
		{"curta", "configurada"},
		{"sk-or-v1-0123456789abcdef", "sk-o...cdef"},
	}
	for _, tt := range tests {
		if got := maskKey(tt.key); got != tt.want {
			t.Errorf("maskKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestMaskKeyNeverLeaksMiddle(t *testing.T) {
	key := "sk-or-v1-super-secreta-0000"
	masked := maskKey(key)
	if strings.Contains(masked, "secreta") {
		t.Errorf("masked key leaks content: %q", masked)
	}
}

func TestDescribeFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nada.db")
	if got := describeFile(missing); !strings.Contains(got, "não criado") {
		t.Errorf("describeFile(missing) = %q", got)
	}

	path := filepath.Join(t.TempDir(), "prosa.db")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := describeFile(path); !strings.Contains(got, "3 bytes") {
		t.Errorf("describeFile(existing) = %q", got)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"run": false, "import": false, "status": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("command %s not registered", name)
		}
	}
}
