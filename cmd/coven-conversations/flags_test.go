// ABOUTME: Tests for subcommand flag parsing and output helpers
// ABOUTME: Covers value forms, switches, unknown input, and rune-safe truncation

package main

import (
	"testing"
	"time"
	"unicode/utf8"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    flags
		wantErr bool
	}{
		{name: "separate value", args: []string{"--id", "c1"}, want: flags{"id": "c1"}},
		{name: "inline value", args: []string{"--id=c1"}, want: flags{"id": "c1"}},
		{name: "switch", args: []string{"--incoming", "--id", "c1"}, want: flags{"incoming": "true", "id": "c1"}},
		{name: "empty", args: nil, want: flags{}},
		{name: "missing value", args: []string{"--id"}, wantErr: true},
		{name: "unknown flag", args: []string{"--nope"}, wantErr: true},
		{name: "positional", args: []string{"c1"}, wantErr: true},
		{name: "switch with value", args: []string{"--incoming=yes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFlags(tt.args, []string{"id"}, []string{"incoming"})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("flag %s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestFlags_Duration(t *testing.T) {
	f := flags{"wait": "250ms", "bad": "soon"}

	d, err := f.duration("wait", time.Second)
	if err != nil || d != 250*time.Millisecond {
		t.Errorf("duration(wait) = %v, %v", d, err)
	}

	d, err = f.duration("missing", time.Second)
	if err != nil || d != time.Second {
		t.Errorf("duration(missing) = %v, %v", d, err)
	}

	if _, err := f.duration("bad", time.Second); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestFlags_Require(t *testing.T) {
	f := flags{"with": "u2", "blank": "  "}

	if v, err := f.require("with"); err != nil || v != "u2" {
		t.Errorf("require(with) = %q, %v", v, err)
	}
	if _, err := f.require("blank"); err == nil {
		t.Error("expected error for blank flag")
	}
	if _, err := f.require("missing"); err == nil {
		t.Error("expected error for missing flag")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "exactly10!", n: 10, want: "exactly10!"},
		{in: "abcdefghijkl", n: 10, want: "abcdefg..."},
		{in: "héllo wörld ünïcode", n: 10, want: "héllo w..."},
		{in: "日本語のメッセージです", n: 6, want: "日本語..."},
	}

	for _, tt := range tests {
		got := truncate(tt.in, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.n)
		}
	}
}
