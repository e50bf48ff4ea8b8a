package token

import (
	"strings"
	"testing"
)

func TestNew_Format(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if len(tok) != 48 {
		t.Fatalf("token length = %d, want 48", len(tok))
	}
	if tok != strings.ToLower(tok) {
		t.Fatalf("token not lowercase: %q", tok)
	}
	for _, r := range tok {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("non-hex rune %q in token %q", r, tok)
		}
	}
}

func TestNew_Unique(t *testing.T) {
	a, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a == b {
		t.Fatal("two generated tokens are identical")
	}
}

func TestResolve_KeepsExisting(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		keep     bool
	}{
		{"plain", "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef", true},
		{"whitespace_padded", "  sometoken  ", true},
		{"empty", "", false},
		{"whitespace_only", "   \t", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.existing)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if tc.keep {
				if got != strings.TrimSpace(tc.existing) {
					t.Fatalf("Resolve rotated a valid token: got %q", got)
				}
			} else {
				if len(got) != 48 {
					t.Fatalf("expected fresh 48-char token, got %q", got)
				}
			}
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	first, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := Resolve(first)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first != second {
		t.Fatalf("token rotated across resolves: %q vs %q", first, second)
	}
}

func TestWellFormed(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"9f2c4a6e8b0d1f3a5c7e9b2d4f6a8c0e2a4c6e8b0d2f4a6c", true},
		{"9F2C4A6E8B0D1F3A5C7E9B2D4F6A8C0E2A4C6E8B0D2F4A6C", false},
		{"9f2c4a6e", false},
		{"", false},
		{"hunter2", false},
	}
	for _, tc := range cases {
		if got := WellFormed(tc.in); got != tc.want {
			t.Errorf("WellFormed(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
