package hapisim

import (
	"reflect"
	"testing"
)

func TestNamePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    []string
		want    bool
	}{
		{"crypto/hollow", []string{"crypto"}, true},
		{"crypto/hollow", []string{"crypto", "hollow"}, true},
		{"crypto/hollow", []string{"Crypto", "Hollow account from ECDSA key"}, true},
		{"crypto/hollow", []string{"Crypto", "auto-create"}, false},
		{"crypto/hollow", []string{"token", "hollow"}, false},
		{"crypto/hollow", []string{"crypto", "hollow", "any subtest"}, true},
		{"/auto", []string{"token", "auto account"}, true},
		{"//ecdsa", []string{"crypto", "transfer", "ecdsa"}, true},
		{"//ecdsa", []string{"crypto", "transfer", "ed25519"}, false},
		{"", []string{"crypto", "anything"}, true},
	}
	for _, test := range tests {
		np, err := compileNamePattern(test.pattern)
		if err != nil {
			t.Fatal(err)
		}
		if got := np.match(test.path...); got != test.want {
			t.Errorf("pattern %q match %q = %v, want %v", test.pattern, test.path, got, test.want)
		}
	}
}

func TestNamePatternInvalid(t *testing.T) {
	if _, err := compileNamePattern("crypto/(hollow"); err == nil {
		t.Fatal("expected error for unbalanced group")
	}
}

func TestSplitPattern(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a/b", []string{"a", "b"}},
		{"a/(b/c)", []string{"a", "(b/c)"}},
		{"[/]x/y", []string{"[/]x", "y"}},
		{`a\/b/c`, []string{`a\/b`, "c"}},
		{"/y", []string{"", "y"}},
		{"a//c", []string{"a", "", "c"}},
	}
	for _, test := range tests {
		if got := splitPattern(test.in); !reflect.DeepEqual(got, test.want) {
			t.Errorf("splitPattern(%q) = %q, want %q", test.in, got, test.want)
		}
	}
}
