package diffpatch

import (
	"strings"
	"testing"
)

func TestUnifiedBasic(t *testing.T) {
	a := []byte("(def x 1)\n(def y 2)\n")
	b := []byte("(def x 1)\n(def y 3)\n")

	body, oversize := Unified("a/core.clj", "b/core.clj", a, b, Options{})
	if oversize {
		t.Fatalf("unexpected oversize")
	}
	for _, want := range []string{"--- a/core.clj", "+++ b/core.clj", "-(def y 2)", "+(def y 3)"} {
		if !strings.Contains(body, want) {
			t.Fatalf("patch missing %q:\n%s", want, body)
		}
	}
}

func TestUnifiedIdenticalInputsEmpty(t *testing.T) {
	a := []byte("(def x 1)\n")
	body, _ := Unified("a", "b", a, a, Options{})
	if body != "" {
		t.Fatalf("identical inputs should produce an empty patch, got:\n%s", body)
	}
}

func TestUnifiedOversize(t *testing.T) {
	a := []byte(strings.Repeat("x\n", 100))
	body, oversize := Unified("a", "b", a, nil, Options{MaxBytes: 10})
	if !oversize {
		t.Fatalf("expected oversize flag")
	}
	if !strings.Contains(body, "diff omitted") {
		t.Fatalf("expected placeholder body, got:\n%s", body)
	}
}
