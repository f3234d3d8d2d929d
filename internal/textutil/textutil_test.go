package textutil

import "testing"

func TestNormalizeFragment(t *testing.T) {
	cases := []struct{ in, want string }{
		{"(def a 1)\r\n(def b 2)\r\n", "(def a 1)\n(def b 2)\n"},
		{"(def a 1)\r(def b 2)", "(def a 1)\n(def b 2)"},
		{"(def a \"ok\")", "(def a \"ok\")"},
		{"(def a \xff)", "(def a �)"},
	}
	for _, tc := range cases {
		if got := NormalizeFragment(tc.in); got != tc.want {
			t.Fatalf("NormalizeFragment(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTrimBlankEdges(t *testing.T) {
	if got := TrimBlankEdges("\n\n(def a 1)\n  (def b 2)\n\n"); got != "(def a 1)\n  (def b 2)" {
		t.Fatalf("unexpected trim: %q", got)
	}
}
