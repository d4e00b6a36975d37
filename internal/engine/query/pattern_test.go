package query

import (
	"testing"

	"modweave/internal/core/errors"
)

func TestPatternMatchesLiteralCases(t *testing.T) {
	records := map[string]MetaData{
		"exact":     {AssemblyName: "Other", FullName: "Foo.Bar"},
		"suffix":    {AssemblyName: "Other", FullName: "Zed.Bar"},
		"prefix":    {AssemblyName: "Other", FullName: "Foo.Baz"},
		"zeroArg":   {AssemblyName: "Other", FullName: "Foo.Test()"},
		"oneArg":    {AssemblyName: "Other", FullName: "Foo.Test(System.Int32)"},
		"inAsm":     {AssemblyName: "MyAssembly", FullName: "Foo.Bar"},
		"unrelated": {AssemblyName: "Other", FullName: "Qux"},
	}

	tests := []struct {
		pattern string
		want    []string
	}{
		{"Foo.Bar", []string{"exact", "inAsm"}},
		{"*Bar", []string{"exact", "suffix", "inAsm"}},
		{"Foo.*", []string{"exact", "prefix", "zeroArg", "oneArg", "inAsm"}},
		{"Foo.Test()", []string{"zeroArg"}},
		{"Foo.Test(int)", []string{"oneArg"}},
		{"Foo.Test( System.Int32 )", []string{"oneArg"}},
		{"[MyAssembly] Foo.Bar", []string{"inAsm"}},
		{"Qux && Foo.Test()", []string{"zeroArg", "unrelated"}},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			patterns, err := ParsePatterns(tt.pattern)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.pattern, err)
			}
			want := make(map[string]bool, len(tt.want))
			for _, k := range tt.want {
				want[k] = true
			}
			for key, rec := range records {
				got := false
				for _, p := range patterns {
					if p.Matches(rec) {
						got = true
						break
					}
				}
				if got != want[key] {
					t.Errorf("pattern %q on %s (%s): want match=%v, got %v", tt.pattern, key, rec.FullName, want[key], got)
				}
			}
		})
	}
}

func TestParsePatternsShape(t *testing.T) {
	patterns, err := ParsePatterns("[Game] Game.Player.Add(int, System.Int32) && *Stats")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}

	p := patterns[0]
	if p.AssemblyName != "Game" {
		t.Errorf("expected assembly Game, got %q", p.AssemblyName)
	}
	if p.FullName != "Game.Player.Add(System.Int32,System.Int32)" {
		t.Errorf("unexpected full name %q", p.FullName)
	}
	if p.StartsWith || p.EndsWith {
		t.Error("expected an exact pattern")
	}

	q := patterns[1]
	if !q.EndsWith || q.StartsWith || q.FullName != "Stats" {
		t.Errorf("expected suffix pattern on Stats, got %+v", q)
	}
}

func TestParsePatternsErrors(t *testing.T) {
	tests := []struct {
		pattern string
		code    errors.ErrorCode
	}{
		{"Foo.Test() ldarg.0", errors.CodeNotSupported},
		{"Fo*o", errors.CodeGrammar},
		{"*Foo*", errors.CodeGrammar},
		{"[Game Foo", errors.CodeGrammar},
		{"Foo.Test(int", errors.CodeGrammar},
		{"Foo.Test(int,)", errors.CodeGrammar},
		{"Foo && ", errors.CodeGrammar},
		{"Foo)", errors.CodeGrammar},
		{"[Game]", errors.CodeGrammar},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			_, err := ParsePatterns(tt.pattern)
			if err == nil {
				t.Fatalf("expected error for %q", tt.pattern)
			}
			if !errors.IsCode(err, tt.code) {
				t.Fatalf("expected %s for %q, got %v", tt.code, tt.pattern, err)
			}
		})
	}
}

func TestCanonicalParameter(t *testing.T) {
	tests := map[string]string{
		" int ":       "System.Int32",
		"string[]":    "System.String[]",
		"int&":        "System.Int32&",
		"Game.Player": "Game.Player",
	}
	for in, want := range tests {
		if got := canonicalParameter(in); got != want {
			t.Errorf("canonicalParameter(%q) = %q, want %q", in, got, want)
		}
	}
}
