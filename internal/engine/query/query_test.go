package query

import (
	"testing"

	"modweave/internal/core/errors"
	"modweave/internal/engine/meta"
	"modweave/internal/test/fixture"
)

func TestExpandAssemblyIsIdempotent(t *testing.T) {
	s := fixture.NewSample()
	cache := NewExpansionCache(4)
	e := NewExpander(cache)

	first, err := e.Expand(s.Assembly)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	second, err := e.Expand(s.Assembly)
	if err != nil {
		t.Fatalf("expand again: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected %d records, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i].AssemblyName != second[i].AssemblyName || first[i].FullName != second[i].FullName {
			t.Fatalf("record %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one cached assembly, got %d", cache.Len())
	}

	// A fresh expander over the same cache must not walk again.
	third, _ := NewExpander(cache).Expand(s.Assembly)
	if &third[0] != &first[0] {
		t.Fatal("expected cached record slice to be reused")
	}
}

func TestExpandRecordNames(t *testing.T) {
	s := fixture.NewSample()
	records, err := NewExpander(nil).Expand(s.Assembly)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	want := []string{
		"Game, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null",
		"Game.dll",
		"Game.Player",
		"Game.Player/Stats",
		"Game.Player..ctor()",
		"Game.Player.Add(System.Int32,System.Int32)",
		"Int32",
		"Int32",
	}
	for i, name := range want {
		if records[i].FullName != name {
			t.Fatalf("record %d: want %q, got %q", i, name, records[i].FullName)
		}
		if records[i].AssemblyName != "Game" {
			t.Fatalf("record %d: want assembly Game, got %q", i, records[i].AssemblyName)
		}
	}

	found := false
	for _, r := range records {
		if r.FullName == "Game.Player.Name" {
			if _, ok := r.Instance.(*meta.Property); !ok {
				t.Fatalf("expected property instance, got %T", r.Instance)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("expected property record Game.Player.Name")
	}
}

func TestExpandUnsupportedRoot(t *testing.T) {
	_, err := NewExpander(nil).Expand(&meta.Field{Name: "x"})
	if !errors.IsCode(err, errors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestQueryRunIsMemoized(t *testing.T) {
	s := fixture.NewSample()
	q := New("Game.Player.*", NewExpansionCache(4), s.Assembly)

	first, err := q.Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("expected matches")
	}
	second, _ := q.Run()
	third, _ := q.Run()
	if len(second) != len(first) || &second[0] != &first[0] || &third[0] != &first[0] {
		t.Fatal("expected the memoized result on later runs")
	}
}

func TestQueryTypeAndMethod(t *testing.T) {
	s := fixture.NewSample()
	cache := NewExpansionCache(4)

	types, err := New("Game.Player", cache, s.Assembly).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(types) != 1 || types.Types()[0] != s.Player {
		t.Fatalf("expected exactly Game.Player, got %+v", types)
	}

	methods, err := New("Game.Player.Test()", cache, s.Assembly).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(methods.Methods()) != 1 || methods.Methods()[0] != s.Test {
		t.Fatalf("expected zero-arg Test only, got %+v", methods)
	}

	overload, err := New("Game.Player.Test(int)", cache, s.Assembly).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(overload) != 1 || overload.Methods()[0] != s.TestI {
		t.Fatalf("expected Test(int) overload, got %+v", overload)
	}
}

func TestQueryOrAcrossSegmentsKeepsOrder(t *testing.T) {
	s := fixture.NewSample()
	results, err := New("Game.World && Game.Player", nil, s.Assembly).Run()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	types := results.Types()
	if len(types) != 2 || types[0] != s.Player || types[1] != s.World {
		t.Fatalf("expected expansion order Player, World; got %v", types)
	}
}

func TestQueryGrammarErrorIsMemoized(t *testing.T) {
	s := fixture.NewSample()
	q := New("Game.Player.Test() ldarg.0", nil, s.Assembly)
	_, err := q.Run()
	if !errors.IsCode(err, errors.CodeNotSupported) {
		t.Fatalf("expected not supported, got %v", err)
	}
	_, again := q.Run()
	if again != err {
		t.Fatal("expected the same error on rerun")
	}
}

func TestResultsSingle(t *testing.T) {
	s := fixture.NewSample()
	results, _ := New("Game.Player.Test*", nil, s.Assembly).Run()
	if _, err := results.Single("Game.Player.Test*"); !errors.IsCode(err, errors.CodeAmbiguous) {
		t.Fatalf("expected ambiguous, got %v", err)
	}
	none, _ := New("Nope", nil, s.Assembly).Run()
	if _, err := none.Single("Nope"); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestExpansionCacheEvicts(t *testing.T) {
	c := NewExpansionCache(1)
	c.Put("a", []MetaData{{FullName: "a"}})
	c.Put("b", []MetaData{{FullName: "b"}})
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected a to be evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Fatal("expected b to be cached")
	}
	c.Invalidate("b")
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d", c.Len())
	}
}
