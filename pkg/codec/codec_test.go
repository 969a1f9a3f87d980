package codec

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func mustNew(t *testing.T, graphemes []string) *Codec {
	t.Helper()
	c, err := New(graphemes)
	if err != nil {
		t.Fatalf("New(%v): %v", graphemes, err)
	}
	return c
}

func TestNewRejectsDuplicatesAndEmpty(t *testing.T) {
	if _, err := New([]string{"a", "a"}); err == nil {
		t.Error("duplicate grapheme accepted")
	}
	if _, err := New([]string{"a", ""}); err == nil {
		t.Error("empty grapheme accepted")
	}
}

func TestEncodeGreedyLongestPrefix(t *testing.T) {
	// "ab" must win over "a" followed by failure on "b".
	c := mustNew(t, []string{"a", "ab", "c"})
	got, err := c.Encode("abca")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []int{2, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("Encode = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Encode = %v, want %v", got, want)
		}
	}
}

func TestEncodeMultiCodepointGrapheme(t *testing.T) {
	// Combining sequence treated as a single class.
	shadda := "َّ" // shadda + fatha
	c := mustNew(t, []string{"ب", shadda})
	got, err := c.Encode("ب" + shadda)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Encode = %v, want [1 2]", got)
	}
}

func TestEncodeUnencodable(t *testing.T) {
	c := mustNew(t, []string{"a", "b"})
	_, err := c.Encode("axb")
	if !errors.Is(err, ErrUnencodable) {
		t.Fatalf("want ErrUnencodable, got %v", err)
	}
	if !strings.Contains(err.Error(), "x") {
		t.Errorf("error should name the offending substring: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	c := mustNew(t, []string{"a", "b", "ch", "sch", " "})
	for _, s := range []string{"", "a", "schab ch", "ab ba", "chsch"} {
		enc, err := c.Encode(s)
		if err != nil {
			t.Fatalf("Encode(%q): %v", s, err)
		}
		dec, err := c.Decode(enc)
		if err != nil {
			t.Fatalf("Decode(Encode(%q)): %v", s, err)
		}
		if dec != s {
			t.Errorf("round-trip %q -> %v -> %q", s, enc, dec)
		}
	}
}

func TestDecodeInvalidClass(t *testing.T) {
	c := mustNew(t, []string{"a"})
	for _, idx := range []int{BlankClass, -1, 99} {
		if _, err := c.Decode([]int{idx}); !errors.Is(err, ErrInvalidClass) {
			t.Errorf("Decode([%d]): want ErrInvalidClass, got %v", idx, err)
		}
	}
}

func TestAddPreservesIndices(t *testing.T) {
	c := mustNew(t, []string{"a", "b"})
	ext, err := c.Add([]string{"d", "c", "a"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if ext.Class("a") != 1 || ext.Class("b") != 2 {
		t.Error("Add changed existing indices")
	}
	// New graphemes appended in sorted order after the old maximum.
	if ext.Class("c") != 3 || ext.Class("d") != 4 {
		t.Errorf("new classes c=%d d=%d, want 3 and 4", ext.Class("c"), ext.Class("d"))
	}
	if c.Contains("c") {
		t.Error("Add mutated the original codec")
	}
}

func TestMergeReportsDeleted(t *testing.T) {
	c := mustNew(t, []string{"a", "b", "c"})
	other := mustNew(t, []string{"b", "c", "x"})
	merged, deleted, err := c.Merge(other)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != 1 {
		t.Errorf("deleted = %v, want [1]", deleted)
	}
	if merged.Class("b") != 2 || merged.Class("c") != 3 {
		t.Error("Merge changed retained indices")
	}
	if merged.Class("x") < 0 {
		t.Error("Merge dropped grapheme only present in other")
	}
	if merged.Contains("a") {
		t.Error("Merge kept removed grapheme")
	}
	// Deleted classes must fail decoding.
	if _, err := merged.Decode([]int{1}); !errors.Is(err, ErrInvalidClass) {
		t.Errorf("decoding deleted class: want ErrInvalidClass, got %v", err)
	}
}

func TestGraphemesOrderedByClass(t *testing.T) {
	c := mustNew(t, []string{"z", "a", "m"})
	got := c.Graphemes()
	want := []string{"z", "a", "m"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Graphemes = %v, want %v", got, want)
		}
	}
}

func TestReadDictKeepsBlankLinesAsSpace(t *testing.T) {
	c, err := ReadDict(strings.NewReader("a\n\nb\n"))
	if err != nil {
		t.Fatalf("ReadDict: %v", err)
	}
	if c.Class("a") != 1 || c.Class(" ") != 2 || c.Class("b") != 3 {
		t.Errorf("dict classes wrong: a=%d space=%d b=%d", c.Class("a"), c.Class(" "), c.Class("b"))
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	c := mustNew(t, []string{"a", "b", "ch"})
	data, err := yaml.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Codec
	if err := yaml.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, g := range c.Graphemes() {
		if back.Class(g) != c.Class(g) {
			t.Errorf("class for %q changed: %d -> %d", g, c.Class(g), back.Class(g))
		}
	}
	if back.Size() != c.Size() {
		t.Errorf("Size changed: %d -> %d", c.Size(), back.Size())
	}
}
