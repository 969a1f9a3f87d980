// Package codec implements the bidirectional mapping between Unicode
// grapheme strings and the integer class indices emitted by a recognition
// network.
//
// A grapheme is one or more code points treated as a single recognition
// class, so diacritic stacks or ligatures can be modeled as one output class.
// Class 0 is permanently reserved for the CTC blank and is never mapped from
// a grapheme.
//
// A Codec is immutable after construction. Alphabet extension for
// fine-tuning goes through Add and Merge, which return new codecs and leave
// indices that are already in use untouched wherever possible.
package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// BlankClass is the class index reserved for the CTC blank symbol.
const BlankClass = 0

// ErrUnencodable is returned by Encode when the input contains a substring
// that no grapheme in the table matches. It signals an alphabet mismatch
// between the text and the model and must not be papered over silently.
var ErrUnencodable = errors.New("unencodable text")

// ErrInvalidClass is returned by Decode for class indices without a table
// entry.
var ErrInvalidClass = errors.New("invalid class index")

// Codec maps grapheme strings to class indices and back.
type Codec struct {
	toClass map[string]int
	toText  []string // index -> grapheme, "" for blank and holes
	maxLen  int      // longest grapheme in runes, bounds the greedy matcher
}

// New builds a codec from graphemes in slice order: the first grapheme gets
// class 1, the second class 2, and so on (class 0 is the blank). Duplicate
// or empty graphemes are rejected.
func New(graphemes []string) (*Codec, error) {
	c := &Codec{
		toClass: make(map[string]int, len(graphemes)),
		toText:  make([]string, len(graphemes)+1),
	}
	for i, g := range graphemes {
		if g == "" {
			return nil, fmt.Errorf("empty grapheme at position %d", i)
		}
		if _, dup := c.toClass[g]; dup {
			return nil, fmt.Errorf("duplicate grapheme %q at position %d", g, i)
		}
		c.toClass[g] = i + 1
		c.toText[i+1] = g
		if n := len([]rune(g)); n > c.maxLen {
			c.maxLen = n
		}
	}
	return c, nil
}

// Size returns the total number of classes including the blank. A model
// trained against this codec must have exactly Size output classes.
func (c *Codec) Size() int { return len(c.toText) }

// MaxLabel returns the highest class index in use.
func (c *Codec) MaxLabel() int { return len(c.toText) - 1 }

// Contains reports whether the grapheme has a class assigned.
func (c *Codec) Contains(g string) bool {
	_, ok := c.toClass[g]
	return ok
}

// Class returns the class index for a grapheme, or -1 if it is unknown.
func (c *Codec) Class(g string) int {
	if idx, ok := c.toClass[g]; ok {
		return idx
	}
	return -1
}

// Graphemes returns all graphemes ordered by class index. Multi-codepoint
// graphemes keep their internal code point order, which is the canonical
// ordering for reading-order-sensitive scripts (diacritics and ligatures
// decode in the order they were trained in).
func (c *Codec) Graphemes() []string {
	out := make([]string, 0, len(c.toClass))
	for idx := 1; idx < len(c.toText); idx++ {
		if c.toText[idx] != "" {
			out = append(out, c.toText[idx])
		}
	}
	return out
}

// Encode splits text greedily into the longest matching grapheme prefixes
// and returns their class indices. If no grapheme matches at some position
// the whole encode fails with ErrUnencodable naming the offending substring;
// partial output would mask training-data/alphabet mismatches.
func (c *Codec) Encode(text string) ([]int, error) {
	runes := []rune(text)
	out := make([]int, 0, len(runes))
	for pos := 0; pos < len(runes); {
		matched := 0
		for n := min(c.maxLen, len(runes)-pos); n > 0; n-- {
			if idx, ok := c.toClass[string(runes[pos:pos+n])]; ok {
				out = append(out, idx)
				matched = n
				break
			}
		}
		if matched == 0 {
			tail := runes[pos:min(pos+8, len(runes))]
			return nil, fmt.Errorf("no grapheme matches %q at rune offset %d: %w", string(tail), pos, ErrUnencodable)
		}
		pos += matched
	}
	return out, nil
}

// Decode is the inverse lookup: each class index must have a table entry.
// The blank class is not decodable; CTC collapse removes blanks before text
// is reconstructed.
func (c *Codec) Decode(classes []int) (string, error) {
	var sb strings.Builder
	for i, idx := range classes {
		g, err := c.grapheme(idx)
		if err != nil {
			return "", fmt.Errorf("class at position %d: %w", i, err)
		}
		sb.WriteString(g)
	}
	return sb.String(), nil
}

func (c *Codec) grapheme(idx int) (string, error) {
	if idx <= 0 || idx >= len(c.toText) || c.toText[idx] == "" {
		return "", fmt.Errorf("%w: %d", ErrInvalidClass, idx)
	}
	return c.toText[idx], nil
}

// MustDecodeClass returns the grapheme for a class index that is known to be
// valid, panicking otherwise. Decoding paths that already validated indices
// against the matrix width use this.
func (c *Codec) MustDecodeClass(idx int) string {
	g, err := c.grapheme(idx)
	if err != nil {
		panic(err)
	}
	return g
}

// Add returns a new codec extended with the given graphemes. Existing
// assignments keep their indices; new graphemes are appended after the
// current maximum label in sorted order so extension is deterministic.
// Graphemes already present are ignored.
func (c *Codec) Add(graphemes []string) (*Codec, error) {
	fresh := make([]string, 0, len(graphemes))
	seen := make(map[string]bool, len(graphemes))
	for _, g := range graphemes {
		if g == "" {
			return nil, errors.New("empty grapheme")
		}
		if c.Contains(g) || seen[g] {
			continue
		}
		seen[g] = true
		fresh = append(fresh, g)
	}
	sort.Strings(fresh)

	next := &Codec{
		toClass: make(map[string]int, len(c.toClass)+len(fresh)),
		toText:  append(append([]string(nil), c.toText...), make([]string, len(fresh))...),
		maxLen:  c.maxLen,
	}
	for g, idx := range c.toClass {
		next.toClass[g] = idx
	}
	for i, g := range fresh {
		idx := len(c.toText) + i
		next.toClass[g] = idx
		next.toText[idx] = g
		if n := len([]rune(g)); n > next.maxLen {
			next.maxLen = n
		}
	}
	return next, nil
}

// Merge resizes the codec to exactly the alphabet of other: graphemes shared
// with other keep their current indices, graphemes only in other are
// appended, and graphemes absent from other are removed. The returned slice
// lists the class indices that were deleted, so the caller can drop the
// corresponding network outputs.
func (c *Codec) Merge(other *Codec) (*Codec, []int, error) {
	var deleted []int
	kept := make(map[string]int)
	for g, idx := range c.toClass {
		if other.Contains(g) {
			kept[g] = idx
		} else {
			deleted = append(deleted, idx)
		}
	}
	sort.Ints(deleted)

	next := &Codec{toClass: kept}
	maxIdx := 0
	for _, idx := range kept {
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	next.toText = make([]string, maxIdx+1)
	for g, idx := range kept {
		next.toText[idx] = g
		if n := len([]rune(g)); n > next.maxLen {
			next.maxLen = n
		}
	}

	var fresh []string
	for _, g := range other.Graphemes() {
		if _, ok := kept[g]; !ok {
			fresh = append(fresh, g)
		}
	}
	sort.Strings(fresh)
	for _, g := range fresh {
		next.toClass[g] = len(next.toText)
		next.toText = append(next.toText, g)
		if n := len([]rune(g)); n > next.maxLen {
			next.maxLen = n
		}
	}
	return next, deleted, nil
}

// LoadDict reads a dict file with one grapheme per line; line order assigns
// class indices starting at 1. Blank lines are kept as literal space
// characters by convention of common recognition dictionaries.
func LoadDict(path string) (*Codec, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dict file %s: %w", path, err)
	}
	defer file.Close()
	return ReadDict(file)
}

// ReadDict reads a dict stream as described for LoadDict.
func ReadDict(r io.Reader) (*Codec, error) {
	var graphemes []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			line = " "
		}
		graphemes = append(graphemes, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dict: %w", err)
	}
	return New(graphemes)
}

// table is the YAML serialization of a codec. Explicit indices keep sparse
// tables (holes left by Merge) intact across save/load.
type table struct {
	Graphemes map[string]int `yaml:"graphemes"`
}

// MarshalYAML serializes the codec as a grapheme -> class mapping.
func (c *Codec) MarshalYAML() (interface{}, error) {
	t := table{Graphemes: make(map[string]int, len(c.toClass))}
	for g, idx := range c.toClass {
		t.Graphemes[g] = idx
	}
	return t, nil
}

// UnmarshalYAML restores a codec from a grapheme -> class mapping.
func (c *Codec) UnmarshalYAML(value *yaml.Node) error {
	var t table
	if err := value.Decode(&t); err != nil {
		return err
	}
	maxIdx := 0
	for g, idx := range t.Graphemes {
		if idx <= 0 {
			return fmt.Errorf("grapheme %q mapped to reserved or negative class %d", g, idx)
		}
		if idx > maxIdx {
			maxIdx = idx
		}
	}
	c.toClass = make(map[string]int, len(t.Graphemes))
	c.toText = make([]string, maxIdx+1)
	c.maxLen = 0
	for g, idx := range t.Graphemes {
		if c.toText[idx] != "" {
			return fmt.Errorf("classes must be injective: %d maps to both %q and %q", idx, c.toText[idx], g)
		}
		c.toClass[g] = idx
		c.toText[idx] = g
		if n := len([]rune(g)); n > c.maxLen {
			c.maxLen = n
		}
	}
	return nil
}
