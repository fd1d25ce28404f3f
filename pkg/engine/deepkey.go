package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Seg is one segment of a DeepKey: either a string or an integer.
type Seg struct {
	str   string
	idx   int
	isInt bool
}

// S returns a string segment.
func S(s string) Seg { return Seg{str: s} }

// I returns an integer segment.
func I(i int) Seg { return Seg{idx: i, isInt: true} }

// MarshalJSON encodes the segment as a bare JSON string or number.
func (g Seg) MarshalJSON() ([]byte, error) {
	if g.isInt {
		return json.Marshal(g.idx)
	}
	return json.Marshal(g.str)
}

// UnmarshalJSON accepts a JSON string or an integral number.
func (g *Seg) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*g = S(t)
	case json.Number:
		n, err := strconv.Atoi(t.String())
		if err != nil {
			return fmt.Errorf("engine: deep key segment %s is not an integer", t)
		}
		*g = I(n)
	default:
		return fmt.Errorf("engine: deep key segment must be a string or integer, got %T", v)
	}
	return nil
}

// DeepKey identifies the position of an input inside a rule's nested
// argument structure. It round-trips through JSON, which is what makes it
// usable as a metadata-cache key.
type DeepKey []Seg

// Append returns a new key with seg appended. The receiver is not modified.
func (k DeepKey) Append(seg Seg) DeepKey {
	out := make(DeepKey, len(k), len(k)+1)
	copy(out, k)
	return append(out, seg)
}

// String renders the key in attribute/index notation, e.g. `.corpus[0]`.
func (k DeepKey) String() string {
	var b strings.Builder
	for _, s := range k {
		if s.isInt {
			fmt.Fprintf(&b, "[%d]", s.idx)
		} else {
			b.WriteByte('.')
			b.WriteString(s.str)
		}
	}
	return b.String()
}

// canon returns the canonical JSON encoding, used as a lookup key so that
// keys loaded from a persisted cache compare equal to freshly built ones.
func (k DeepKey) canon() string {
	b, err := json.Marshal(k)
	if err != nil {
		// Segments only hold strings and ints; Marshal cannot fail.
		panic(fmt.Sprintf("engine: marshal deep key: %v", err))
	}
	return string(b)
}
