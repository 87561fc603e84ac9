package metadata

import (
	"strings"

	"vec0/internal/bitset"
	"vec0/internal/tableopts"
)

// Op is a metadata predicate operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpIn
	OpLike
	OpGlob
	OpBetween
)

// Evaluate computes a match bitmap of size bits for one predicate
// against one chunk's column buffer. Operators illegal for the
// column's type (e.g. `<` on boolean) degrade to an all-zero bitmap
// rather than an error, matching the documented behavior for
// misapplied boolean/text operators: illegal shapes are rejected
// earlier, at plan time, where they can be (see internal/planner);
// anything that reaches here and doesn't apply simply matches
// nothing.
func Evaluate(t tableopts.MetaType, buf []byte, size int, op Op, args Args, overflow TextOverflow, chunkID int64) (bitset.Bitmap, error) {
	out := bitset.New(size)
	switch t {
	case tableopts.MetaBoolean:
		evalBool(buf, size, op, args, out)
	case tableopts.MetaInteger:
		evalInt(buf, size, op, args, out)
	case tableopts.MetaFloat:
		evalFloat(buf, size, op, args, out)
	case tableopts.MetaText:
		if err := evalText(buf, size, op, args, overflow, chunkID, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Args holds the operand(s) for one predicate evaluation. Only the
// field(s) the operator reads are populated (Lo/Hi for BETWEEN, a set
// for IN, Pattern for LIKE/GLOB, the single value otherwise).
type Args struct {
	Bool       bool
	Int        int64
	IntLo      int64
	IntHi      int64
	IntSet     []int64
	Float      float64
	FloatLo    float64
	FloatHi    float64
	Text       string
	TextSet    []string
	Pattern    string
	Insensitive bool // LIKE is case-insensitive; GLOB is case-sensitive
}

func evalBool(buf []byte, size int, op Op, a Args, out bitset.Bitmap) {
	switch op {
	case OpEq:
		for i := 0; i < size; i++ {
			if GetBool(buf, i) == a.Bool {
				out.Set(i)
			}
		}
	case OpNe:
		for i := 0; i < size; i++ {
			if GetBool(buf, i) != a.Bool {
				out.Set(i)
			}
		}
	}
	// any other operator: leave out all-zero
}

func evalInt(buf []byte, size int, op Op, a Args, out bitset.Bitmap) {
	for i := 0; i < size; i++ {
		v := GetInt64(buf, i)
		var match bool
		switch op {
		case OpEq:
			match = v == a.Int
		case OpNe:
			match = v != a.Int
		case OpLt:
			match = v < a.Int
		case OpLe:
			match = v <= a.Int
		case OpGt:
			match = v > a.Int
		case OpGe:
			match = v >= a.Int
		case OpBetween:
			match = v >= a.IntLo && v <= a.IntHi
		case OpIn:
			for _, cand := range a.IntSet {
				if v == cand {
					match = true
					break
				}
			}
		}
		if match {
			out.Set(i)
		}
	}
}

func evalFloat(buf []byte, size int, op Op, a Args, out bitset.Bitmap) {
	for i := 0; i < size; i++ {
		v := GetFloat64(buf, i)
		var match bool
		switch op {
		case OpEq:
			match = v == a.Float
		case OpNe:
			match = v != a.Float
		case OpLt:
			match = v < a.Float
		case OpLe:
			match = v <= a.Float
		case OpGt:
			match = v > a.Float
		case OpGe:
			match = v >= a.Float
		case OpBetween:
			match = v >= a.FloatLo && v <= a.FloatHi
		}
		// OpIn on a float column is not evaluated and matches nothing.
		if match {
			out.Set(i)
		}
	}
}

func evalText(buf []byte, size int, op Op, a Args, overflow TextOverflow, chunkID int64, out bitset.Bitmap) error {
	if (op == OpLike || op == OpGlob) && fastPrefix(a.Pattern, op) != "" {
		prefix := fastPrefix(a.Pattern, op)
		for i := 0; i < size; i++ {
			cache, _ := TextPrefix(buf, i)
			if bytesHasPrefix(cache, prefix, op == OpLike) {
				out.Set(i)
			}
		}
		return nil
	}

	for i := 0; i < size; i++ {
		s, err := GetText(buf, i, overflow, chunkID)
		if err != nil {
			return err
		}
		var match bool
		switch op {
		case OpEq:
			match = s == a.Text
		case OpNe:
			match = s != a.Text
		case OpLt:
			match = s < a.Text
		case OpLe:
			match = s <= a.Text
		case OpGt:
			match = s > a.Text
		case OpGe:
			match = s >= a.Text
		case OpIn:
			for _, cand := range a.TextSet {
				if s == cand {
					match = true
					break
				}
			}
		case OpLike:
			match = likeMatch(a.Pattern, s)
		case OpGlob:
			match = globMatch(a.Pattern, s)
		}
		if match {
			out.Set(i)
		}
	}
	return nil
}

// fastPrefix returns the literal prefix of pattern when it consists of
// a plain prefix followed by exactly one trailing wildcard ('%' for
// LIKE, '*' for GLOB) and nothing else, and the prefix is short enough
// to be confirmed from the 12-byte inline cache alone. Otherwise "".
func fastPrefix(pattern string, op Op) string {
	wildcard := byte('%')
	if op == OpGlob {
		wildcard = '*'
	}
	if len(pattern) == 0 || pattern[len(pattern)-1] != wildcard {
		return ""
	}
	prefix := pattern[:len(pattern)-1]
	if strings.ContainsAny(prefix, "%_*?[]") {
		return ""
	}
	if len(prefix) == 0 || len(prefix) > 12 {
		return ""
	}
	return prefix
}

func bytesHasPrefix(cache []byte, prefix string, insensitive bool) bool {
	if len(prefix) > len(cache) {
		return false
	}
	if !insensitive {
		return string(cache[:len(prefix)]) == prefix
	}
	return strings.EqualFold(string(cache[:len(prefix)]), prefix)
}

// likeMatch implements SQL LIKE with '%' and '_' wildcards,
// case-insensitively.
func likeMatch(pattern, s string) bool {
	return likeMatchFold(strings.ToLower(pattern), strings.ToLower(s))
}

func likeMatchFold(pattern, s string) bool {
	return wildcardMatch(pattern, s, '%', '_')
}

// globMatch implements SQL GLOB with '*' and '?' wildcards,
// case-sensitively. Character classes ([...]) are not supported.
func globMatch(pattern, s string) bool {
	return wildcardMatch(pattern, s, '*', '?')
}

func wildcardMatch(pattern, s string, star, any byte) bool {
	var memo map[[2]int]bool
	var rec func(pi, si int) bool
	rec = func(pi, si int) bool {
		key := [2]int{pi, si}
		if memo == nil {
			memo = make(map[[2]int]bool)
		}
		if v, ok := memo[key]; ok {
			return v
		}
		var result bool
		switch {
		case pi == len(pattern):
			result = si == len(s)
		case pattern[pi] == star:
			result = rec(pi+1, si) || (si < len(s) && rec(pi, si+1))
		case si == len(s):
			result = false
		case pattern[pi] == any || pattern[pi] == s[si]:
			result = rec(pi+1, si+1)
		default:
			result = false
		}
		memo[key] = result
		return result
	}
	return rec(0, 0)
}
