// Package segmenter recovers a decryption password that a site hides inside
// its own ciphertext, using positional rules scraped from the player script.
package segmenter

import (
	"regexp"
	"strconv"
	"strings"

	"media-extractor-go/pkg/types"
)

// caseRe matches `case 0x1a: x = y, z = w;`. The right-hand sides may be
// identifiers or hex literals.
var caseRe = regexp.MustCompile(`case\s*(?:0x)?[0-9a-fA-F]+\s*:\s*([A-Za-z_$][\w$]*)\s*=\s*([\w$]+)\s*,\s*([A-Za-z_$][\w$]*)\s*=\s*([\w$]+)\s*;`)

// DeriveIndexPairs scans an obfuscated player script for the case statements
// that encode (offset, length) pairs and resolves their variables. Pairs
// whose variables cannot be resolved are dropped.
func DeriveIndexPairs(script string) []types.IndexPair {
	matches := caseRe.FindAllStringSubmatchIndex(script, -1)
	if len(matches) == 0 {
		return nil
	}

	// Assignments are resolved outside the case statements so `x=y` inside
	// one is never read as a literal.
	var b strings.Builder
	last := 0
	for _, m := range matches {
		b.WriteString(script[last:m[0]])
		b.WriteByte(';')
		last = m[1]
	}
	b.WriteString(script[last:])
	rest := b.String()

	resolved := make(map[string]*int)
	lookup := func(name string) (int, bool) {
		if v, ok := resolved[name]; ok {
			if v == nil {
				return 0, false
			}
			return *v, true
		}
		v, ok := resolveVar(rest, name)
		if !ok {
			resolved[name] = nil
			return 0, false
		}
		resolved[name] = &v
		return v, true
	}

	pairs := make([]types.IndexPair, 0, len(matches))
	for _, m := range matches {
		lhs1, rhs1 := script[m[2]:m[3]], script[m[4]:m[5]]
		lhs2, rhs2 := script[m[6]:m[7]], script[m[8]:m[9]]

		offset, ok := assignedValue(lhs1, rhs1, lookup)
		if !ok {
			continue
		}
		length, ok := assignedValue(lhs2, rhs2, lookup)
		if !ok {
			continue
		}
		pairs = append(pairs, types.IndexPair{Offset: offset, Length: length})
	}
	return pairs
}

// assignedValue resolves one `lhs = rhs` from a case statement. A literal
// right-hand side is used as is; otherwise the source variable is looked up,
// then the target variable.
func assignedValue(lhs, rhs string, lookup func(string) (int, bool)) (int, bool) {
	if rhs[0] >= '0' && rhs[0] <= '9' {
		v, err := strconv.ParseInt(strings.TrimPrefix(rhs, "0x"), 16, 64)
		return int(v), err == nil
	}
	if v, ok := lookup(rhs); ok {
		return v, true
	}
	return lookup(lhs)
}

// resolveVar finds `,name=0x5` or `var name = 5` in script.
func resolveVar(script, name string) (int, bool) {
	re, err := regexp.Compile(`(?:^|[,;{(\s])(?:var\s+|let\s+|const\s+)?` + regexp.QuoteMeta(name) + `\s*=\s*(0x[0-9a-fA-F]+|[0-9a-fA-F]+)(?:[^\w$]|$)`)
	if err != nil {
		return 0, false
	}
	m := re.FindStringSubmatch(script)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(m[1], "0x"), 16, 64)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

// ExtractPassword folds the index pairs over the ciphertext left to right.
// Each pair selects ciphertext[running+offset : running+offset+length] from
// the original string, appends it to the password and removes its first
// occurrence from the cleaned ciphertext. Bounds are clamped, so pairs past
// the end contribute nothing.
func ExtractPassword(ciphertext string, pairs []types.IndexPair) (cleaned, password string) {
	n := len(ciphertext)
	cleaned = ciphertext
	var pw strings.Builder

	running := 0
	for _, p := range pairs {
		start := clamp(running+p.Offset, 0, n)
		end := clamp(start+p.Length, start, n)
		running += p.Length

		if start == end {
			continue
		}
		piece := ciphertext[start:end]
		pw.WriteString(piece)
		cleaned = strings.Replace(cleaned, piece, "", 1)
	}

	return cleaned, pw.String()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
