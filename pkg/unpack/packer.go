// Package unpack reverses the JavaScript obfuscation video hosts wrap their
// player setup in, so the playlist URL inside can be matched.
package unpack

import (
	"regexp"
	"strconv"
	"strings"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	signatureRe = regexp.MustCompile(`eval\(function\(p,a,c,k,e,[dr]\)`)
	paramsRe    = regexp.MustCompile(`(?s)\}\('(.*)',\s*(\d+),\s*(\d+),\s*'([^']*)'\.split\('\|'\)`)
	blockRe     = regexp.MustCompile(`(?s)eval\(function\(p,a,c,k,e,[dr]\).+?\.split\('\|'\)[^)]*\)\)`)
)

// IsPacked reports whether script contains a P.A.C.K.E.R. block.
func IsPacked(script string) bool {
	return signatureRe.MatchString(script)
}

// Unpack decodes the first P.A.C.K.E.R. block in script. Input without a
// packer signature, or with parameters it cannot decode, is returned unchanged.
func Unpack(script string) string {
	block := blockRe.FindString(script)
	if block == "" {
		return script
	}
	m := paramsRe.FindStringSubmatch(block)
	if m == nil {
		return script
	}

	radix, err := strconv.Atoi(m[2])
	if err != nil || radix < 2 || radix > len(alphabet) {
		return script
	}
	count, err := strconv.Atoi(m[3])
	if err != nil {
		return script
	}

	payload := unescape(m[1])
	dict := strings.Split(m[4], "|")
	// Tokens past the dictionary are never replaced.
	count = min(count, len(dict))

	for i := count - 1; i >= 0; i-- {
		if dict[i] == "" {
			continue
		}
		word := regexp.MustCompile(`\b` + regexp.QuoteMeta(encode(i, radix)) + `\b`)
		replacement := dict[i]
		payload = word.ReplaceAllLiteralString(payload, replacement)
	}
	return payload
}

// UnpackAll decodes every packed block in a page, in page order.
func UnpackAll(html string) []string {
	blocks := blockRe.FindAllString(html, -1)
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if u := Unpack(b); u != b {
			out = append(out, u)
		}
	}
	return out
}

// encode writes n in the given radix using the packer's alphabet, the way
// the packed script's own e() helper does.
func encode(n, radix int) string {
	if n < radix {
		return string(alphabet[n])
	}
	return encode(n/radix, radix) + string(alphabet[n%radix])
}

func unescape(s string) string {
	return strings.NewReplacer(`\\`, `\`, `\'`, `'`).Replace(s)
}
