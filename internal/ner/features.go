package ner

import (
	"strings"
	"unicode"
)

// shape collapses a token into a coarse character-class pattern, e.g.
// "INV-1234" -> "X-d", "Acme" -> "Xx", "99.50" -> "d.d".
func shape(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		var c rune
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLower(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		default:
			c = r
		}
		if c != last {
			b.WriteRune(c)
			last = c
		}
	}
	return b.String()
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isAllUpper(s string) bool {
	seen := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			seen = true
		}
	}
	return seen
}

// featurize extracts the feature strings for the token at position i.
// The window is one token on each side; begin/end of text get marker features.
func featurize(tokens []Token, i int) []string {
	t := tokens[i]
	lower := strings.ToLower(t.Text)

	feats := make([]string, 0, 16)
	feats = append(feats,
		"w="+lower,
		"shape="+shape(t.Text),
	)
	if n := len(lower); n >= 3 {
		feats = append(feats, "pre="+lower[:3], "suf="+lower[n-3:])
	}
	if hasDigit(t.Text) {
		feats = append(feats, "hasdigit")
	}
	if strings.ContainsRune(t.Text, '.') {
		feats = append(feats, "hasdot")
	}
	if strings.ContainsRune(t.Text, '-') {
		feats = append(feats, "hasdash")
	}
	if isAllUpper(t.Text) {
		feats = append(feats, "upper")
	}

	if i > 0 {
		p := tokens[i-1]
		feats = append(feats, "-1w="+strings.ToLower(p.Text), "-1shape="+shape(p.Text))
	} else {
		feats = append(feats, "-1w=<s>")
	}
	if i < len(tokens)-1 {
		n := tokens[i+1]
		feats = append(feats, "+1w="+strings.ToLower(n.Text), "+1shape="+shape(n.Text))
	} else {
		feats = append(feats, "+1w=</s>")
	}
	return feats
}
