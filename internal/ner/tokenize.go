package ner

import "unicode"

// Token is a chunk of text with its byte offsets in the source string.
type Token struct {
	Text  string
	Start int
	End   int
}

// isWordRune reports whether r may appear inside a word token. Dots, commas,
// dashes and slashes stay attached so dates ("12.03.2024"), amounts ("99.50")
// and invoice numbers ("INV-1234-567") survive as single tokens.
func isWordRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', ',', '-', '_', '/':
		return true
	}
	return false
}

// Tokenize splits text into word tokens and single-rune punctuation/symbol
// tokens, preserving byte offsets. Whitespace is discarded.
func Tokenize(text string) []Token {
	var tokens []Token
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i})
				start = -1
			}
		case isWordRune(r):
			if start < 0 {
				start = i
			}
		default:
			// Currency symbols and stray punctuation become their own tokens.
			if start >= 0 {
				tokens = append(tokens, Token{Text: text[start:i], Start: start, End: i})
				start = -1
			}
			end := i + len(string(r))
			tokens = append(tokens, Token{Text: text[i:end], Start: i, End: end})
		}
	}
	if start >= 0 {
		tokens = append(tokens, Token{Text: text[start:], Start: start, End: len(text)})
	}
	return tokens
}
