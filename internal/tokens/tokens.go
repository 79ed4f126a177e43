// Package tokens estimates prompt token usage for context budgeting.
package tokens

import "unicode"

// Count estimates how many tokens a tokenizer would produce for text. Word
// runs (letters, digits, apostrophes) and punctuation runs each count as one
// token. The estimate is rough; budgets built on it should leave headroom.
func Count(text string) int {
	if text == "" {
		return 0
	}
	tokens := 0
	inWord, inPunct := false, false
	for _, r := range text {
		isWord := unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\''
		isPunct := unicode.IsPunct(r) && r != '\''
		if isWord && !inWord {
			tokens++
		}
		if isPunct && !inPunct {
			tokens++
		}
		inWord, inPunct = isWord, isPunct
	}
	return tokens
}
