// Package tokenizer implements word-level text vectorization.
//
// A Vectorizer standardizes text (lowercase, punctuation stripped except the
// square brackets used by markers like [start] and [end]), splits on
// whitespace and maps words to ids from a frequency-ranked vocabulary.
//
// Key features:
//   - Learn a vocabulary from a corpus with a size cap
//   - Encode to fixed-length id rows, padded with id 0
//   - Decode ids back to text
//   - Save/load the vocabulary as one token per line
package tokenizer

import (
	"regexp"
	"sort"
	"strings"
)

// Reserved vocabulary entries.
const (
	PadToken     = ""
	UnknownToken = "[UNK]"

	PadID     = 0
	UnknownID = 1
)

// stripPattern matches every rune that is not a letter, digit, mark,
// whitespace or square bracket.
var stripPattern = regexp.MustCompile(`[^\p{L}\p{N}\p{M}\s\[\]]`)

// Vectorizer maps text to token ids.
type Vectorizer struct {
	// tokens maps id to token; tokens[0] is padding, tokens[1] is [UNK]
	tokens []string

	// index maps token to id for O(1) lookup
	index map[string]int

	// maxTokens caps the vocabulary size including the reserved entries; 0 means no cap
	maxTokens int
}

// NewVectorizer creates a vectorizer holding only the reserved entries.
func NewVectorizer(maxTokens int) *Vectorizer {
	v := &Vectorizer{maxTokens: maxTokens}
	v.setVocabulary([]string{PadToken, UnknownToken})
	return v
}

// Standardize lowercases text and strips punctuation except '[' and ']'.
func Standardize(text string) string {
	return stripPattern.ReplaceAllString(strings.ToLower(text), "")
}

// Split standardizes text and splits it on whitespace.
func Split(text string) []string {
	return strings.Fields(Standardize(text))
}

// Adapt learns the vocabulary from a corpus, replacing any previous one.
// Words are ranked by descending frequency; ties are broken alphabetically.
func (v *Vectorizer) Adapt(corpus []string) {
	counts := make(map[string]int)
	for _, text := range corpus {
		for _, word := range Split(text) {
			counts[word]++
		}
	}
	delete(counts, PadToken)
	delete(counts, UnknownToken)

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	vocab := append([]string{PadToken, UnknownToken}, words...)
	if v.maxTokens > 0 && len(vocab) > v.maxTokens {
		vocab = vocab[:max(v.maxTokens, 2)]
	}
	v.setVocabulary(vocab)
}

func (v *Vectorizer) setVocabulary(tokens []string) {
	v.tokens = tokens
	v.index = make(map[string]int, len(tokens))
	for id, tok := range tokens {
		v.index[tok] = id
	}
}

// VocabSize returns the number of entries including the reserved ones.
func (v *Vectorizer) VocabSize() int {
	return len(v.tokens)
}

// Vocabulary returns a copy of the vocabulary ordered by id.
func (v *Vectorizer) Vocabulary() []string {
	return append([]string(nil), v.tokens...)
}

// ID returns the id of token, or UnknownID if it is not in the vocabulary.
func (v *Vectorizer) ID(token string) int {
	if id, ok := v.index[token]; ok {
		return id
	}
	return UnknownID
}

// Token returns the token for id, or UnknownToken for an unknown id.
func (v *Vectorizer) Token(id int) string {
	if id < 0 || id >= len(v.tokens) {
		return UnknownToken
	}
	return v.tokens[id]
}

// Encode converts text to ids. With length > 0 the result is truncated or
// padded with PadID to exactly length ids.
func (v *Vectorizer) Encode(text string, length int) []int {
	words := Split(text)
	if length > 0 && len(words) > length {
		words = words[:length]
	}
	n := len(words)
	if length > 0 {
		n = length
	}

	ids := make([]int, n)
	for i, w := range words {
		ids[i] = v.ID(w)
	}
	return ids
}

// EncodeBatch encodes every text to the same length.
func (v *Vectorizer) EncodeBatch(texts []string, length int) [][]int {
	batch := make([][]int, len(texts))
	for i, text := range texts {
		batch[i] = v.Encode(text, length)
	}
	return batch
}

// Decode joins the tokens for ids with single spaces, skipping padding.
func (v *Vectorizer) Decode(ids []int) string {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == PadID {
			continue
		}
		words = append(words, v.Token(id))
	}
	return strings.Join(words, " ")
}
