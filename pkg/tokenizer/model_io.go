package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidVocabulary is returned when a vocabulary file does not start
// with the reserved padding and unknown entries.
var ErrInvalidVocabulary = errors.New("invalid vocabulary file")

// Save writes the vocabulary to a file.
//
// File format: one token per line, line number = id. Line 0 is empty
// (padding) and line 1 is [UNK].
func (v *Vectorizer) Save(filepath string) error {
	file, err := os.Create(filepath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for id, tok := range v.tokens {
		if _, err := writer.WriteString(tok + "\n"); err != nil {
			return fmt.Errorf("failed to write token %d: %w", id, err)
		}
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush writer: %w", err)
	}
	return nil
}

// LoadVectorizer reads a vocabulary written by Save. The loaded vectorizer
// has no size cap.
func LoadVectorizer(filepath string) (*Vectorizer, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var tokens []string
	seen := make(map[string]int)
	scanner := bufio.NewScanner(file)
	for lineNum := 0; scanner.Scan(); lineNum++ {
		tok := strings.TrimRight(scanner.Text(), "\r")
		if prev, dup := seen[tok]; dup {
			return nil, fmt.Errorf("%w: token %q on line %d duplicates line %d", ErrInvalidVocabulary, tok, lineNum, prev)
		}
		seen[tok] = lineNum
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	if len(tokens) < 2 || tokens[PadID] != PadToken || tokens[UnknownID] != UnknownToken {
		return nil, fmt.Errorf("%w: first lines must be the padding and %s entries", ErrInvalidVocabulary, UnknownToken)
	}

	v := &Vectorizer{}
	v.setVocabulary(tokens)
	return v, nil
}
