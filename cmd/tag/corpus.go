package main

import (
	"fmt"
	"strings"
)

// tagNames is the tag set. Index 0 is reserved for padding so that tag ids
// and token ids share the same pad id.
var tagNames = []string{"[PAD]", "O", "B-PER", "I-PER", "B-LOC", "I-LOC", "B-ORG", "I-ORG"}

// taggedSentence is one sentence with a tag per whitespace-separated word.
type taggedSentence struct {
	Words []string
	Tags  []string
}

// sampleSentences is the built-in labelled corpus.
var sampleSentences = []string{
	"Tom/B-PER lives/O in/O Madrid/B-LOC",
	"Mary/B-PER Smith/I-PER works/O at/O Acme/B-ORG Corp/I-ORG",
	"the/O cat/O sleeps/O in/O Paris/B-LOC",
	"John/B-PER visited/O New/B-LOC York/I-LOC",
	"Acme/B-ORG hired/O Tom/B-PER",
	"we/O met/O Mary/B-PER in/O Berlin/B-LOC",
	"the/O United/B-ORG Nations/I-ORG met/O in/O Geneva/B-LOC",
	"she/O reads/O a/O book/O",
}

// parseTagged splits "word/TAG word/TAG ..." into words and tags.
func parseTagged(line string) (taggedSentence, error) {
	var s taggedSentence
	for _, field := range strings.Fields(line) {
		i := strings.LastIndex(field, "/")
		if i <= 0 || i == len(field)-1 {
			return taggedSentence{}, fmt.Errorf("invalid token %q: expected word/TAG", field)
		}
		s.Words = append(s.Words, field[:i])
		s.Tags = append(s.Tags, field[i+1:])
	}
	if len(s.Words) == 0 {
		return taggedSentence{}, fmt.Errorf("empty tagged sentence")
	}
	return s, nil
}

func defaultSentences() ([]taggedSentence, error) {
	out := make([]taggedSentence, len(sampleSentences))
	for i, line := range sampleSentences {
		s, err := parseTagged(line)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// tagIDs maps tags to ids, truncating or padding with 0 to length.
func tagIDs(tags []string, length int) ([]int, error) {
	ids := make([]int, length)
	for i, tag := range tags {
		if i == length {
			break
		}
		id := tagIndex(tag)
		if id <= 0 {
			return nil, fmt.Errorf("unknown tag %q", tag)
		}
		ids[i] = id
	}
	return ids, nil
}

func tagIndex(tag string) int {
	for i, name := range tagNames {
		if name == tag {
			return i
		}
	}
	return -1
}
