package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// pair is one source sentence and its translation wrapped in start and end markers.
type pair struct {
	Source string
	Target string
}

// samplePairs is used when no pair file is given.
var samplePairs = [][2]string{
	{"Go.", "Ve."},
	{"Hi.", "Hola."},
	{"Run!", "¡Corre!"},
	{"I am hungry.", "Tengo hambre."},
	{"I am tired.", "Estoy cansado."},
	{"We are here.", "Estamos aquí."},
	{"Tom is happy.", "Tom está feliz."},
	{"Where is the cat?", "¿Dónde está el gato?"},
	{"The cat is black.", "El gato es negro."},
	{"I like the book.", "Me gusta el libro."},
	{"She reads a book.", "Ella lee un libro."},
	{"We eat bread.", "Comemos pan."},
}

// readPairs parses tab-separated "source<TAB>target" lines. Empty lines are
// skipped and extra columns are ignored.
func readPairs(r io.Reader, start, end string) ([]pair, error) {
	var pairs []pair
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid line %d: expected source and target separated by a tab", lineNum)
		}
		pairs = append(pairs, newPair(parts[0], parts[1], start, end))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading pairs: %w", err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("no sentence pairs found")
	}
	return pairs, nil
}

func defaultPairs(start, end string) []pair {
	pairs := make([]pair, len(samplePairs))
	for i, p := range samplePairs {
		pairs[i] = newPair(p[0], p[1], start, end)
	}
	return pairs
}

func newPair(source, target, start, end string) pair {
	return pair{
		Source: strings.TrimSpace(source),
		Target: start + " " + strings.TrimSpace(target) + " " + end,
	}
}
