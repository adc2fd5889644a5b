//go:build ignore

// Package main generates a synthetic analysis history for benchmarking
// lexical index builds and hybrid search.
// Usage: go run scripts/generate-test-corpus.go -entries 5000 -output testdata/bench/history.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	numEntries = flag.Int("entries", 1000, "Number of history entries to generate")
	output     = flag.String("output", "testdata/bench/history.json", "Output file")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	textWords  = flag.Int("words", 300, "Words of extracted text per entry")
)

type entry struct {
	ID            string    `json:"id"`
	Path          string    `json:"path"`
	Name          string    `json:"name"`
	Subject       string    `json:"subject"`
	Summary       string    `json:"summary"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	Keywords      []string  `json:"keywords"`
	ExtractedText string    `json:"extractedText"`
	AnalyzedAt    time.Time `json:"analyzedAt"`
}

var categories = map[string][]string{
	"finance":  {"invoice", "receipt", "tax", "bank", "statement", "payment", "refund", "budget"},
	"travel":   {"flight", "hotel", "booking", "itinerary", "passport", "visa", "train", "luggage"},
	"health":   {"prescription", "appointment", "insurance", "lab", "vaccine", "dental", "clinic"},
	"work":     {"contract", "proposal", "meeting", "roadmap", "report", "review", "deadline"},
	"personal": {"recipe", "letter", "photo", "wedding", "birthday", "garden", "holiday"},
}

var filler = strings.Fields(`the and for with from this that report total date amount
account number reference please note attached summary details period customer service
address phone email page section item description quantity price`)

var extensions = []string{".pdf", ".docx", ".txt", ".jpg", ".md"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	names := make([]string, 0, len(categories))
	for c := range categories {
		names = append(names, c)
	}
	sort.Strings(names)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	entries := make([]entry, 0, *numEntries)
	for i := 0; i < *numEntries; i++ {
		cat := names[rng.Intn(len(names))]
		vocab := categories[cat]
		topic := vocab[rng.Intn(len(vocab))]
		tags := pick(rng, vocab, 1+rng.Intn(3))
		name := fmt.Sprintf("%s-%05d%s", topic, i, extensions[rng.Intn(len(extensions))])

		entries = append(entries, entry{
			ID:            fmt.Sprintf("%d", i+1),
			Path:          fmt.Sprintf("/corpus/%s/%s", cat, name),
			Name:          name,
			Subject:       fmt.Sprintf("%s %s", strings.ToUpper(topic[:1])+topic[1:], strings.Join(tags, " ")),
			Summary:       sentence(rng, append(vocab, filler...), 20),
			Category:      cat,
			Tags:          tags,
			Keywords:      pick(rng, vocab, 3),
			ExtractedText: sentence(rng, append(vocab, filler...), *textWords),
			AnalyzedAt:    base.Add(time.Duration(i) * time.Minute),
		})
	}

	if err := os.MkdirAll(filepath.Dir(*output), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding history: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*output, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", *output, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %d entries in %s (%d bytes)\n", len(entries), *output, len(data))
}

func pick(rng *rand.Rand, words []string, n int) []string {
	perm := rng.Perm(len(words))
	n = min(n, len(words))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = words[perm[i]]
	}
	return out
}

func sentence(rng *rand.Rand, words []string, n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(words[rng.Intn(len(words))])
	}
	return sb.String()
}
