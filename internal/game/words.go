package game

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"sync"
)

// WordPicker selects the hidden word for a new round.
type WordPicker interface {
	Pick() string
}

// ListPicker picks uniformly from a fixed word list.
type ListPicker struct {
	mu    sync.Mutex
	rng   *rand.Rand
	words []string
}

func NewListPicker(words []string, seed int64) *ListPicker {
	if len(words) == 0 {
		words = DefaultWords()
	}
	return &ListPicker{
		rng:   rand.New(rand.NewSource(seed)),
		words: words,
	}
}

func (p *ListPicker) Pick() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.words[p.rng.Intn(len(p.words))]
}

// LoadWordsFile reads one word per line, skipping blanks.
func LoadWordsFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open words file %s: %w", path, err)
	}
	defer file.Close()

	var words []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			words = append(words, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read words file %s: %w", path, err)
	}
	return words, nil
}

// DefaultWords is the built-in list used when no file is configured.
func DefaultWords() []string {
	return []string{
		"apple", "banana", "bridge", "candle", "castle", "cloud",
		"dragon", "elephant", "forest", "guitar", "hammer", "island",
		"jacket", "kettle", "ladder", "mirror", "needle", "ocean",
		"pencil", "pirate", "planet", "rocket", "shadow", "spider",
		"temple", "tunnel", "violin", "whale", "window", "zebra",
	}
}
