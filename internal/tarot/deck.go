// Package tarot loads a deck of card images from a directory and draws
// random spreads from it.
package tarot

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// DefaultSpread is the number of cards in a classic three-card spread.
const DefaultSpread = 3

// CoverFile is the card back shown before a draw. Its name contains an
// underscore, so it is never part of the deck.
const CoverFile = "cover_back.png"

var (
	ErrNotEnoughCards = errors.New("not enough cards in deck")
	ErrUnknownCard    = errors.New("unknown card")
)

// Card is one image file of the deck.
type Card struct {
	File  string
	Title string
}

// DrawnCard is a card as it appears in a spread.
type DrawnCard struct {
	Card
	Position int
	Reversed bool
}

type Deck struct {
	dir   string
	cards []Card
	index map[string]struct{}

	mu  sync.Mutex
	rng *rand.Rand
}

// LoadDeck reads every regular file in dir whose name contains no
// underscore. Hidden files are skipped.
func LoadDeck(dir string) (*Deck, error) {
	now := uint64(time.Now().UnixNano())
	return LoadDeckWithSource(dir, rand.NewPCG(now, now>>1|1))
}

// LoadDeckWithSource is LoadDeck with a caller-supplied random source.
func LoadDeckWithSource(dir string, src rand.Source) (*Deck, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read deck directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.Contains(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		files = append(files, name)
	}
	return NewDeck(dir, files, src), nil
}

// NewDeck builds a deck from file names relative to dir.
func NewDeck(dir string, files []string, src rand.Source) *Deck {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	d := &Deck{
		dir:   dir,
		cards: make([]Card, 0, len(sorted)),
		index: make(map[string]struct{}, len(sorted)),
		rng:   rand.New(src),
	}
	for _, f := range sorted {
		d.cards = append(d.cards, Card{File: f, Title: cardTitle(f)})
		d.index[f] = struct{}{}
	}
	return d
}

// cardTitle turns "the-fool.jpg" into "The Fool".
func cardTitle(file string) string {
	base := strings.TrimSuffix(file, filepath.Ext(file))
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == ' ' || r == '.' })
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToTitle(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func (d *Deck) Len() int { return len(d.cards) }

// Path resolves a card file name to its path on disk. Only names that belong
// to the deck resolve.
func (d *Deck) Path(file string) (string, error) {
	if _, ok := d.index[file]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCard, file)
	}
	return filepath.Join(d.dir, file), nil
}

// Draw shuffles the full deck and returns its first n cards, each reversed
// with probability one half. Draws are independent of each other.
func (d *Deck) Draw(n int) ([]DrawnCard, error) {
	if n <= 0 {
		n = DefaultSpread
	}
	if n > len(d.cards) {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrNotEnoughCards, n, len(d.cards))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	perm := d.rng.Perm(len(d.cards))
	spread := make([]DrawnCard, n)
	for i := 0; i < n; i++ {
		spread[i] = DrawnCard{
			Card:     d.cards[perm[i]],
			Position: i + 1,
			Reversed: d.rng.IntN(2) == 1,
		}
	}
	return spread, nil
}
