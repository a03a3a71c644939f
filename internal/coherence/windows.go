package coherence

import (
	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/corpus"
)

type pair [2]int

func pairOf(a, b int) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// WindowStats holds boolean sliding-window counts for a fixed set of words
// over a reference corpus.
type WindowStats struct {
	Windows int
	Window  int
	words   map[int]int
	pairs   map[pair]int
}

// NewWindowStats slides a window of the given size over every reference
// document's token sequence. A document shorter than the window counts as
// one window and empty documents contribute none. A window counts a word
// once no matter how often it appears inside it. Only words in the
// relevant set are tracked.
func NewWindowStats(reference *corpus.Corpus, window int, relevant []int) *WindowStats {
	ws := &WindowStats{
		Window: window,
		words:  make(map[int]int, len(relevant)),
		pairs:  make(map[pair]int),
	}
	track := make(map[int]struct{}, len(relevant))
	for _, w := range relevant {
		track[w] = struct{}{}
	}

	inWindow := make(map[int]int)
	present := make([]int, 0, len(relevant))
	for _, doc := range reference.Documents() {
		tokens := doc.Tokens
		if len(tokens) == 0 {
			continue
		}
		clear(inWindow)
		size := window
		if len(tokens) < size {
			size = len(tokens)
		}
		for _, tok := range tokens[:size] {
			if _, ok := track[tok]; ok {
				inWindow[tok]++
			}
		}
		for start := 0; ; start++ {
			present = present[:0]
			for w, n := range inWindow {
				if n > 0 {
					present = append(present, w)
				}
			}
			ws.count(present)

			end := start + size
			if end >= len(tokens) {
				break
			}
			if _, ok := track[tokens[start]]; ok {
				inWindow[tokens[start]]--
			}
			if _, ok := track[tokens[end]]; ok {
				inWindow[tokens[end]]++
			}
		}
	}
	return ws
}

func (ws *WindowStats) count(present []int) {
	ws.Windows++
	for i, a := range present {
		ws.words[a]++
		for _, b := range present[i+1:] {
			ws.pairs[pairOf(a, b)]++
		}
	}
}

// Occurrences returns the number of windows containing word.
func (ws *WindowStats) Occurrences(word int) int {
	return ws.words[word]
}

// CoOccurrences returns the number of windows containing both words.
func (ws *WindowStats) CoOccurrences(a, b int) int {
	if a == b {
		return ws.words[a]
	}
	return ws.pairs[pairOf(a, b)]
}
