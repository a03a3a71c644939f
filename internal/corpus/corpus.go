// Package corpus turns tokenized records into a frozen vocabulary and a
// bag-of-words corpus. Documents keep their ordered token ids alongside the
// sparse counts so co-occurrence statistics can be computed later.
package corpus

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
)

// Record is one input document as delivered by the upstream cleaning stage.
type Record struct {
	ID     string   `json:"id"`
	Tokens []string `json:"tokens,omitempty"`
	Text   string   `json:"text,omitempty"`
	Group  string   `json:"group,omitempty"`
}

// Document is a stable id plus its bag-of-words. WordIDs is sorted and
// Counts is parallel to it.
type Document struct {
	ID      string
	WordIDs []int
	Counts  []int
	Tokens  []int
	Group   string
}

// Len returns the total number of tokens in the document.
func (d *Document) Len() int {
	n := 0
	for _, c := range d.Counts {
		n += c
	}
	return n
}

// Count returns how often word id occurs in the document.
func (d *Document) Count(id int) int {
	i := sort.SearchInts(d.WordIDs, id)
	if i < len(d.WordIDs) && d.WordIDs[i] == id {
		return d.Counts[i]
	}
	return 0
}

// NewDocument builds a document from ordered token ids.
func NewDocument(id string, tokens []int) *Document {
	counts := make(map[int]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	ids := make([]int, 0, len(counts))
	for w := range counts {
		ids = append(ids, w)
	}
	sort.Ints(ids)
	cs := make([]int, len(ids))
	for i, w := range ids {
		cs[i] = counts[w]
	}
	return &Document{
		ID:      id,
		WordIDs: ids,
		Counts:  cs,
		Tokens:  tokens,
	}
}

// Corpus is an ordered collection of documents with unique ids.
type Corpus struct {
	docs  []*Document
	index map[string]int
}

func New(docs []*Document) (*Corpus, error) {
	c := &Corpus{
		docs:  make([]*Document, 0, len(docs)),
		index: make(map[string]int, len(docs)),
	}
	for _, d := range docs {
		if d.ID == "" {
			return nil, apperrors.New(apperrors.ErrInvalidCorpus, "document with empty id")
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, apperrors.Newf(apperrors.ErrInvalidCorpus, "duplicate document id %q", d.ID)
		}
		c.index[d.ID] = len(c.docs)
		c.docs = append(c.docs, d)
	}
	return c, nil
}

func (c *Corpus) Len() int {
	return len(c.docs)
}

func (c *Corpus) Documents() []*Document {
	return c.docs
}

func (c *Corpus) Get(id string) (*Document, bool) {
	i, ok := c.index[id]
	if !ok {
		return nil, false
	}
	return c.docs[i], true
}

// IDs returns the document ids in corpus order.
func (c *Corpus) IDs() []string {
	ids := make([]string, len(c.docs))
	for i, d := range c.docs {
		ids[i] = d.ID
	}
	return ids
}

// Subset returns a corpus holding the given ids in the given order. The
// documents are shared, not copied.
func (c *Corpus) Subset(ids []string) (*Corpus, error) {
	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		d, ok := c.Get(id)
		if !ok {
			return nil, apperrors.Newf(apperrors.ErrInvalidCorpus, "document %q is not in the corpus", id)
		}
		docs = append(docs, d)
	}
	return New(docs)
}

// Options are the optional document-frequency filters applied while the
// vocabulary is built.
type Options struct {
	MinDocFreq int
	MaxDocFreq float64
}

// BuildVocabulary assigns ids in first-seen order, applies the filters and
// returns the frozen vocabulary and the bag-of-words corpus.
func BuildVocabulary(records []Record, opts Options) (*Vocabulary, *Corpus, error) {
	if len(records) == 0 {
		return nil, nil, apperrors.New(apperrors.ErrInvalidCorpus, "corpus has no documents")
	}

	keep := docFrequencyFilter(records, opts)

	vocab := NewVocabulary()
	docs := make([]*Document, 0, len(records))
	nonEmpty := 0
	for _, rec := range records {
		ids := make([]int, 0, len(rec.Tokens))
		for _, tok := range rec.Tokens {
			if tok == "" || !keep(tok) {
				continue
			}
			id, err := vocab.Add(tok)
			if err != nil {
				return nil, nil, fmt.Errorf("building vocabulary: %w", err)
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			nonEmpty++
		}
		doc := NewDocument(rec.ID, ids)
		doc.Group = rec.Group
		docs = append(docs, doc)
	}
	if nonEmpty == 0 {
		return nil, nil, apperrors.New(apperrors.ErrInvalidCorpus, "every document is empty after tokenization")
	}
	vocab.Freeze()

	c, err := New(docs)
	if err != nil {
		return nil, nil, err
	}
	return vocab, c, nil
}

func docFrequencyFilter(records []Record, opts Options) func(string) bool {
	if opts.MinDocFreq <= 0 && opts.MaxDocFreq <= 0 {
		return func(string) bool { return true }
	}
	df := make(map[string]int)
	for _, rec := range records {
		seen := make(map[string]struct{}, len(rec.Tokens))
		for _, tok := range rec.Tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	n := float64(len(records))
	return func(tok string) bool {
		f := df[tok]
		if opts.MinDocFreq > 0 && f < opts.MinDocFreq {
			return false
		}
		if opts.MaxDocFreq > 0 && float64(f)/n > opts.MaxDocFreq {
			return false
		}
		return true
	}
}
