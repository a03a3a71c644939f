package corpus

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"
)

// Vocabulary is a bijective token <-> id mapping. Ids are dense and assigned
// in first-seen order. Once frozen it is safe for concurrent readers.
type Vocabulary struct {
	mu     sync.RWMutex
	ids    map[string]int
	tokens []string
	frozen bool
}

func NewVocabulary() *Vocabulary {
	return &Vocabulary{
		ids: make(map[string]int),
	}
}

// Add returns the id of token, assigning the next free id if it is new.
func (v *Vocabulary) Add(token string) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if id, ok := v.ids[token]; ok {
		return id, nil
	}
	if v.frozen {
		return 0, fmt.Errorf("vocabulary is frozen, cannot add %q", token)
	}
	id := len(v.tokens)
	v.ids[token] = id
	v.tokens = append(v.tokens, token)
	return id, nil
}

func (v *Vocabulary) Freeze() {
	v.mu.Lock()
	v.frozen = true
	v.mu.Unlock()
}

func (v *Vocabulary) Frozen() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.frozen
}

func (v *Vocabulary) ID(token string) (int, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	id, ok := v.ids[token]
	return id, ok
}

func (v *Vocabulary) Token(id int) (string, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if id < 0 || id >= len(v.tokens) {
		return "", false
	}
	return v.tokens[id], true
}

func (v *Vocabulary) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.tokens)
}

// Tokens returns a copy of the tokens indexed by id.
func (v *Vocabulary) Tokens() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, len(v.tokens))
	copy(out, v.tokens)
	return out
}

// Fingerprint hashes the id order of the vocabulary. Two vocabularies with
// the same fingerprint assign the same id to every token.
func (v *Vocabulary) Fingerprint() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	h := sha256.New()
	var lenBuf [8]byte
	for _, tok := range v.tokens {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(tok)))
		h.Write(lenBuf[:])
		h.Write([]byte(tok))
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}
