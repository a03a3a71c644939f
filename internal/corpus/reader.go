package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/topic-crossval/internal/textprep"
	apperrors "github.com/Adithya-Monish-Kumar-K/topic-crossval/pkg/errors"
)

const maxLineBytes = 16 << 20

// Reader decodes JSON Lines records. Records that carry raw text instead of
// tokens are run through the text tokenizer.
type Reader struct {
	tokenizer *textprep.Tokenizer
}

func NewReader(tokenizer *textprep.Tokenizer) *Reader {
	if tokenizer == nil {
		tokenizer = textprep.New(textprep.DefaultOptions())
	}
	return &Reader{tokenizer: tokenizer}
}

// ReadFile reads every record from the JSONL file at path.
func (r *Reader) ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus %s: %w", path, err)
	}
	defer f.Close()
	return r.Read(f)
}

func (r *Reader) Read(src io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidCorpus, "line %d: %v", line, err)
		}
		if rec.ID == "" {
			return nil, apperrors.Newf(apperrors.ErrInvalidCorpus, "line %d: missing id", line)
		}
		if len(rec.Tokens) == 0 && rec.Text != "" {
			rec.Tokens = r.tokenizer.Tokenize(rec.Text)
		}
		rec.Text = ""
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return records, nil
}
