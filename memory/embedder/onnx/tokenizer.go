package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Tokenizer performs BERT-style WordPiece tokenization from a tokenizer.json
// vocabulary.
type Tokenizer struct {
	vocab    map[string]int
	clsToken int64
	sepToken int64
	unkToken int64
}

// LoadTokenizer reads the vocabulary of a Hugging Face tokenizer.json.
func LoadTokenizer(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}

	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(tokenizerData.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return NewTokenizer(tokenizerData.Model.Vocab), nil
}

// NewTokenizer builds a tokenizer over vocab. Special tokens missing from the
// vocabulary fall back to the standard BERT ids.
func NewTokenizer(vocab map[string]int) *Tokenizer {
	id := func(token string, fallback int64) int64 {
		if v, ok := vocab[token]; ok {
			return int64(v)
		}
		return fallback
	}
	return &Tokenizer{
		vocab:    vocab,
		clsToken: id("[CLS]", 101),
		sepToken: id("[SEP]", 102),
		unkToken: id("[UNK]", 100),
	}
}

// Tokenize converts text to token ids without the [CLS] and [SEP] markers.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var tokens []int64
	for _, word := range splitWords(strings.ToLower(text)) {
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		tokens = append(tokens, t.wordPiece(word)...)
	}
	return tokens
}

// Encode returns input ids and attention mask of exactly maxLen entries,
// wrapped in [CLS] ... [SEP] and zero padded.
func (t *Tokenizer) Encode(text string, maxLen int) (ids, mask []int64) {
	ids = make([]int64, maxLen)
	mask = make([]int64, maxLen)
	if maxLen < 2 {
		return ids, mask
	}

	tokens := t.Tokenize(text)
	if len(tokens) > maxLen-2 {
		tokens = tokens[:maxLen-2]
	}

	ids[0], mask[0] = t.clsToken, 1
	for i, tok := range tokens {
		ids[i+1], mask[i+1] = tok, 1
	}
	end := len(tokens) + 1
	ids[end], mask[end] = t.sepToken, 1
	return ids, mask
}

// wordPiece splits word greedily into the longest known subwords. A word
// with an unmatchable piece becomes a single [UNK].
func (t *Tokenizer) wordPiece(word string) []int64 {
	var out []int64
	for start := 0; start < len(word); {
		end := len(word)
		matched := false
		for end > start {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				out = append(out, int64(id))
				start = end
				matched = true
				break
			}
			end--
		}
		if !matched {
			return []int64{t.unkToken}
		}
	}
	return out
}

// splitWords splits on whitespace and isolates punctuation, as BERT's basic
// tokenizer does.
func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}
