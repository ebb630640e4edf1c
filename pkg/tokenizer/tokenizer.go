// Package tokenizer implements reversible text<->token-id mapping for
// the embedding and LLM provider layers. It supports three backends —
// BPE with explicit merge ranks (via tiktoken's encodings), a pre-tokenised
// JSON vocabulary, and a byte-fallback mode in the manner of SentencePiece —
// behind one interface so callers never need to know which is active.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docker/local-rag-engine/pkg/engineerr"
)

// Kind selects which backend a Tokenizer wraps.
type Kind string

const (
	KindBPE           Kind = "bpe"
	KindVocab         Kind = "vocab"
	KindSentencePiece Kind = "sentencepiece"
)

// MaxTokens is the length cap enforced before any padding.
const MaxTokens = 512

// Config selects and parameterises a backend. Exactly one of Encoding (for
// KindBPE) or VocabPath (for KindVocab/KindSentencePiece) is meaningful,
// depending on Kind.
type Config struct {
	Kind Kind

	// Encoding names a tiktoken encoding (e.g. "cl100k_base") for KindBPE.
	Encoding string

	// VocabPath points at a JSON object mapping token string to token id,
	// for KindVocab and KindSentencePiece.
	VocabPath string

	// UNKID is returned for any piece absent from the vocabulary. It is
	// never used in KindBPE mode, since byte-level BPE has no OOV pieces.
	UNKID uint32

	// BOSID and EOSID are added around the sequence when the caller passes
	// addSpecialTokens=true to Encode. Either may be left nil to skip it.
	BOSID *uint32
	EOSID *uint32
}

// Tokenizer provides a reversible encode/decode pair,
// regardless of backend.
type Tokenizer struct {
	cfg Config
	bpe *tiktoken.Tiktoken
	vcb *vocabulary
}

// New constructs a Tokenizer for cfg.Kind, loading whatever backing data
// that kind requires.
func New(cfg Config) (*Tokenizer, error) {
	t := &Tokenizer{cfg: cfg}

	switch cfg.Kind {
	case KindBPE:
		enc, err := tiktoken.GetEncoding(cfg.Encoding)
		if err != nil {
			return nil, &engineerr.InvalidInputError{Reason: fmt.Sprintf("tokenizer: unknown encoding %q: %v", cfg.Encoding, err)}
		}
		t.bpe = enc

	case KindVocab, KindSentencePiece:
		vcb, err := loadVocabulary(cfg.VocabPath)
		if err != nil {
			return nil, err
		}
		t.vcb = vcb

	default:
		return nil, &engineerr.InvalidInputError{Reason: fmt.Sprintf("tokenizer: unknown kind %q", cfg.Kind)}
	}

	return t, nil
}

// Encode maps text to token ids, truncated to MaxTokens. When
// addSpecialTokens is true and the config names BOS/EOS ids, they bracket
// the (possibly truncated) sequence rather than being cut off by the cap.
// Unrecognised pieces never panic: KindVocab/KindSentencePiece fall back to
// cfg.UNKID (or byte-fallback ids, see vocab.go), and KindBPE has no OOV
// concept by construction.
func (t *Tokenizer) Encode(text string, addSpecialTokens bool) []uint32 {
	var ids []uint32
	switch t.cfg.Kind {
	case KindBPE:
		ids = t.encodeBPE(text)
	default:
		ids = t.vcb.encode(text, t.cfg.UNKID, t.cfg.Kind == KindSentencePiece)
	}

	budget := MaxTokens
	if addSpecialTokens {
		if t.cfg.BOSID != nil {
			budget--
		}
		if t.cfg.EOSID != nil {
			budget--
		}
	}
	if budget < 0 {
		budget = 0
	}
	if len(ids) > budget {
		ids = ids[:budget]
	}

	if !addSpecialTokens {
		return ids
	}
	out := make([]uint32, 0, len(ids)+2)
	if t.cfg.BOSID != nil {
		out = append(out, *t.cfg.BOSID)
	}
	out = append(out, ids...)
	if t.cfg.EOSID != nil {
		out = append(out, *t.cfg.EOSID)
	}
	return out
}

func (t *Tokenizer) encodeBPE(text string) []uint32 {
	raw := t.bpe.Encode(text, nil, nil)
	ids := make([]uint32, len(raw))
	for i, v := range raw {
		ids[i] = uint32(v)
	}
	return ids
}

// Decode reverses Encode. When skipSpecial is true, any id matching
// cfg.BOSID/EOSID is omitted from the output rather than rendered as text.
func (t *Tokenizer) Decode(ids []uint32, skipSpecial bool) string {
	filtered := ids
	if skipSpecial {
		filtered = make([]uint32, 0, len(ids))
		for _, id := range ids {
			if t.cfg.BOSID != nil && id == *t.cfg.BOSID {
				continue
			}
			if t.cfg.EOSID != nil && id == *t.cfg.EOSID {
				continue
			}
			filtered = append(filtered, id)
		}
	}

	switch t.cfg.Kind {
	case KindBPE:
		raw := make([]int, len(filtered))
		for i, id := range filtered {
			raw[i] = int(id)
		}
		return t.bpe.Decode(raw)
	default:
		return t.vcb.decode(filtered)
	}
}
