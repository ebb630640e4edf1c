package tokenizer

import (
	"encoding/json"
	"os"
	"strings"
	"unicode"

	"github.com/docker/local-rag-engine/pkg/engineerr"
)

// byteFallbackBase offsets raw byte values into their own id range, used by
// KindSentencePiece when a piece has no vocabulary entry. Vocabularies built
// for this tokenizer are expected to stay well below this id.
const byteFallbackBase = 1_000_000

type vocabulary struct {
	tokenToID map[string]uint32
	idToToken map[uint32]string
}

func loadVocabulary(path string) (*vocabulary, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &engineerr.NotFoundError{Kind: "vocabulary", ID: path}
	}

	var tokenToID map[string]uint32
	if err := json.Unmarshal(raw, &tokenToID); err != nil {
		return nil, &engineerr.InvalidInputError{Reason: "tokenizer: malformed vocabulary JSON: " + err.Error()}
	}

	idToToken := make(map[uint32]string, len(tokenToID))
	for tok, id := range tokenToID {
		idToToken[id] = tok
	}
	return &vocabulary{tokenToID: tokenToID, idToToken: idToToken}, nil
}

// pretokenize splits text into whitespace-delimited words and isolates
// punctuation/symbol runes as their own pieces, a coarse approximation of
// the word-then-subword split real BPE/SentencePiece pretokenizers perform.
func pretokenize(text string) []string {
	var pieces []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(r)
		default:
			flush()
			pieces = append(pieces, string(r))
		}
	}
	flush()
	return pieces
}

// encode maps each pretokenized piece to its vocabulary id. Unknown pieces
// map to unk, unless byteFallback is set, in which case they are spelled out
// as individual byte ids (SentencePiece's strategy for out-of-vocabulary
// text) so decode can still reconstruct the original bytes.
func (v *vocabulary) encode(text string, unk uint32, byteFallback bool) []uint32 {
	pieces := pretokenize(text)
	ids := make([]uint32, 0, len(pieces))
	for _, p := range pieces {
		if id, ok := v.tokenToID[p]; ok {
			ids = append(ids, id)
			continue
		}
		if !byteFallback {
			ids = append(ids, unk)
			continue
		}
		for _, b := range []byte(p) {
			ids = append(ids, byteFallbackBase+uint32(b))
		}
	}
	return ids
}

// decode reverses encode. Consecutive byte-fallback ids are coalesced back
// into their original UTF-8 bytes before being joined with the rest of the
// sequence; recognised tokens are joined with single spaces, since the
// plain JSON vocabulary format carries no word-boundary marker to do better.
func (v *vocabulary) decode(ids []uint32) string {
	var out []string
	var byteBuf []byte

	flushBytes := func() {
		if len(byteBuf) > 0 {
			out = append(out, string(byteBuf))
			byteBuf = nil
		}
	}

	for _, id := range ids {
		if id >= byteFallbackBase {
			byteBuf = append(byteBuf, byte(id-byteFallbackBase))
			continue
		}
		flushBytes()
		if tok, ok := v.idToToken[id]; ok {
			out = append(out, tok)
		}
	}
	flushBytes()

	return strings.Join(out, " ")
}
