package retrieval

import (
	"context"

	"github.com/docker/local-rag-engine/pkg/store"
)

// ExpandedHit pairs a surviving result with the neighbouring chunks fetched
// from the same document. The survivor's own score is never touched.
type ExpandedHit struct {
	store.Hit
	Neighbours []store.Hit
}

// ExpandNeighbours fetches up to window chunks on either side of each of
// the top n survivors from the same document.
func ExpandNeighbours(ctx context.Context, s *store.Store, hits []store.Hit, n, window int) ([]ExpandedHit, error) {
	if n > len(hits) {
		n = len(hits)
	}
	out := make([]ExpandedHit, 0, n)
	for _, h := range hits[:n] {
		neighbours, err := s.Neighbours(ctx, h.Chunk.DocID, h.Chunk.ChunkIndex, window)
		if err != nil {
			return nil, err
		}
		out = append(out, ExpandedHit{Hit: h, Neighbours: neighbours})
	}
	return out, nil
}
