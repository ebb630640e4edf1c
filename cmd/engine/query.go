package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docker/local-rag-engine/pkg/store"
)

func newQueryCmd(flags *rootFlags) *cobra.Command {
	var spaceID string
	var topK int

	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Run the hybrid retrieval pipeline (route, dense+lexical search, fusion, boost, neighbour expansion) for a question",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			pred := store.Predicate{SpaceID: spaceID}
			result, err := comps.engine.Search(ctx, nil, args[0], pred)
			if err != nil {
				return fmt.Errorf("searching: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "intent: %s  rewritten: %q\n", result.Route.Intent, result.Route.RewrittenQuery)
			n := topK
			if n <= 0 || n > len(result.Hits) {
				n = len(result.Hits)
			}
			for i, hit := range result.Hits[:n] {
				fmt.Fprintf(out, "\n#%d  score=%.4f  %s (chunk %d)\n", i+1, hit.Score, hit.Chunk.Source, hit.Chunk.ChunkIndex)
				fmt.Fprintln(out, truncate(hit.Chunk.Text, 400))
				if len(hit.Neighbours) > 0 {
					fmt.Fprintf(out, "  (%d neighbouring chunks attached)\n", len(hit.Neighbours))
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spaceID, "space", "", "restrict the search to one space")
	cmd.Flags().IntVar(&topK, "top-k", 0, "cap the number of printed results (0 = engine default)")

	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
