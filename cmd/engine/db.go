package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docker/local-rag-engine/pkg/store"
)

// newDBCmd groups the database maintenance subcommands: stats, reset,
// clear-documents and delete-space.
func newDBCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the vector and lexical stores",
	}
	cmd.AddCommand(
		newDBStatsCmd(flags),
		newDBResetCmd(flags),
		newDBClearCmd(flags),
		newDBDeleteSpaceCmd(flags),
	)
	return cmd
}

func newDBStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print space, document and vector counts plus on-disk size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			spaces, err := comps.vecStore.CountSpaces(ctx)
			if err != nil {
				return err
			}
			docs, err := comps.vecStore.CountDocuments(ctx)
			if err != nil {
				return err
			}
			vectors, err := comps.vecStore.Count(ctx)
			if err != nil {
				return err
			}

			var sizeMB float64
			dbPath := filepath.Join(comps.cfg.DataDir, "vector_store", "chunks.db")
			if info, err := os.Stat(dbPath); err == nil {
				sizeMB = float64(info.Size()) / (1024 * 1024)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total_spaces:      %d\n", spaces)
			fmt.Fprintf(out, "total_documents:   %d\n", docs)
			fmt.Fprintf(out, "total_vectors:     %d\n", vectors)
			fmt.Fprintf(out, "total_agents:      %d\n", len(comps.agents.List()))
			fmt.Fprintf(out, "database_size_mb:  %.2f\n", sizeMB)
			return nil
		},
	}
}

func newDBResetCmd(flags *rootFlags) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every indexed chunk from the vector store and lexical index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			if err := comps.vecStore.Clear(ctx); err != nil {
				return fmt.Errorf("clearing vector store: %w", err)
			}
			if err := comps.textIndex.Clear(); err != nil {
				return fmt.Errorf("clearing text index: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func newDBClearCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-documents",
		Short: "Remove all document chunks while keeping agents and memories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			count, err := comps.vecStore.Count(ctx)
			if err != nil {
				return err
			}
			if err := comps.vecStore.Clear(ctx); err != nil {
				return fmt.Errorf("clearing vector store: %w", err)
			}
			if err := comps.textIndex.Clear(); err != nil {
				return fmt.Errorf("clearing text index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d chunks\n", count)
			return nil
		},
	}
}

func newDBDeleteSpaceCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-space <space-id>",
		Short: "Cascade-delete every chunk belonging to a space from both indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			spaceID := args[0]

			// The lexical index deletes by doc id, so collect the space's
			// documents before removing its rows from the vector store.
			hits, err := comps.vecStore.List(ctx, store.Predicate{SpaceID: spaceID}, 0)
			if err != nil {
				return err
			}
			docIDs := make(map[string]bool)
			for _, hit := range hits {
				docIDs[hit.Chunk.DocID] = true
			}

			if err := comps.vecStore.DeleteBySpace(ctx, spaceID); err != nil {
				return fmt.Errorf("deleting space from vector store: %w", err)
			}
			for docID := range docIDs {
				if err := comps.textIndex.DeleteByDoc(docID); err != nil {
					return fmt.Errorf("deleting %s from text index: %w", docID, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d documents (%d chunks) from space %s\n",
				len(docIDs), len(hits), spaceID)
			return nil
		},
	}
}
