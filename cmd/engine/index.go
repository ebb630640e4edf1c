package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docker/local-rag-engine/pkg/indexing"
)

func newIndexCmd(flags *rootFlags) *cobra.Command {
	var spaceID string
	var excludes []string
	var respectGitignore bool

	cmd := &cobra.Command{
		Use:   "index <folder-or-file>",
		Short: "Parse/chunk/embed a file or every file under a folder, and upsert the result into the vector and lexical indexes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			comps, err := wire(ctx, flags.configPath)
			if err != nil {
				return err
			}
			defer comps.Close()

			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if !info.IsDir() {
				result, err := comps.pipeline.IndexFile(ctx, args[0], spaceID)
				if err != nil {
					return fmt.Errorf("indexing %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %s: %d chunks, %dms\n",
					args[0], result.ChunksCreated, result.DurationMS)
				return nil
			}

			sink := make(chan indexing.ProgressEvent, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for ev := range sink {
					fmt.Fprintf(cmd.OutOrStdout(), "[%5.1f%%] %s: %s\n", ev.Percentage, ev.CurrentAction, ev.CurrentFile)
				}
			}()

			opts := indexing.Options{Exclude: excludes, RespectGitignore: respectGitignore}
			result, err := comps.pipeline.IndexFolder(ctx, args[0], spaceID, opts, indexing.NewState(), sink)
			close(sink)
			<-done
			if err != nil {
				return fmt.Errorf("indexing %s: %w", args[0], err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks, %d failed, %dms\n",
				result.FilesProcessed, result.TotalChunks, len(result.FailedFiles), result.DurationMS)
			for _, f := range result.FailedFiles {
				fmt.Fprintf(cmd.OutOrStdout(), "  failed: %s: %s\n", f.Path, f.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spaceID, "space", "", "space id to tag every indexed chunk with")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob pattern to skip (repeatable)")
	cmd.Flags().BoolVar(&respectGitignore, "respect-gitignore", false, "skip paths ignored by .gitignore")

	return cmd
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview <folder>",
		Short: "Show what a folder index run would process, without parsing or embedding anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			preview, err := indexing.Preview(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total files: %d\n", preview.TotalFiles)
			for ext, n := range preview.FilesByType {
				fmt.Fprintf(out, "  %-10s %d\n", ext, n)
			}
			if len(preview.Sample) > 0 {
				fmt.Fprintln(out, "sample:")
				for _, f := range preview.Sample {
					fmt.Fprintf(out, "  %s\n", f)
				}
			}
			return nil
		},
	}
}
