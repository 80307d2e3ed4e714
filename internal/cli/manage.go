package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alnah/lytt/internal/transcript"
)

// ListCmd shows everything in the index.
func ListCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed media",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, false)
			if err != nil {
				return err
			}
			defer closer()

			items, err := app.store.ListMedia(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(env.Stdout, "Nothing indexed yet.")
				return nil
			}

			for _, m := range items {
				fmt.Fprintf(env.Stdout, "%s  %s\n", m.MediaID, m.MediaTitle)
				fmt.Fprintf(env.Stdout, "    %d chunks, %s, indexed %s\n",
					m.ChunkCount, transcript.FormatTimestamp(m.TotalDurationSeconds),
					m.IndexedAt.Format("2006-01-02 15:04"))
			}
			fmt.Fprintf(env.Stdout, "\n%d media indexed\n", len(items))
			return nil
		},
	}
}

// RechunkCmd rebuilds chunks from stored transcripts, without
// re-transcribing.
func RechunkCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rechunk <media-id|all>",
		Short: "Re-chunk stored transcripts with a different strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			strategy, err := parseStrategyFlag(cmd)
			if err != nil {
				return err
			}

			if args[0] != "all" {
				result, err := app.orch.Rechunk(cmd.Context(), args[0], strategy)
				if err != nil {
					return err
				}
				fmt.Fprintf(env.Stdout, "Re-chunked %q (%s): %d chunks\n",
					result.Title, result.MediaID, result.ChunksIndexed)
				return nil
			}

			stored, err := app.orch.ListRechunkable(cmd.Context())
			if err != nil {
				return err
			}
			if len(stored) == 0 {
				fmt.Fprintln(env.Stdout, "No stored transcripts to re-chunk.")
				return nil
			}
			for i, t := range stored {
				fmt.Fprintf(env.Stdout, "[%d/%d] %s\n", i+1, len(stored), t.MediaTitle)
				result, err := app.orch.Rechunk(cmd.Context(), t.MediaID, strategy)
				if err != nil {
					if cmd.Context().Err() != nil {
						return cmd.Context().Err()
					}
					fmt.Fprintf(env.Stderr, "  failed: %v\n", err)
					continue
				}
				fmt.Fprintf(env.Stdout, "  %d chunks\n", result.ChunksIndexed)
			}
			return nil
		},
	}

	cmd.Flags().String("strategy", "", "chunking strategy: temporal, semantic or hybrid")
	return cmd
}

// ExportCmd writes a stored transcript in json, srt or vtt.
func ExportCmd(env *Env) *cobra.Command {
	var (
		format     string
		outputPath string
	)

	cmd := &cobra.Command{
		Use:   "export <media-id>",
		Short: "Export a stored transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := transcript.ParseFormat(format)
			if err != nil {
				return err
			}

			app, closer, err := buildApp(cmd, env, false)
			if err != nil {
				return err
			}
			defer closer()

			stored, err := app.store.GetTranscript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var tr transcript.Transcript
			if err := json.Unmarshal([]byte(stored.TranscriptJSON), &tr); err != nil {
				return fmt.Errorf("corrupt stored transcript for %s: %w", args[0], err)
			}

			content, err := tr.Export(args[0], f)
			if err != nil {
				return err
			}
			if outputPath == "" {
				fmt.Fprint(env.Stdout, content)
				return nil
			}
			if err := writeFileAtomic(outputPath, content); err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "Transcript written to %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "output format: json, srt or vtt")
	cmd.Flags().StringVar(&outputPath, "output", "", "write to this file instead of stdout")
	return cmd
}
