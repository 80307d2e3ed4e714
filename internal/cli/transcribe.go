package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alnah/lytt/internal/lang"
	"github.com/alnah/lytt/internal/media"
	"github.com/alnah/lytt/internal/orchestrator"
	"github.com/alnah/lytt/internal/transcript"
)

// TranscribeCmd indexes one input, a whole playlist or a directory.
func TranscribeCmd(env *Env) *cobra.Command {
	var (
		force      bool
		strategy   string
		language   string
		playlist   bool
		limit      int
		outputPath string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "transcribe <url|file|dir>",
		Short: "Transcribe and index a video URL, local media file or directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := lang.Validate(language); err != nil {
				return err
			}

			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			strat, err := parseStrategyFlag(cmd)
			if err != nil {
				return err
			}
			opts := orchestrator.ProcessOptions{
				Force:    force,
				Strategy: strat,
				Language: lang.BaseCode(language),
			}

			if playlist {
				return runPlaylist(cmd.Context(), env, app, args[0], opts, limit)
			}
			if info, statErr := os.Stat(args[0]); statErr == nil && info.IsDir() {
				return runDirectory(cmd.Context(), env, app, args[0], opts, limit)
			}

			result, err := app.orch.Process(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			printResult(env, result)

			if outputPath != "" {
				return exportAfterProcess(cmd.Context(), env, app, result.MediaID, format, outputPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-index even if already indexed")
	cmd.Flags().StringVar(&strategy, "strategy", "", "chunking strategy: temporal, semantic or hybrid")
	cmd.Flags().StringVar(&language, "language", "", "transcription language (ISO 639-1, default auto-detect)")
	cmd.Flags().BoolVar(&playlist, "playlist", false, "treat the input as a playlist and index every entry")
	cmd.Flags().IntVar(&limit, "limit", 0, "with a playlist or directory, index at most N entries")
	cmd.Flags().StringVar(&outputPath, "output", "", "also write the transcript to this file")
	cmd.Flags().StringVar(&format, "format", "json", "transcript output format: json, srt or vtt")
	return cmd
}

// runPlaylist indexes every playlist entry, continuing past individual
// failures.
func runPlaylist(ctx context.Context, env *Env, app *app, url string, opts orchestrator.ProcessOptions, limit int) error {
	if !app.youtube.CanHandle(url) {
		return fmt.Errorf("%s: %w", url, ErrNotYouTube)
	}

	refs, err := app.youtube.ListPlaylist(ctx, url)
	if err != nil {
		return err
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	fmt.Fprintf(env.Stdout, "Indexing %d playlist entries\n", len(refs))

	var failed int
	for i, ref := range refs {
		fmt.Fprintf(env.Stdout, "[%d/%d] %s\n", i+1, len(refs), ref.Title)
		result, err := app.orch.Process(ctx, ref.URL, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			fmt.Fprintf(env.Stderr, "  failed: %v\n", err)
			continue
		}
		printResult(env, result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d entries failed: %w", failed, len(refs), media.ErrSource)
	}
	return nil
}

// runDirectory indexes every supported media file directly under dir,
// continuing past individual failures.
func runDirectory(ctx context.Context, env *Env, app *app, dir string, opts orchestrator.ProcessOptions, limit int) error {
	refs, err := app.local.ListDir(ctx, dir)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		return fmt.Errorf("no supported media files in %s: %w", dir, media.ErrInvalidInput)
	}
	if limit > 0 && len(refs) > limit {
		refs = refs[:limit]
	}
	fmt.Fprintf(env.Stdout, "Indexing %d files from %s\n", len(refs), dir)

	var failed int
	for i, ref := range refs {
		fmt.Fprintf(env.Stdout, "[%d/%d] %s\n", i+1, len(refs), ref.Title)
		result, err := app.orch.Process(ctx, ref.URL, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			fmt.Fprintf(env.Stderr, "  failed: %v\n", err)
			continue
		}
		printResult(env, result)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed: %w", failed, len(refs), media.ErrSource)
	}
	return nil
}

// exportAfterProcess writes the freshly stored transcript to a file.
func exportAfterProcess(ctx context.Context, env *Env, app *app, mediaID, format, outputPath string) error {
	f, err := transcript.ParseFormat(format)
	if err != nil {
		return err
	}
	stored, err := app.store.GetTranscript(ctx, mediaID)
	if err != nil {
		return err
	}
	var tr transcript.Transcript
	if err := json.Unmarshal([]byte(stored.TranscriptJSON), &tr); err != nil {
		return fmt.Errorf("corrupt stored transcript for %s: %w", mediaID, err)
	}
	content, err := tr.Export(mediaID, f)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(outputPath, content); err != nil {
		return err
	}
	fmt.Fprintf(env.Stdout, "Transcript written to %s\n", outputPath)
	return nil
}

func printResult(env *Env, result orchestrator.Result) {
	if result.Skipped {
		fmt.Fprintf(env.Stdout, "%s is already indexed (use --force to re-index)\n", result.MediaID)
		return
	}
	fmt.Fprintf(env.Stdout, "Indexed %q (%s): %d chunks\n", result.Title, result.MediaID, result.ChunksIndexed)
}
