package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alnah/lytt/internal/rag"
)

// AskCmd answers one question from the indexed content.
func AskCmd(env *Env) *cobra.Command {
	var (
		model     string
		maxChunks int
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question, answered from indexed transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			engine := app.ragEngine(model, maxChunks, rag.DefaultMinScore)
			answer, err := engine.Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintln(env.Stdout, answer.Text)
			printSources(env, answer.Sources)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "chat model override")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", rag.DefaultMaxChunks, "maximum context chunks")
	return cmd
}

// SearchCmd runs a semantic search without generating an answer.
func SearchCmd(env *Env) *cobra.Command {
	var (
		limit    int
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed transcripts semantically",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			builder := app.contextBuilder(limit, minScore)
			chunks, err := builder.Build(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(chunks) == 0 {
				fmt.Fprintln(env.Stdout, "No results.")
				return nil
			}

			for i, c := range chunks {
				fmt.Fprintf(env.Stdout, "%d. [%.2f] %s (%s)\n", i+1, c.Score, c.MediaTitle, c.Timestamp)
				if c.URL != "" {
					fmt.Fprintf(env.Stdout, "   %s\n", c.URL)
				}
				fmt.Fprintf(env.Stdout, "   %s\n", c.Content)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "maximum results")
	cmd.Flags().Float64Var(&minScore, "min-score", rag.DefaultMinScore, "minimum similarity score")
	return cmd
}

// ChatCmd starts an interactive multi-turn session.
func ChatCmd(env *Env) *cobra.Command {
	var (
		model     string
		maxChunks int
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the indexed content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			engine := app.ragEngine(model, maxChunks, rag.DefaultMinScore)
			fmt.Fprintln(env.Stdout, "Chat session started. /clear resets history, /quit exits.")

			scanner := bufio.NewScanner(env.Stdin)
			for {
				fmt.Fprint(env.Stdout, "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit", line == "/exit":
					return scanner.Err()
				case line == "/clear":
					engine.ClearHistory()
					fmt.Fprintln(env.Stdout, "History cleared.")
					continue
				}

				answer, err := engine.Chat(cmd.Context(), line)
				if err != nil {
					if cmd.Context().Err() != nil {
						return cmd.Context().Err()
					}
					fmt.Fprintf(env.Stderr, "error: %v\n", err)
					continue
				}
				fmt.Fprintln(env.Stdout, answer.Text)
				printSources(env, answer.Sources)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "chat model override")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", rag.DefaultMaxChunks, "maximum context chunks per turn")
	return cmd
}

// AgentCmd runs a task through the tool-calling loop.
func AgentCmd(env *Env) *cobra.Command {
	var (
		videoID       string
		maxIterations int
	)

	cmd := &cobra.Command{
		Use:   "agent <task>",
		Short: "Run a research task with transcript tools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			runner := app.agentRunner(env, maxIterations)
			result, err := runner.Run(cmd.Context(), strings.Join(args, " "), videoID)
			if err != nil {
				return err
			}

			fmt.Fprintln(env.Stdout, result.Content)
			if len(result.ToolCallsMade) > 0 {
				fmt.Fprintf(env.Stdout, "\n(%d tool calls over %d iterations: %s)\n",
					len(result.ToolCallsMade), result.Iterations, strings.Join(result.ToolCallsMade, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&videoID, "video", "", "focus the task on one media id")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "tool loop iteration cap (0 uses the default)")
	return cmd
}

func printSources(env *Env, sources []rag.ContextChunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(env.Stdout, "\nSources:")
	seen := make(map[string]bool)
	for _, s := range sources {
		key := s.MediaID + "|" + s.Timestamp
		if seen[key] {
			continue
		}
		seen[key] = true
		fmt.Fprintf(env.Stdout, "  - %s (%s)", s.MediaTitle, s.Timestamp)
		if s.URL != "" {
			fmt.Fprintf(env.Stdout, " %s", s.URL)
		}
		fmt.Fprintln(env.Stdout)
	}
}
