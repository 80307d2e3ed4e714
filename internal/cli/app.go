package cli

import (
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/alnah/lytt/internal/agent"
	"github.com/alnah/lytt/internal/audio"
	"github.com/alnah/lytt/internal/chunk"
	"github.com/alnah/lytt/internal/config"
	"github.com/alnah/lytt/internal/embed"
	"github.com/alnah/lytt/internal/media"
	"github.com/alnah/lytt/internal/orchestrator"
	"github.com/alnah/lytt/internal/prompts"
	"github.com/alnah/lytt/internal/rag"
	"github.com/alnah/lytt/internal/store"
	"github.com/alnah/lytt/internal/transcribe"
)

// app is the fully wired pipeline behind one command invocation.
type app struct {
	cfg      config.Settings
	store    *store.Store
	client   *openai.Client
	library  *prompts.Library
	embedder *embed.OpenAI
	youtube  *media.YouTube
	local    *media.Local
	orch     *orchestrator.Orchestrator
}

// buildApp wires the pipeline from the loaded settings. The returned
// closer releases the store.
func buildApp(cmd *cobra.Command, env *Env, needAPIKey bool) (*app, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := env.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if needAPIKey {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, nil, err
		}
	}

	st, err := env.OpenStore(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	closer := func() { _ = st.Close() }

	client := openai.NewClient(cfg.APIKey)
	library := prompts.NewLibrary(cfg.PromptsDir)
	proc := audio.NewProcessor()
	embedder := embed.NewOpenAI(client, embed.WithModel(cfg.EmbeddingModel, embed.DefaultDimensions))

	youtube := media.NewYouTube(nil, proc)
	local := media.NewLocal(proc)
	detector := media.NewDetector(youtube, local)

	engineOpts := []transcribe.EngineOption{
		transcribe.WithSplitter(proc),
		transcribe.WithSegmentSeconds(cfg.SegmentSeconds),
		transcribe.WithMaxParallel(cfg.MaxParallel),
		transcribe.WithLogger(env.Log),
	}
	if cfg.Fusion && cfg.TextModel != "" {
		engineOpts = append(engineOpts,
			transcribe.WithTextTranscriber(transcribe.NewTextTranscriber(client, cfg.TextModel)),
			transcribe.WithFusion(client, cfg.ChatModel),
		)
	}
	engine := transcribe.NewEngine(transcribe.NewWordTranscriber(client, cfg.WhisperModel), library, engineOpts...)

	chunkCfg := chunk.Config{
		TargetSeconds: cfg.ChunkTargetSeconds,
		MinSeconds:    cfg.ChunkMinSeconds,
		MaxSeconds:    cfg.ChunkMaxSeconds,
	}
	chunkerFor := func(strategy chunk.Strategy) chunk.Chunker {
		switch strategy {
		case chunk.StrategySemantic, chunk.StrategyHybrid:
			return chunk.NewSemantic(client, cfg.ChatModel, library, chunkCfg,
				chunk.WithSemanticLogger(env.Log))
		default:
			return chunk.NewTemporal(chunkCfg)
		}
	}

	defaultStrategy, err := chunk.ParseStrategy(cfg.ChunkStrategy)
	if err != nil {
		closer()
		return nil, nil, err
	}

	orch := orchestrator.New(detector, engine, embedder, st, chunkerFor,
		orchestrator.Config{
			AudioDir:           cfg.AudioDir,
			Language:           cfg.Language,
			MaxDurationSeconds: cfg.MaxDurationSeconds,
			KeepAudio:          cfg.KeepAudio,
			DefaultStrategy:    defaultStrategy,
		},
		orchestrator.WithLogger(env.Log),
	)

	return &app{
		cfg:      cfg,
		store:    st,
		client:   client,
		library:  library,
		embedder: embedder,
		youtube:  youtube,
		local:    local,
		orch:     orch,
	}, closer, nil
}

// ragEngine builds an answering engine; empty model uses the configured
// chat model.
func (a *app) ragEngine(model string, maxChunks int, minScore float64) *rag.Engine {
	if model == "" {
		model = a.cfg.ChatModel
	}
	builder := rag.NewContextBuilder(a.embedder, a.store,
		rag.WithMaxChunks(maxChunks), rag.WithMinScore(minScore))
	return rag.NewEngine(a.client, builder, a.library, model)
}

// contextBuilder builds a retrieval-only context builder.
func (a *app) contextBuilder(maxChunks int, minScore float64) *rag.ContextBuilder {
	return rag.NewContextBuilder(a.embedder, a.store,
		rag.WithMaxChunks(maxChunks), rag.WithMinScore(minScore))
}

// agentRunner builds the tool-loop runner.
func (a *app) agentRunner(env *Env, maxIterations int) *agent.Runner {
	toolbox := agent.NewToolbox(a.store, a.embedder)
	opts := []agent.RunnerOption{agent.WithRunnerLogger(env.Log)}
	if maxIterations > 0 {
		opts = append(opts, agent.WithMaxIterations(maxIterations))
	}
	return agent.NewRunner(a.client, toolbox, a.library, a.cfg.ChatModel, opts...)
}

// parseStrategyFlag resolves the --strategy flag, empty meaning the
// configured default.
func parseStrategyFlag(cmd *cobra.Command) (chunk.Strategy, error) {
	raw, _ := cmd.Flags().GetString("strategy")
	if raw == "" {
		return "", nil
	}
	strategy, err := chunk.ParseStrategy(raw)
	if err != nil {
		return "", fmt.Errorf("--strategy: %w", err)
	}
	return strategy, nil
}
