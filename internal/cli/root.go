package cli

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alnah/lytt/internal/config"
)

// RootCmd builds the lytt command tree.
func RootCmd(env *Env) *cobra.Command {
	var verbosity int

	root := &cobra.Command{
		Use:           "lytt",
		Short:         "Transcribe, index and query spoken media",
		Long:          "lytt turns videos and audio files into a searchable, questionable transcript index.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			env.Log = buildLogger(env, verbosity)
		},
	}

	root.PersistentFlags().String("config", "", "config file path (default ~/.config/lytt/config)")
	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v, -vv)")
	// Config keys use dashes; accept the underscore spelling on flags too.
	root.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(
		TranscribeCmd(env),
		AskCmd(env),
		SearchCmd(env),
		ChatCmd(env),
		AgentCmd(env),
		ListCmd(env),
		RechunkCmd(env),
		ExportCmd(env),
		ServeCmd(env),
		McpCmd(env),
		InitCmd(env),
		DoctorCmd(env),
		ConfigCmd(env),
	)
	return root
}

// buildLogger configures a console logger on stderr. Verbosity flags
// win over the environment level; the default stays quiet.
func buildLogger(env *Env, verbosity int) zerolog.Logger {
	level := zerolog.WarnLevel
	if envLevel := env.Getenv(config.EnvLogLevel); envLevel != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(envLevel)); err == nil {
			level = parsed
		}
	}
	switch {
	case verbosity == 1:
		level = zerolog.InfoLevel
	case verbosity >= 2:
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{Out: env.Stderr}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
