package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alnah/lytt/internal/config"
	"github.com/alnah/lytt/internal/tool"
)

// InitCmd writes a default config file.
func InitCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteDefault()
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "Wrote %s\n", path)
			return nil
		},
	}
}

// DoctorCmd checks that external tools and credentials are in place.
func DoctorCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var missing int
			check := func(label string, ok bool, detail string) {
				mark := "ok"
				if !ok {
					mark = "MISSING"
					missing++
				}
				fmt.Fprintf(env.Stdout, "%-12s %-8s %s\n", label, mark, detail)
			}

			for _, name := range []string{"yt-dlp", "ffmpeg", "ffprobe"} {
				path, err := tool.LookPath(name)
				check(name, err == nil, path)
			}
			check("api key", env.Getenv(config.EnvAPIKey) != "", config.EnvAPIKey)

			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := env.LoadConfig(configPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "%-12s %-8s %s\n", "database", "ok", cfg.DatabasePath)
			fmt.Fprintf(env.Stdout, "%-12s %-8s %s\n", "audio dir", "ok", cfg.AudioDir)

			if missing > 0 {
				return fmt.Errorf("%d checks failed: %w", missing, config.ErrConfig)
			}
			fmt.Fprintln(env.Stdout, "\nAll checks passed.")
			return nil
		},
	}
}

// ConfigCmd shows and edits config file values.
func ConfigCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration values",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show all configured values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := config.List()
			if err != nil {
				return err
			}
			if len(values) == 0 {
				fmt.Fprintln(env.Stdout, "No config file values set (using defaults).")
				return nil
			}
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(env.Stdout, "%s=%s\n", k, values[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Read one config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := config.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, value)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set one config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !isKnownKey(args[0]) {
				return fmt.Errorf("unknown config key %q: %w", args[0], config.ErrConfig)
			}
			if err := config.Save(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "%s=%s\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Stdout, path)
			return nil
		},
	})

	return cmd
}

func isKnownKey(key string) bool {
	for _, k := range config.Keys() {
		if k == key {
			return true
		}
	}
	return false
}
