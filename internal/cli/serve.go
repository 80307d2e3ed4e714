package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/alnah/lytt/internal/mcp"
	"github.com/alnah/lytt/internal/rag"
	"github.com/alnah/lytt/internal/server"
)

// ServeCmd runs the HTTP JSON API.
func ServeCmd(env *Env) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipeline over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			newAsker := func(model string, maxChunks int) server.Asker {
				return app.ragEngine(model, maxChunks, rag.DefaultMinScore)
			}
			srv := server.New(app.orch, app.embedder, app.store, newAsker, env.Log)

			addr := net.JoinHostPort(host, strconv.Itoa(port))
			fmt.Fprintf(env.Stdout, "Listening on http://%s\n", addr)
			return srv.Run(addr)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind address")
	cmd.Flags().IntVar(&port, "port", 8080, "bind port")
	return cmd
}

// McpCmd speaks the model context protocol over stdin/stdout. Stdout
// carries only protocol frames; logs go to stderr.
func McpCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run as a model context protocol server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, closer, err := buildApp(cmd, env, true)
			if err != nil {
				return err
			}
			defer closer()

			asker := app.ragEngine("", rag.DefaultMaxChunks, rag.DefaultMinScore)
			searcher := app.contextBuilder(rag.DefaultMaxChunks, rag.DefaultMinScore)
			srv := mcp.NewServer(app.orch, asker, searcher, app.store, env.Log)
			return srv.Serve(cmd.Context(), env.Stdin, env.Stdout)
		},
	}
}
