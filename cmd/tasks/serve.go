package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/amonks/tasksync/todoserver"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an in-memory todo server",
	Long: `Run an in-memory todo server.

Without --token, requests are not authenticated and every todo belongs to a
single local owner. Each --token TOKEN=OWNER admits requests bearing TOKEN as
OWNER.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	serveAddr   string
	serveTokens []string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8787", "Address to listen on")
	serveCmd.Flags().StringArrayVar(&serveTokens, "token", nil, "Bearer token as TOKEN=OWNER (repeatable)")
}

func runServe(cmd *cobra.Command, args []string) error {
	tokens, err := parseTokens(serveTokens)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "todoserver: ", log.LstdFlags)
	server := todoserver.New(todoserver.Options{
		Store:  todoserver.NewStore(todoserver.StoreOptions{Policy: policyFor(cfg)}),
		Tokens: tokens,
		Logger: logger,
	})
	return server.Serve(serveAddr)
}

func parseTokens(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	tokens := make(map[string]string, len(values))
	for _, value := range values {
		token, owner, ok := strings.Cut(value, "=")
		token = strings.TrimSpace(token)
		owner = strings.TrimSpace(owner)
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("invalid --token %q: want TOKEN=OWNER", value)
		}
		tokens[token] = owner
	}
	return tokens, nil
}
