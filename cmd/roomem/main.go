// Command roomem is an operator CLI for inspecting, seeding, and
// smoke-testing a workspace's conversation memory store. It is not part
// of the host integration (a host embeds pkg/engine directly) — it plays
// the same role cmd/sqvect played for the teacher's raw vector store: a
// debugging tool an operator runs by hand against a .db file.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roo-code/conversation-memory/pkg/engine"
	"github.com/roo-code/conversation-memory/pkg/memmodel"
	"github.com/roo-code/conversation-memory/pkg/store"
)

var (
	dbPath        string
	workspaceID   string
	workspacePath string
	dimension     int
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "roomem",
	Short: "Operator CLI for the conversation memory engine",
	Long:  `Inspect, seed, and smoke-test a workspace's conversation memory store.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "roomem.db", "SQLite file backing the memory store")
	rootCmd.PersistentFlags().StringVar(&workspaceID, "workspace-id", "default", "Workspace identifier")
	rootCmd.PersistentFlags().StringVarP(&workspacePath, "workspace-path", "w", ".", "Workspace path facts are scoped to")
	rootCmd.PersistentFlags().IntVarP(&dimension, "dimension", "n", 32, "Embedding dimension used by the built-in hash embedder")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(turnCmd, searchCmd, clearCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// openEngine builds an Engine against the --db/--workspace-* flags. It
// always wires ConversationMemoryEnabled on: the CLI exists to exercise
// the engine, there is no reason to invoke it against a disabled one. The
// underlying Store is also returned since Engine deliberately doesn't
// expose its VectorStore, and `status` needs to read raw payloads.
func openEngine(factsJSON string) (*engine.Engine, *store.Store, error) {
	storeCfg := store.DefaultConfig(dbPath)
	storeCfg.Dimension = dimension
	storeCfg.Logger = slogLogger{}

	st, err := store.New(storeCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	cfg := engine.DefaultConfig(workspaceID, workspacePath)
	cfg.Store = st
	cfg.Embedder = newHashEmbedder(dimension)
	cfg.Logger = slogLogger{}
	cfg.ConversationMemoryEnabled = true
	cfg.DailyProcessingBudgetUSD = 0 // the CLI is an offline tool; never budget-skip a seeded extraction

	if factsJSON != "" {
		body, err := os.ReadFile(factsJSON)
		if err != nil {
			return nil, nil, fmt.Errorf("read facts file: %w", err)
		}
		cfg.LLM = newCannedLLM(string(body))
	}

	e, err := engine.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("build engine: %w", err)
	}
	return e, st, nil
}

// slogLogger adapts memmodel.Logger onto log/slog, the way the teacher's
// async auto-retain path logs outside of the injectable Logger seam.
type slogLogger struct {
	attrs []any
}

func (l slogLogger) Debug(msg string, keyvals ...any) { slog.Debug(msg, append(l.attrs, keyvals...)...) }
func (l slogLogger) Info(msg string, keyvals ...any)  { slog.Info(msg, append(l.attrs, keyvals...)...) }
func (l slogLogger) Warn(msg string, keyvals ...any)  { slog.Warn(msg, append(l.attrs, keyvals...)...) }
func (l slogLogger) Error(msg string, keyvals ...any) { slog.Error(msg, append(l.attrs, keyvals...)...) }
func (l slogLogger) With(keyvals ...any) memmodel.Logger {
	merged := make([]any, 0, len(l.attrs)+len(keyvals))
	merged = append(merged, l.attrs...)
	merged = append(merged, keyvals...)
	return slogLogger{attrs: merged}
}
