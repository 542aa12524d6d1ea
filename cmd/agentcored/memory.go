package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openrt/agentcore/internal/config"
	"github.com/openrt/agentcore/internal/memstore"
	"github.com/openrt/agentcore/pkg/models"
)

func buildMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Query and import durable memory",
	}
	cmd.AddCommand(buildMemoryQueryCmd(), buildMemoryImportCmd(), buildMemoryStatsCmd())
	return cmd
}

func openMemoryStore(configPath string) (*memstore.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return memstore.Open(cfg.Workspace.MemoryDBPath(), nil)
}

func buildMemoryQueryCmd() *cobra.Command {
	var (
		configPath string
		topK       int
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search memory for relevant items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemoryStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.Query(context.Background(), models.QueryParams{Query: args[0], TopK: topK})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for _, r := range results {
				fmt.Fprintf(out, "[%.3f] %-10s %s\n", r.Score, r.Item.Type, r.Item.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().IntVar(&topK, "top-k", 10, "Maximum number of results")
	return cmd
}

// importEntry is one line of a newline-delimited-JSON import file, matching
// the fields a caller would set via UpsertParams.
type importEntry struct {
	Type    string   `json:"type"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

func buildMemoryImportCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import newline-delimited JSON memory entries from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemoryStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open import file: %w", err)
			}
			defer f.Close()

			imported := 0
			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}
				var entry importEntry
				if err := json.Unmarshal([]byte(line), &entry); err != nil {
					return fmt.Errorf("parse entry %d: %w", imported+1, err)
				}
				memType := models.MemoryType(entry.Type)
				if memType == "" {
					memType = models.MemoryNote
				}
				if _, err := store.Upsert(context.Background(), models.UpsertParams{
					Scope:   models.ScopeLongTerm,
					Type:    memType,
					Title:   entry.Title,
					Content: entry.Content,
					Tags:    entry.Tags,
					Source:  "import:" + args[0],
				}); err != nil {
					return fmt.Errorf("import entry %d: %w", imported+1, err)
				}
				imported++
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("scan import file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d memory items\n", imported)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}

func buildMemoryStatsCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show memory store counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openMemoryStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			stats, err := store.Stats(context.Background())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total:      %d\n", stats.Total)
			fmt.Fprintf(out, "short_term: %d\n", stats.ShortTerm)
			fmt.Fprintf(out, "long_term:  %d\n", stats.LongTerm)
			fmt.Fprintf(out, "deleted:    %d\n", stats.Deleted)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	return cmd
}
