package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vector counts per namespace",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetching store stats: %w", err)
	}

	cmd.Printf("Total vectors: %d\n", stats.TotalVectors)
	if len(stats.Namespaces) == 0 {
		return nil
	}

	keys := make([]string, 0, len(stats.Namespaces))
	for key := range stats.Namespaces {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		name := key
		if name == "" {
			name = "(default)"
		}
		cmd.Printf("  %-40s %d\n", name, stats.Namespaces[key])
	}
	return nil
}
