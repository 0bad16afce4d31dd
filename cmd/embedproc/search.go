package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Edwardo1983/cloudflare-embeddings-processor/internal/search"
)

var (
	searchSubject string
	searchSchool  string
	searchClass   string
	searchTopK    int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the vector index",
	Long: `Embed the query and return the closest chunks from one namespace.

With --subject the named subject's namespace is searched. Without it the
query is routed by subject keywords; if no subject matches, the default
namespace is searched instead.

Examples:
  # Auto-route by keywords
  embedproc search "cum se aduna fractiile"

  # Search a specific subject, by primary name or alias
  embedproc search --subject mate "adunarea numerelor"

  # Scope to another school and class
  embedproc search --school sfantul_andrei --class clasa_2 "povestea literei A"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchSubject, "subject", "", "explicit subject name or alias")
	searchCmd.Flags().StringVar(&searchSchool, "school", "", "school override for namespace composition")
	searchCmd.Flags().StringVar(&searchClass, "class", "", "class override for namespace composition")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (0 uses the configured default)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	searcher, err := search.New(
		search.Config{
			School: a.cfg.Search.School,
			Class:  a.cfg.Search.Class,
			TopK:   a.cfg.Search.TopK,
		},
		a.embedder,
		a.store,
		a.router,
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("building searcher: %w", err)
	}

	query := strings.Join(args, " ")
	result, err := searcher.Search(cmd.Context(), query, search.Options{
		Subject: searchSubject,
		School:  searchSchool,
		Class:   searchClass,
		TopK:    searchTopK,
	})
	if err != nil {
		return err
	}

	printResult(cmd, result)
	return nil
}

func printResult(cmd *cobra.Command, r *search.Result) {
	ns := r.Namespace
	if ns == "" {
		ns = "(default)"
	}
	switch r.Mode {
	case search.ModeExplicit:
		cmd.Printf("Subject %q (explicit), namespace %s\n", r.Subject, ns)
	case search.ModeAutoRoute:
		cmd.Printf("Subject %q (auto-routed, confidence %.2f), namespace %s\n", r.Subject, r.Confidence, ns)
	case search.ModeFallback:
		cmd.Printf("No subject matched, searching namespace %s\n", ns)
	}

	if len(r.Matches) == 0 {
		cmd.Println("No results.")
		return
	}
	for i, m := range r.Matches {
		cmd.Printf("\n%d. score %.4f  id %s\n", i+1, m.Score, m.ID)
		if text, ok := m.Metadata["text"].(string); ok && text != "" {
			cmd.Printf("   %s\n", text)
		}
		if src, ok := m.Metadata["source_file"].(string); ok && src != "" {
			cmd.Printf("   source: %s\n", src)
		}
	}
}
