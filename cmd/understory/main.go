package main

import (
	"bytes"
	"fmt"
	"os"
	goruntime "runtime"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jward/understory"
	"github.com/jward/understory/internal/registry"
)

// envOptions are environment overrides, processed before flags so that
// flags win.
type envOptions struct {
	Config  string        `envconfig:"CONFIG"`
	Queries string        `envconfig:"QUERIES"`
	Style   string        `envconfig:"STYLE"`
	Timeout time.Duration `envconfig:"TIMEOUT"`
}

var (
	flagConfig  string
	flagQueries string
	flagStyle   string
	flagFormat  string
	flagLang    string
	flagTimeout time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "understory",
	Short:         "Layered tree-sitter parsing and highlighting",
	Long:          "Understory parses documents into layered tree-sitter syntax trees, following language injections, and renders syntax highlighting from them.",
	SilenceErrors: true,
	SilenceUsage:  true,
	// No Run — prints help by default.
}

func init() {
	var env envOptions
	if err := envconfig.Process("understory", &env); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
	if env.Style == "" {
		env.Style = "monokai"
	}
	if env.Timeout == 0 {
		env.Timeout = 500 * time.Millisecond
	}

	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", env.Config, "registry config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&flagQueries, "queries", env.Queries, "directory overriding the embedded query files")

	highlightCmd.Flags().StringVar(&flagStyle, "style", env.Style, "chroma style for ANSI output")
	highlightCmd.Flags().StringVar(&flagFormat, "format", "ansi", "output format: ansi|spans")
	highlightCmd.Flags().StringVar(&flagLang, "language", "", "language name override (default: from filename)")
	highlightCmd.Flags().DurationVar(&flagTimeout, "timeout", env.Timeout, "per-layer parse budget")

	rootCmd.AddCommand(highlightCmd)
	rootCmd.AddCommand(languagesCmd)
}

var highlightCmd = &cobra.Command{
	Use:   "highlight <file>...",
	Short: "Highlight source files",
	Long:  "Parses each file with the registered grammar, resolves injections and locals, and writes highlighted output: ANSI-colored text or one scope span per line.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHighlight,
}

func runHighlight(cmd *cobra.Command, args []string) error {
	if flagFormat != "ansi" && flagFormat != "spans" {
		return fmt.Errorf("unknown format %q (want ansi or spans)", flagFormat)
	}
	reg, err := buildRegistry()
	if err != nil {
		return err
	}

	// Files are independent documents; render them in parallel and print
	// in argument order.
	outputs := make([]bytes.Buffer, len(args))
	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(goruntime.NumCPU())
	for i, path := range args {
		g.Go(func() error {
			return highlightFile(ctx, &outputs[i], reg, path)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i := range outputs {
		if _, err := outputs[i].WriteTo(os.Stdout); err != nil {
			return err
		}
	}
	return nil
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List registered languages",
	RunE:  runLanguages,
}

func runLanguages(cmd *cobra.Command, args []string) error {
	reg, err := buildRegistry()
	if err != nil {
		return err
	}

	t := table.New().
		Headers("LANGUAGE", "EXTENSIONS", "QUERIES").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for i, name := range reg.Names() {
		lang := understory.Language(i)
		queries := "ok"
		if !reg.HasHighlights(lang) {
			queries = "no queries"
		} else if err := reg.Preload(lang); err != nil {
			queries = err.Error()
		}
		t.Row(name, joinList(reg.Extensions(lang)), queries)
	}
	fmt.Fprintln(os.Stdout, t)
	return nil
}

func buildRegistry() (*registry.Registry, error) {
	var cfg registry.Config
	if flagConfig != "" {
		var err error
		cfg, err = registry.LoadConfig(flagConfig)
		if err != nil {
			return nil, err
		}
	}
	if flagQueries != "" {
		cfg.QueriesDir = flagQueries
	}
	return registry.New(cfg)
}

func joinList(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += " "
		}
		out += item
	}
	return out
}
