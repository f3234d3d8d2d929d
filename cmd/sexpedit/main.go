// Package main provides the sexpedit CLI: structure-aware editing of
// Clojure-syntax source files without hand-counting parentheses.
//
// Subcommands:
//   - collapse     : render a file as signatures with bodies elided
//   - find         : locate one top-level form by name/kind/dispatch
//   - replace-form : replace a whole top-level form
//   - replace-expr : replace or insert around a matched sub-expression
//
// Key design goals:
//   - Untouched bytes stay byte-identical (lossless tree, atomic writes)
//   - Refuse rather than guess: ambiguous targets are an error with candidates
//   - Unbalanced replacement content is repaired from indentation when safe
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sexpedit/internal/collapse"
	"sexpedit/internal/config"
	"sexpedit/internal/engine"
	"sexpedit/internal/locate"
	"sexpedit/internal/logging"
	"sexpedit/internal/srcwalk"
)

// app carries the objects shared by every subcommand.
type app struct {
	cfgPath string
	debug   bool

	cfg config.Config
	eng *engine.Engine
	log *zap.Logger
}

// setup loads configuration and builds the engine. Runs as the root
// PersistentPreRunE so every subcommand gets the same wiring.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.debug {
		cfg.Debug = true
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger
	a.eng = engine.New(cfg, engine.WithLogger(logger))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:               "sexpedit",
		Short:             "structural editing for S-expression source files",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "", "path to YAML config (optional)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "debug logging (pipeline state transitions)")

	root.AddCommand(newCollapseCmd(a), newFindCmd(a), newReplaceFormCmd(a), newReplaceExprCmd(a))
	return root
}

func newCollapseCmd(a *app) *cobra.Command {
	var namePat, contentPat string
	cmd := &cobra.Command{
		Use:   "collapse <file-or-dir>",
		Short: "render files as signatures with bodies elided",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fi, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if fi.IsDir() {
				return a.collapseDir(cmd, args[0], namePat, contentPat)
			}
			view, stats, err := a.eng.RenderCollapsed(args[0], namePat, contentPat)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), view)
			printStats(cmd, stats)
			return nil
		},
	}
	cmd.Flags().StringVar(&namePat, "name", "", "regexp over form signatures; matches render in full")
	cmd.Flags().StringVar(&contentPat, "content", "", "regexp over form source text; matches render in full")
	return cmd
}

// collapseDir renders every Clojure source file under root, in deterministic
// order, each under a path banner. Files that do not parse are reported on
// stderr and skipped so one broken file does not hide the rest.
func (a *app) collapseDir(cmd *cobra.Command, root, namePat, contentPat string) error {
	files, err := srcwalk.Collect(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no Clojure source files under %s", root)
	}
	var total collapse.Stats
	for _, f := range files {
		view, stats, err := a.eng.RenderCollapsed(f.AbsPath, namePat, contentPat)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "SKIP %s: %v\n", f.RelPath, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), ";; ==== %s ====\n%s\n", f.RelPath, view)
		total.TotalForms += stats.TotalForms
		total.ExpandedForms += stats.ExpandedForms
		total.CollapsedForms += stats.CollapsedForms
		total.PatternMatches += stats.PatternMatches
	}
	printStats(cmd, total)
	return nil
}

func printStats(cmd *cobra.Command, stats collapse.Stats) {
	fmt.Fprintf(cmd.ErrOrStderr(), "forms: %d total, %d expanded, %d collapsed, %d pattern matches\n",
		stats.TotalForms, stats.ExpandedForms, stats.CollapsedForms, stats.PatternMatches)
}

func newFindCmd(a *app) *cobra.Command {
	var sel selectorFlags
	cmd := &cobra.Command{
		Use:   "find <file>",
		Short: "locate one top-level form and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := a.eng.FindForm(path, sel.selector())
			if err != nil {
				return err
			}
			if f == nil {
				return fmt.Errorf("no form matching %s in %s", sel.selector().Describe(), path)
			}
			src, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(src[f.LeadStart:f.Node.End])+"\n")
			return nil
		},
	}
	sel.register(cmd)
	return cmd
}

func newReplaceFormCmd(a *app) *cobra.Command {
	var (
		sel     selectorFlags
		content contentFlags
	)
	cmd := &cobra.Command{
		Use:   "replace-form <file>",
		Short: "replace a whole top-level form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := content.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			path := args[0]
			// A one-shot invocation owns its read of the file; the guard
			// protects long-lived sessions embedding the engine.
			a.eng.Guard().ObserveRead(path, true)
			res, err := a.eng.ReplaceForm(path, sel.selector(), body)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	sel.register(cmd)
	content.register(cmd)
	return cmd
}

func newReplaceExprCmd(a *app) *cobra.Command {
	var (
		match   string
		opName  string
		all     bool
		content contentFlags
	)
	cmd := &cobra.Command{
		Use:   "replace-expr <file>",
		Short: "replace or insert around a matched sub-expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := engine.ParseOp(opName)
			if err != nil {
				return err
			}
			body, err := content.read(cmd.InOrStdin())
			if err != nil {
				return err
			}
			path := args[0]
			a.eng.Guard().ObserveRead(path, true)
			res, err := a.eng.ReplaceExpression(path, match, body, op, all)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&match, "match", "", "expression to locate, compared structurally (required)")
	cmd.Flags().StringVar(&opName, "op", "replace", "replace | insert-before | insert-after")
	cmd.Flags().BoolVar(&all, "all", false, "apply to every occurrence instead of refusing on several")
	_ = cmd.MarkFlagRequired("match")
	content.register(cmd)
	return cmd
}

// printResult writes the diff to stdout and warnings to stderr.
func printResult(cmd *cobra.Command, res *engine.EditResult) {
	fmt.Fprint(cmd.OutOrStdout(), res.Diff)
	for _, w := range res.Warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING:", w)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "edit %s applied to %s\n", res.ID, res.Path)
}

// selectorFlags is the shared --name/--kind/--dispatch flag set.
type selectorFlags struct {
	name     string
	kind     string
	dispatch string
}

func (s *selectorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.name, "name", "", "form name, optionally namespace-qualified (required)")
	cmd.Flags().StringVar(&s.kind, "kind", "", "defining symbol (defn, defmethod, ...) or category")
	cmd.Flags().StringVar(&s.dispatch, "dispatch", "", "defmethod dispatch value, compared structurally")
	_ = cmd.MarkFlagRequired("name")
}

func (s *selectorFlags) selector() locate.Selector {
	return locate.Selector{Name: s.name, Kind: s.kind, Dispatch: s.dispatch}
}

// contentFlags resolves replacement content: --content wins, then
// --content-file, then stdin.
type contentFlags struct {
	inline string
	file   string
}

func (c *contentFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.inline, "content", "", "replacement content")
	cmd.Flags().StringVar(&c.file, "content-file", "", "file holding the replacement content")
}

func (c *contentFlags) read(stdin io.Reader) (string, error) {
	switch {
	case c.inline != "":
		return c.inline, nil
	case c.file != "":
		data, err := os.ReadFile(c.file)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", fmt.Errorf("no replacement content: use --content, --content-file, or stdin")
	}
	return string(data), nil
}
