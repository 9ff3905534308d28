// pdbdump is a CLI tool for extracting information and struct layouts from
// Microsoft PDB files.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jtang613/pdbstruct/pkg/pdb"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every subcommand once the configuration has
// been loaded.
type app struct {
	cfg    config
	logger *slog.Logger
	out    *printer
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pdbdump",
		Short: "Extract symbols, types and struct layouts from PDB files",
		Long: `pdbdump reads Microsoft PDB debug files and prints their symbols,
types, source files and the member layout of structures and enums.

Relative file names are resolved through the search path, which defaults to
the directories named by _NT_SYMBOL_PATH.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "configuration file (default ./pdbdump.toml, then the user config dir)")
	flags.String("format", "json", "output format (json|table|msgpack)")
	flags.Bool("pretty", false, "indent JSON output")
	flags.String("color", "auto", "colorize table output (auto|on|off)")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.StringSlice("search-path", nil, "directories searched for PDB files")

	root.AddCommand(
		newInfoCmd(a),
		newModulesCmd(a),
		newFunctionsCmd(a),
		newVariablesCmd(a),
		newPublicsCmd(a),
		newTypesCmd(a),
		newSourcesCmd(a),
		newTypeCmd(a),
		newStructCmd(a),
		newLookupCmd(a),
	)
	return root
}

// setup loads the configuration file, applies flag overrides and builds the
// logger and the printer.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if flags.Changed("format") {
		cfg.Format, _ = flags.GetString("format")
	}
	if flags.Changed("pretty") {
		cfg.Pretty, _ = flags.GetBool("pretty")
	}
	if flags.Changed("color") {
		cfg.Color, _ = flags.GetString("color")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("search-path") {
		cfg.SearchPath, _ = flags.GetStringSlice("search-path")
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	w := cmd.OutOrStdout()
	a.out = &printer{
		w:      w,
		format: cfg.Format,
		pretty: cfg.Pretty,
		color:  cfg.Color == "on" || (cfg.Color == "auto" && isTerminal(w)),
	}
	return nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// options translates the configuration into session options.
func (a *app) options() pdb.SymbolOptions {
	opts := pdb.DefaultOptions
	if a.cfg.CaseSensitive {
		opts &^= pdb.OptCaseInsensitive
	}
	if !a.cfg.Undecorate {
		opts &^= pdb.OptUndecorateNames
	}
	return opts
}

// load attaches file to a new session. The caller closes the session.
func (a *app) load(file string) (*pdb.Session, *pdb.Module, error) {
	s := pdb.NewSession(
		pdb.WithSearchPath(a.cfg.SearchPath...),
		pdb.WithOptions(a.options()),
		pdb.WithLogger(a.logger),
		pdb.WithCapacity(a.cfg.Capacity),
	)
	base, err := s.LoadModule(file, 0, "")
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	for _, m := range s.Modules() {
		if m.Base == base {
			return s, m, nil
		}
	}
	s.Close()
	return nil, nil, fmt.Errorf("module %s vanished after loading", file)
}

// withModule loads file, runs fn and closes the session.
func (a *app) withModule(file string, fn func(s *pdb.Session, m *pdb.Module) error) error {
	s, m, err := a.load(file)
	if err != nil {
		return err
	}
	defer s.Close()
	a.logger.Debug("loaded", "file", file, "path", m.Path, "base", fmt.Sprintf("%#x", m.Base))
	return fn(s, m)
}

func hex(v uint64) string { return fmt.Sprintf("%#x", v) }

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
