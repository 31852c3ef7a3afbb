// Package cli implements the docpager command line: one-shot commands and
// an interactive shell over a single database file.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docpager/internal/config"
	"github.com/calvinalkan/docpager/pkg/fs"
	"github.com/calvinalkan/docpager/pkg/pager"
)

// Run is the main entry point. Returns exit code.
//
// A value on sigCh cancels the command's context; long-running commands
// (export, shell) stop at the next document or prompt.
func Run(stdin io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	if globals.help || len(globals.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    globals.workDir,
		ConfigPath: globals.configPath,
		Overrides:  globals.overrides,
		Env:        env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	s := &session{
		cfg:    cfg,
		logger: cfg.Logger(errOut),
		fsys:   fs.NewReal(),
		stdin:  stdin,
		env:    env,
	}

	o := NewIO(out, errOut)

	code := s.dispatch(ctx, o, globals.remaining, false)

	closeErr := s.close()
	if closeErr != nil {
		fprintln(errOut, "error:", closeErr)

		return 1
	}

	if code != 0 {
		return code
	}

	return o.Finish()
}

// session holds state shared by the commands of one invocation. The
// database is opened on first use and stays open until close, so a shell
// session keeps the lock for its whole lifetime.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	fsys   fs.FS
	stdin  io.Reader
	env    map[string]string

	db *pager.Pager
}

func (s *session) open() (*pager.Pager, error) {
	if s.db != nil {
		return s.db, nil
	}

	opts := s.cfg.PagerOptions(s.logger)
	opts.FS = s.fsys

	db, err := pager.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.cfg.DBPathAbs, err)
	}

	s.db = db

	return db, nil
}

func (s *session) close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	return err
}

// commands returns fresh command values. Flag sets keep parsed values, so
// every dispatch gets its own.
func (s *session) commands() []*Command {
	return []*Command{
		PutCmd(s),
		GetCmd(s),
		QueryCmd(s),
		InfoCmd(s),
		ExportCmd(s),
		ShellCmd(s),
		PrintConfigCmd(&s.cfg),
	}
}

// dispatch runs the command named by args[0]. inShell rejects commands that
// make no sense inside the shell.
func (s *session) dispatch(ctx context.Context, o *IO, args []string, inShell bool) int {
	name := args[0]

	if name == "-h" || name == "--help" || name == "help" {
		printUsageTo(o)

		return 0
	}

	for _, cmd := range s.commands() {
		if cmd.Name() != name {
			continue
		}

		if inShell && name == "shell" {
			o.ErrPrintln("error:", ErrNestedShell)

			return 1
		}

		return cmd.Run(ctx, o, args[1:], inShell)
	}

	o.ErrPrintln("error:", fmt.Errorf("%w: %s", ErrUnknownCommand, name))

	if !inShell {
		var usage strings.Builder
		printUsage(&usage)
		o.ErrPrintln(strings.TrimRight(usage.String(), "\n"))
	}

	return 1
}

type globalFlags struct {
	workDir    string
	configPath string
	help       bool
	overrides  config.Overrides
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	fset := flag.NewFlagSet("docpager", flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	fset.SetInterspersed(false)

	var (
		g         globalFlags
		db        string
		logLevel  string
		logFormat string
		writeback string
		noLock    bool
	)

	fset.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fset.StringVarP(&g.configPath, "config", "c", "", "Use specified config `file`")
	fset.BoolVarP(&g.help, "help", "h", false, "Show help")
	fset.StringVar(&db, "db", "", "Database `path`")
	fset.StringVar(&logLevel, "log-level", "", "Log `level` (debug, info, warn, error)")
	fset.StringVar(&logFormat, "log-format", "", "Log `format` (text, json)")
	fset.StringVar(&writeback, "writeback", "", "Writeback `mode` (none, sync)")
	fset.BoolVar(&noLock, "no-lock", false, "Do not take the database lock file")

	err := fset.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			g.help = true

			return g, nil
		}

		return globalFlags{}, err
	}

	if fset.Changed("db") {
		g.overrides.DBPath = &db
	}

	if fset.Changed("log-level") {
		g.overrides.LogLevel = &logLevel
	}

	if fset.Changed("log-format") {
		g.overrides.LogFormat = &logFormat
	}

	if fset.Changed("writeback") {
		g.overrides.Writeback = &writeback
	}

	if fset.Changed("no-lock") {
		g.overrides.DisableLocking = &noLock
	}

	g.remaining = fset.Args()

	return g, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const usageHeader = `docpager - embedded paged document store

Usage: docpager [options] <command> [args]

Options:
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use specified config file
      --db <path>          Database file (default docpager.db)
      --log-level <level>  debug, info, warn or error
      --log-format <fmt>   text or json
      --writeback <mode>   none or sync
      --no-lock            Do not take the database lock file

Commands:`

func printUsage(w io.Writer) {
	fprintln(w, usageHeader)

	for _, cmd := range (&session{}).commands() {
		fprintln(w, cmd.HelpLine())
	}
}

func printUsageTo(o *IO) {
	var b strings.Builder
	printUsage(&b)
	o.Printf("%s", b.String())
}
