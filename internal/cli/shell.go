package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"
)

const historyFileName = ".docpager_history"

// ShellCmd returns the shell command.
func ShellCmd(s *session) *Command {
	fset := flag.NewFlagSet("shell", flag.ContinueOnError)

	return &Command{
		Flags: fset,
		Usage: "shell",
		Short: "Interactive prompt",
		Long: `Start an interactive prompt that accepts the other commands without the
"docpager" prefix, e.g. put name=flora likes=cats. The database stays open
(and locked) until the shell exits.

Type help for the command list and exit, quit or Ctrl-D to leave.
History is kept in ~/` + historyFileName + ` when running on a terminal.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return execShell(ctx, o, s)
		},
	}
}

// lineReader is the part of [liner.State] the shell uses, so a plain
// scanner can stand in when stdin is not a terminal.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

func execShell(ctx context.Context, o *IO, s *session) error {
	_, err := s.open()
	if err != nil {
		return err
	}

	reader, save := s.newLineReader()
	defer func() { _ = reader.Close() }()
	defer save()

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		line, err := reader.Prompt("docpager> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		reader.AppendHistory(line)

		args, err := splitLine(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch args[0] {
		case "exit", "quit", "q":
			return nil
		}

		lineIO := NewIO(o.out, o.errOut)
		if s.dispatch(ctx, lineIO, args, true) == 0 {
			lineIO.Finish()
		}
	}
}

// newLineReader returns a liner prompt when stdin is a terminal and a
// line scanner otherwise. save writes the prompt history back to disk.
func (s *session) newLineReader() (lineReader, func()) {
	if s.stdin == nil {
		return &scanReader{sc: bufio.NewScanner(strings.NewReader(""))}, func() {}
	}

	f, ok := s.stdin.(*os.File)
	if !ok || !isTerminal(f) {
		return &scanReader{sc: bufio.NewScanner(s.stdin)}, func() {}
	}

	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(s.complete)

	history := s.historyPath()
	if history != "" {
		if hf, err := os.Open(history); err == nil {
			_, _ = state.ReadHistory(hf)
			_ = hf.Close()
		}
	}

	save := func() {
		if history == "" {
			return
		}

		if hf, err := os.Create(history); err == nil {
			_, _ = state.WriteHistory(hf)
			_ = hf.Close()
		}
	}

	return state, save
}

func (s *session) historyPath() string {
	home := s.env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, historyFileName)
}

// complete offers command names for the first word.
func (s *session) complete(line string) []string {
	if strings.Contains(line, " ") {
		return nil
	}

	var out []string

	for _, cmd := range s.commands() {
		if strings.HasPrefix(cmd.Name(), line) && cmd.Name() != "shell" {
			out = append(out, cmd.Name())
		}
	}

	for _, word := range []string{"help", "exit"} {
		if strings.HasPrefix(word, line) {
			out = append(out, word)
		}
	}

	return out
}

func isTerminal(f *os.File) bool {
	_, err := unix.IoctlGetTermios(int(f.Fd()), unix.TCGETS)

	return err == nil
}

// scanReader reads one line per prompt without echoing the prompt.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }
