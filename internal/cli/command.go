package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags.
	// The FlagSet name is not used - command identity comes from Usage.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "docpager" in help.
	// Includes the command name and arguments/flags.
	// Examples: "get <id>", "put [--id N] field=value...", "info"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Long is the full description shown in command help.
	// If empty, Short is used instead.
	Long string

	// Exec runs the command after flags are parsed.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-34s %s", c.Usage, c.Short)
}

// exitInterrupted is returned when a signal cancelled the command.
const exitInterrupted = 130

// PrintHelp prints the full help output. Outside the shell the usage line
// carries the program name.
func (c *Command) PrintHelp(o *IO, inShell bool) {
	if inShell {
		o.Println("Usage:", c.Usage)
	} else {
		o.Println("Usage: docpager", c.Usage)
	}

	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags.HasFlags() {
		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()

		o.Println()
		o.Println("Flags:")
		o.Printf("%s", buf.String())
	}
}

// Run parses flags and executes the command. Returns exit code.
//
// A flag error prints the full help on the command line but only a hint
// inside the shell, where the help would push the prompt off screen.
func (c *Command) Run(ctx context.Context, o *IO, args []string, inShell bool) int {
	c.Flags.SetOutput(io.Discard)

	err := c.Flags.Parse(args)
	if errors.Is(err, flag.ErrHelp) {
		c.PrintHelp(o, inShell)

		return 0
	}

	if err != nil {
		o.ErrPrintln("error:", err)

		if inShell {
			o.ErrPrintln("run '" + c.Name() + " --help' for usage")
		} else {
			o.ErrPrintln()
			c.PrintHelp(o, false)
		}

		return 1
	}

	err = c.Exec(ctx, o, c.Flags.Args())

	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		o.ErrPrintln("error: interrupted")

		return exitInterrupted
	default:
		o.ErrPrintln("error:", err)

		return 1
	}
}
