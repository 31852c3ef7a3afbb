package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"
)

// GetCmd returns the get command.
func GetCmd(s *session) *Command {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	fields := fset.StringSliceP("field", "f", nil, "Only print these `fields` (comma separated)")

	return &Command{
		Flags: fset,
		Usage: "get [-f fields] <id>",
		Short: "Print a document",
		Long:  "Print every field of the document as field=value, one per line.",
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execGet(o, s, *fields, args)
		},
	}
}

func execGet(o *IO, s *session, only []string, args []string) error {
	if len(args) == 0 {
		return ErrIDRequired
	}

	if len(args) > 1 {
		return fmt.Errorf("%w: %v", ErrTooManyArgs, args[1:])
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	doc, err := db.ReadDocument(id)
	if err != nil {
		return err
	}

	fields := doc.Fields()
	if len(only) > 0 {
		fields = only
	}

	for _, field := range fields {
		v, found, err := doc.Get(field)
		if err != nil {
			return err
		}

		if !found {
			o.Warn("document %d has no field %q", id, field)

			continue
		}

		o.Printf("%s=%s\n", field, formatValue(v))
	}

	return nil
}
