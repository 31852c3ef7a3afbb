package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docpager/pkg/pager"
)

// PutCmd returns the put command.
func PutCmd(s *session) *Command {
	fset := flag.NewFlagSet("put", flag.ContinueOnError)
	id := fset.Uint64("id", 0, "Update the document with this `id` instead of creating one")
	raw := fset.Bool("raw", false, "Store every value as a string")
	unset := fset.StringArray("unset", nil, "Remove `field` from the document (repeatable, requires --id)")

	return &Command{
		Flags: fset,
		Usage: "put [--id N] [--raw] field=value...",
		Short: "Create or update a document",
		Long: `Create a new document, or update an existing one with --id.

Values are typed by their spelling: null, true/false, integers, floats,
0x-prefixed hex bytes and "quoted" strings. Anything else is a string.
Use --raw to store every value as a string.

Prints the document id.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			return execPut(o, s, pager.DocID(*id), *raw, *unset, args)
		},
	}
}

func execPut(o *IO, s *session, id pager.DocID, raw bool, unset, args []string) error {
	if len(args) == 0 && len(unset) == 0 {
		return ErrNothingToWrite
	}

	if len(unset) > 0 && id == 0 {
		return ErrUnsetNeedsID
	}

	type assignment struct {
		field string
		value any
	}

	assignments := make([]assignment, 0, len(args))

	for _, arg := range args {
		field, value, err := parseAssignment(arg, raw)
		if err != nil {
			return err
		}

		assignments = append(assignments, assignment{field: field, value: value})
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	var doc *pager.Document

	if id == 0 {
		doc, err = db.NewDocument()
	} else {
		doc, err = db.ReadDocument(id)
	}

	if err != nil {
		return err
	}

	for _, a := range assignments {
		err = doc.Set(a.field, a.value)
		if err != nil {
			return err
		}
	}

	for _, field := range unset {
		if _, ok := doc.Content[field]; !ok {
			o.Warn("document %d has no field %q", doc.ID(), field)

			continue
		}

		doc.Delete(field)
	}

	err = db.WriteDocument(doc)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}

	o.Println(uint64(doc.ID()))

	return nil
}
