package cli

import (
	"context"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docpager/pkg/pager"
)

// QueryCmd returns the query command.
func QueryCmd(s *session) *Command {
	fset := flag.NewFlagSet("query", flag.ContinueOnError)
	anyOf := fset.Bool("any", false, "Match documents satisfying any condition (default: all)")
	offset := fset.Int("offset", 0, "Skip the first `n` matches")
	limit := fset.Int("limit", 0, "Print at most `n` matches (0 = no limit)")
	raw := fset.Bool("raw", false, "Treat every value as a string")
	idsOnly := fset.Bool("ids", false, "Print only document ids")

	return &Command{
		Flags: fset,
		Usage: "query [--any] [--offset N] [--limit N] field=value...",
		Short: "Find documents by field values",
		Long: `Find documents whose fields equal the given values, in id order.

Conditions are combined with AND unless --any is given. Values are typed
the same way as for put.`,
		Exec: func(_ context.Context, o *IO, args []string) error {
			mode := pager.MatchAll
			if *anyOf {
				mode = pager.MatchAny
			}

			return execQuery(o, s, args, queryOptions{
				match:   mode,
				offset:  *offset,
				limit:   *limit,
				raw:     *raw,
				idsOnly: *idsOnly,
			})
		},
	}
}

type queryOptions struct {
	match   pager.MatchMode
	offset  int
	limit   int
	raw     bool
	idsOnly bool
}

func execQuery(o *IO, s *session, args []string, opts queryOptions) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: at least one condition required", ErrBadAssignment)
	}

	where := make(map[string]pager.Predicate, len(args))

	for _, arg := range args {
		field, value, err := parseAssignment(arg, opts.raw)
		if err != nil {
			return err
		}

		if _, dup := where[field]; dup {
			o.Warn("condition on %q given more than once, using the last one", field)
		}

		where[field] = pager.Eq(value)
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	docs, err := db.Query(pager.Query{
		Where:  where,
		Match:  opts.match,
		Offset: opts.offset,
		Limit:  opts.limit,
	})
	if err != nil {
		return err
	}

	for _, doc := range docs {
		if opts.idsOnly {
			o.Println(uint64(doc.ID()))

			continue
		}

		line, err := formatDocument(doc)
		if err != nil {
			return err
		}

		o.Println(line)
	}

	return nil
}
