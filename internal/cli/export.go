package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docpager/pkg/pager"
)

const exportFilePerm = 0o644

// ExportCmd returns the export command.
func ExportCmd(s *session) *Command {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)

	return &Command{
		Flags: fset,
		Usage: "export <file>",
		Short: "Write all documents to a JSON file",
		Long: `Write every document as a JSON array of {"id": N, "fields": {...}}.

The file is replaced atomically: readers see the old or the new export,
never a partial one. Byte values are base64 encoded.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			return execExport(ctx, o, s, args)
		},
	}
}

type exportedDoc struct {
	ID     uint64         `json:"id"`
	Fields map[string]any `json:"fields"`
}

func execExport(ctx context.Context, o *IO, s *session, args []string) error {
	if len(args) == 0 {
		return ErrPathRequired
	}

	if len(args) > 1 {
		return fmt.Errorf("%w: %v", ErrTooManyArgs, args[1:])
	}

	path := args[0]
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.cfg.EffectiveCwd, path)
	}

	db, err := s.open()
	if err != nil {
		return err
	}

	docs := []exportedDoc{}

	err = db.ForEach(func(doc *pager.Document) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("export interrupted: %w", err)
		}

		out := exportedDoc{ID: uint64(doc.ID()), Fields: make(map[string]any, len(doc.Content))}

		for _, field := range doc.Fields() {
			v, _, err := doc.Get(field)
			if err != nil {
				o.Warn("document %d field %q skipped: %v", doc.ID(), field, err)

				continue
			}

			out.Fields[field] = jsonValue(v)
		}

		docs = append(docs, out)

		return nil
	})
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}

	err = s.fsys.WriteFileAtomic(path, append(data, '\n'), exportFilePerm)
	if err != nil {
		return err
	}

	o.Printf("exported %d documents to %s\n", len(docs), path)

	return nil
}
