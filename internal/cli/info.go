package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

// InfoCmd returns the info command.
func InfoCmd(s *session) *Command {
	fset := flag.NewFlagSet("info", flag.ContinueOnError)
	showFree := fset.Bool("free", false, "List free page numbers")

	return &Command{
		Flags: fset,
		Usage: "info [--free]",
		Short: "Show page usage",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			db, err := s.open()
			if err != nil {
				return err
			}

			stats, err := db.Stats()
			if err != nil {
				return err
			}

			o.Println("path=" + s.cfg.DBPathAbs)
			o.Printf("page_size=%d\n", stats.PageSize)
			o.Printf("last_used_page=%d\n", stats.LastUsedPage)
			o.Printf("free_pages=%d\n", len(stats.FreePages))
			o.Printf("indexed_fields=%d\n", stats.IndexedFields)

			if *showFree {
				for _, page := range stats.FreePages {
					o.Printf("free %d\n", page)
				}
			}

			return nil
		},
	}
}
