package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/docpager/internal/config"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(cfg *config.Config) *Command {
	fset := flag.NewFlagSet("print-config", flag.ContinueOnError)
	asJSON := fset.Bool("json", false, "Print the settings as JSON")

	return &Command{
		Flags: fset,
		Usage: "print-config [--json]",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, io *IO, _ []string) error {
			if *asJSON {
				out, err := config.Format(*cfg)
				if err != nil {
					return err
				}

				io.Println(out)

				return nil
			}

			return execPrintConfig(io, cfg)
		},
	}
}

func execPrintConfig(io *IO, cfg *config.Config) error {
	io.Println("effective_cwd=" + cfg.EffectiveCwd)
	io.Println("db_path=" + cfg.DBPathAbs)
	io.Println("log_level=" + cfg.LogLevel)
	io.Println("log_format=" + cfg.LogFormat)
	io.Println("writeback=" + cfg.Writeback)
	io.Println("disable_locking=" + strconv.FormatBool(cfg.DisableLocking))

	io.Println("")
	io.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		io.Println("(defaults only)")
	} else {
		if cfg.Sources.Global != "" {
			io.Println("global_config=" + cfg.Sources.Global)
		}

		if cfg.Sources.Project != "" {
			io.Println("project_config=" + cfg.Sources.Project)
		}
	}

	return nil
}
