package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/robohen/robohen/internal/vfs"
)

// ConfigCmd implements "robohen config" (print the effective configuration
// and which files contributed it) and "robohen config --init" (write a
// project .robohen.json stub with the current effective settings).
func ConfigCmd(fs vfs.FS, cfg Config, sources ConfigSources) *Command {
	fset := flag.NewFlagSet("config", flag.ContinueOnError)
	initFlag := fset.Bool("init", false, "Write the effective config to ./"+ConfigFileName)

	return &Command{
		Flags: fset,
		Usage: "config",
		Short: "Show or write the effective configuration",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			body, err := FormatConfig(cfg)
			if err != nil {
				return err
			}

			if *initFlag {
				if err := fs.WriteFileAtomic(ConfigFileName, []byte(body+"\n"), 0o644); err != nil {
					return err
				}

				o.Println("wrote", ConfigFileName)

				return nil
			}

			o.Println(body)

			if sources.Global != "" {
				o.Println("# global:", sources.Global)
			}

			if sources.Project != "" {
				o.Println("# project:", sources.Project)
			}

			return nil
		},
	}
}
