package cli

import (
	"context"
	"errors"
	"os"

	"github.com/klauspost/compress/gzip"
	flag "github.com/spf13/pflag"

	"github.com/robohen/robohen/internal/vfs"
)

// PackCmd implements "robohen pack <name> --gzip -o <file>": streams a
// logical file's content through a gzip writer to a local file, using
// klauspost/compress's drop-in gzip package for its faster encoder.
func PackCmd(fs vfs.FS, cfg Config) *Command {
	fset := flag.NewFlagSet("pack", flag.ContinueOnError)
	useGzip := fset.Bool("gzip", false, "Gzip-compress the output")
	out := fset.StringP("output", "o", "", "Write packed output to `file`")

	return &Command{
		Flags: fset,
		Usage: "pack <name> --gzip -o <file>",
		Short: "Export a logical file, optionally gzip-compressed",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("pack requires <name>")
			}

			if *out == "" {
				return errors.New("pack requires -o <file>")
			}

			m, err := openManager(ctx, fs, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			s, err := m.StreamFile(ctx, args[0])
			if err != nil {
				return err
			}

			dst, err := os.Create(*out) //nolint:gosec // CLI-provided path
			if err != nil {
				return err
			}
			defer func() { _ = dst.Close() }()

			var w interface {
				Write([]byte) (int, error)
				Close() error
			}

			if *useGzip {
				gw := gzip.NewWriter(dst)
				w = gw
			} else {
				w = nopCloser{dst}
			}

			const chunkSize = 1 << 20

			for {
				chunk, ok, err := s.Next(ctx, chunkSize)
				if err != nil {
					return err
				}

				if !ok {
					break
				}

				if _, err := w.Write(chunk); err != nil {
					return err
				}
			}

			if err := w.Close(); err != nil {
				return err
			}

			o.Println("packed", args[0], "to", *out)

			return nil
		},
	}
}

type nopCloser struct {
	w interface{ Write([]byte) (int, error) }
}

func (n nopCloser) Write(p []byte) (int, error) { return n.w.Write(p) }
func (n nopCloser) Close() error                { return nil }
