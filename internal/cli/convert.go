package cli

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/cavaliercoder/go-cpio"
	flag "github.com/spf13/pflag"

	"github.com/robohen/robohen/internal/vfs"
)

// ConvertCmd implements "robohen convert --from-cpio <path>": imports every
// regular file in a cpio archive as a logical file, for migrating existing
// cpio-based payloads into an archive.
func ConvertCmd(fs vfs.FS, cfg Config) *Command {
	fset := flag.NewFlagSet("convert", flag.ContinueOnError)
	fromCpio := fset.String("from-cpio", "", "Import regular files from the cpio archive at `path`")

	return &Command{
		Flags: fset,
		Usage: "convert --from-cpio <path>",
		Short: "Import entries from a cpio archive",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			if *fromCpio == "" {
				return errors.New("convert requires --from-cpio <path>")
			}

			src, err := os.Open(*fromCpio) //nolint:gosec // CLI-provided path
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			r := cpio.NewReader(src)

			count := 0

			for {
				hdr, err := r.Next()
				if errors.Is(err, io.EOF) {
					break
				}

				if err != nil {
					return err
				}

				if !hdr.Mode.IsRegular() {
					continue
				}

				data := make([]byte, hdr.Size)
				if _, err := io.ReadFull(r, data); err != nil {
					return err
				}

				if err := m.WriteFile(ctx, hdr.Name, data); err != nil {
					return err
				}

				count++
			}

			o.Println("imported", count, "entries from", *fromCpio)

			return nil
		},
	}
}
