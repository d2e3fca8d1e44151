package cli

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/robohen/robohen/internal/vfs"
)

// errVerifyFailed is returned when the invariant walk below finds at least
// one violation, so Command.Run reports a non-zero exit code without
// needing its own error message (the violations were already printed).
var errVerifyFailed = errors.New("archive invariant violation")

// VerifyCmd implements "robohen verify": walks every structural invariant
// of spec.md §3 (header alignment, chain-link symmetry, PART_SUFFIX
// placement, the archive's trailing zero blocks, reserved attribute
// placement), then checksums every logical file. Checksum reads are
// fanned out across an errgroup, but every one still serializes through
// the Manager's single internal mutex (spec.md §5) - concurrency here only
// overlaps checksum computation with the next file's read, not archive
// access itself.
func VerifyCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("verify", flag.ContinueOnError),
		Usage: "verify",
		Short: "Check archive invariants and checksum every logical file",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			m, err := openManager(ctx, fs, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			violations, err := m.CheckInvariants(ctx)
			if err != nil {
				return err
			}

			for _, v := range violations {
				o.ErrPrintln("invariant violation:", v)
			}

			files, err := m.ListFiles(ctx)
			if err != nil {
				return err
			}

			sums := make([]string, len(files))

			g, gctx := errgroup.WithContext(ctx)

			for i, f := range files {
				i, f := i, f

				g.Go(func() error {
					data, err := m.ReadFile(gctx, f.Name)
					if err != nil {
						return fmt.Errorf("%s: %w", f.Name, err)
					}

					sums[i] = fmt.Sprintf("%x", sha256.Sum256(data))

					return nil
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}

			for i, f := range files {
				o.Printf("%s  %s\n", sums[i], f.Name)
			}

			if len(violations) > 0 {
				return errVerifyFailed
			}

			return nil
		},
	}
}
