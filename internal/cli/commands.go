package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/mattn/go-runewidth"

	"github.com/robohen/robohen/internal/sectorsize"
	"github.com/robohen/robohen/internal/vfs"
	"github.com/robohen/robohen/pkg/archive"
)

// openManager opens cfg's archive on fs, applying the configured partition
// size. Every command opens and closes its own handle: the archive engine's
// single-handle discipline (spec.md §5) means there is no benefit to
// keeping one open across commands within a single process invocation.
func openManager(ctx context.Context, fs vfs.FS, cfg Config, readOnly bool) (*archive.Manager, error) {
	return archive.Open(ctx, fs, archive.Options{
		Path:             cfg.ArchivePath,
		MaxPartitionSize: cfg.MaxPartitionSize,
		SectorSize:       sectorsize.Probe(cfg.ArchivePath),
		ReadOnly:         readOnly,
		NamePolicy:       archive.NamePolicySanitize,
	})
}

// CreateCmd implements "robohen create": ensure an empty archive exists at
// the configured path.
func CreateCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("create", flag.ContinueOnError),
		Usage: "create",
		Short: "Create an empty archive",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}

			o.Println("created", cfg.ArchivePath)

			return m.Close(ctx)
		},
	}
}

// WriteCmd implements "robohen write <name> <src-file>".
func WriteCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("write", flag.ContinueOnError),
		Usage: "write <name> <src-file>",
		Short: "Write a local file's content as a logical file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return errors.New("write requires <name> and <src-file>")
			}

			data, err := os.ReadFile(args[1]) //nolint:gosec // CLI-provided path
			if err != nil {
				return err
			}

			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			if err := m.WriteFile(ctx, args[0], data); err != nil {
				return err
			}

			o.Println("wrote", len(data), "bytes to", args[0])

			return nil
		},
	}
}

// ReadCmd implements "robohen read <name>" with optional "-o <file>".
func ReadCmd(fs vfs.FS, cfg Config) *Command {
	fset := flag.NewFlagSet("read", flag.ContinueOnError)
	out := fset.StringP("output", "o", "", "Write content to `file` instead of stdout")

	return &Command{
		Flags: fset,
		Usage: "read <name>",
		Short: "Print a logical file's content",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("read requires <name>")
			}

			m, err := openManager(ctx, fs, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			data, err := m.ReadFile(ctx, args[0])
			if err != nil {
				return err
			}

			if *out != "" {
				return os.WriteFile(*out, data, 0o644) //nolint:gosec // CLI-provided path
			}

			_, err = o.Write(data)

			return err
		},
	}
}

// AppendCmd implements "robohen append <name> <src-file>".
func AppendCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("append", flag.ContinueOnError),
		Usage: "append <name> <src-file>",
		Short: "Append a local file's content to a logical file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return errors.New("append requires <name> and <src-file>")
			}

			data, err := os.ReadFile(args[1]) //nolint:gosec // CLI-provided path
			if err != nil {
				return err
			}

			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			if err := m.AppendFile(ctx, args[0], data); err != nil {
				return err
			}

			o.Println("appended", len(data), "bytes to", args[0])

			return nil
		},
	}
}

// TruncateCmd implements "robohen truncate <name> <length>".
func TruncateCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("truncate", flag.ContinueOnError),
		Usage: "truncate <name> <length>",
		Short: "Resize a logical file to an exact byte length",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return errors.New("truncate requires <name> and <length>")
			}

			var length uint64
			if _, err := fmt.Sscanf(args[1], "%d", &length); err != nil {
				return fmt.Errorf("invalid length %q: %w", args[1], err)
			}

			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			if err := m.TruncateFile(ctx, args[0], length); err != nil {
				return err
			}

			o.Println("truncated", args[0], "to", length, "bytes")

			return nil
		},
	}
}

// RmCmd implements "robohen rm <name>".
func RmCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: "rm <name>",
		Short: "Delete a logical file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("rm requires <name>")
			}

			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			if err := m.DeleteFile(ctx, args[0]); err != nil {
				return err
			}

			o.Println("removed", args[0])

			return nil
		},
	}
}

// MvCmd implements "robohen mv <old> <new>".
func MvCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("mv", flag.ContinueOnError),
		Usage: "mv <old> <new>",
		Short: "Rename a logical file",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 2 {
				return errors.New("mv requires <old> and <new>")
			}

			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			if err := m.RenameFile(ctx, args[0], args[1]); err != nil {
				return err
			}

			o.Println("renamed", args[0], "to", args[1])

			return nil
		},
	}
}

// LsCmd implements "robohen ls" (logical files) and "robohen ls --raw"
// (physical entries with chain pointers), column-aligned with
// go-runewidth so names containing wide runes still line up.
func LsCmd(fs vfs.FS, cfg Config) *Command {
	fset := flag.NewFlagSet("ls", flag.ContinueOnError)
	raw := fset.Bool("raw", false, "List physical entries instead of logical files")

	return &Command{
		Flags: fset,
		Usage: "ls",
		Short: "List files in the archive",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			m, err := openManager(ctx, fs, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			if *raw {
				entries, err := m.ListRawEntries(ctx)
				if err != nil {
					return err
				}

				printRawTable(o, entries)

				return nil
			}

			files, err := m.ListFiles(ctx)
			if err != nil {
				return err
			}

			printLogicalTable(o, files)

			return nil
		},
	}
}

func padColumn(s string, width int) string {
	pad := width - runewidth.StringWidth(s)
	if pad < 0 {
		pad = 0
	}

	return s + strings.Repeat(" ", pad)
}

func printLogicalTable(o *IO, files []archive.LogicalFile) {
	nameWidth := len("NAME")
	for _, f := range files {
		if w := runewidth.StringWidth(f.Name); w > nameWidth {
			nameWidth = w
		}
	}

	o.Printf("%s  %s\n", padColumn("NAME", nameWidth), "SIZE")

	for _, f := range files {
		o.Printf("%s  %d\n", padColumn(f.Name, nameWidth), f.Size)
	}
}

func printRawTable(o *IO, entries []archive.RawEntry) {
	nameWidth := len("NAME")
	for _, e := range entries {
		if w := runewidth.StringWidth(e.Name); w > nameWidth {
			nameWidth = w
		}
	}

	o.Printf("%s  %-10s  %-10s  %s -> %s\n", padColumn("NAME", nameWidth), "SIZE", "OFFSET", "PREV", "NEXT")

	for _, e := range entries {
		prev, next := e.PrevPartName, e.NextPartName
		if prev == "" {
			prev = "-"
		}

		if next == "" {
			next = "-"
		}

		o.Printf("%s  %-10d  %-10d  %s -> %s\n", padColumn(e.Name, nameWidth), e.Size, e.HeaderOffset, prev, next)
	}
}

// StatCmd implements "robohen stat <name>".
func StatCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("stat", flag.ContinueOnError),
		Usage: "stat <name>",
		Short: "Show a logical file's size and partition chain",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) != 1 {
				return errors.New("stat requires <name>")
			}

			m, err := openManager(ctx, fs, cfg, true)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			files, err := m.ListFiles(ctx)
			if err != nil {
				return err
			}

			var (
				f     archive.LogicalFile
				found bool
			)

			for _, candidate := range files {
				if candidate.Name == args[0] {
					f = candidate
					found = true

					break
				}
			}

			if !found {
				return archive.ErrNotFound
			}

			o.Println("name:", f.Name)
			o.Println("size:", f.Size)

			if len(f.Parts) == 0 {
				o.Println("parts: 1 (unsplit)")
			} else {
				o.Println("parts:", len(f.Parts))

				for _, p := range f.Parts {
					o.Println(" ", p)
				}
			}

			return nil
		},
	}
}
