package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/peterh/liner"

	"github.com/robohen/robohen/internal/vfs"
	"github.com/robohen/robohen/pkg/archive"
)

// ShellCmd implements "robohen shell": an interactive REPL over a single
// open archive handle, so a human can exercise the single-handle
// concurrency discipline (spec.md §5) directly instead of one command
// invocation per operation.
func ShellCmd(fs vfs.FS, cfg Config) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Open an interactive shell against the archive",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			m, err := openManager(ctx, fs, cfg, false)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close(ctx) }()

			return runShell(ctx, o, m)
		},
	}
}

func shellHistoryFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".robohen_history")
}

func runShell(ctx context.Context, o *IO, m *archive.Manager) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		cmds := []string{"ls", "read", "write", "append", "rm", "mv", "stat", "truncate", "help", "exit"}

		var out []string

		for _, c := range cmds {
			if strings.HasPrefix(c, prefix) {
				out = append(out, c)
			}
		}

		return out
	})

	if f, err := os.Open(shellHistoryFile()); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	o.Println("robohen shell - type 'help' for commands, 'exit' to quit")

	for {
		input, err := line.Prompt("robohen> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				o.Println()

				break
			}

			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		fields := strings.Fields(input)
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		if cmd == "exit" || cmd == "quit" {
			break
		}

		if err := execShellCommand(ctx, o, m, cmd, args); err != nil {
			o.ErrPrintln("error:", err)
		}
	}

	if f, err := os.Create(shellHistoryFile()); err == nil {
		_, _ = line.WriteHistory(f)
		_ = f.Close()
	}

	return nil
}

func execShellCommand(ctx context.Context, o *IO, m *archive.Manager, cmd string, args []string) error {
	switch cmd {
	case "help", "?":
		o.Println("ls, read <name>, write <name> <src>, append <name> <src>, rm <name>, mv <old> <new>, stat <name>, truncate <name> <n>, exit")

		return nil
	case "ls":
		files, err := m.ListFiles(ctx)
		if err != nil {
			return err
		}

		printLogicalTable(o, files)

		return nil
	case "read":
		if len(args) != 1 {
			return errShellUsage
		}

		data, err := m.ReadFile(ctx, args[0])
		if err != nil {
			return err
		}

		o.Println(string(data))

		return nil
	case "write":
		if len(args) != 2 {
			return errShellUsage
		}

		data, err := os.ReadFile(args[1]) //nolint:gosec // shell-provided path
		if err != nil {
			return err
		}

		return m.WriteFile(ctx, args[0], data)
	case "append":
		if len(args) != 2 {
			return errShellUsage
		}

		data, err := os.ReadFile(args[1]) //nolint:gosec // shell-provided path
		if err != nil {
			return err
		}

		return m.AppendFile(ctx, args[0], data)
	case "rm":
		if len(args) != 1 {
			return errShellUsage
		}

		return m.DeleteFile(ctx, args[0])
	case "mv":
		if len(args) != 2 {
			return errShellUsage
		}

		return m.RenameFile(ctx, args[0], args[1])
	case "truncate":
		if len(args) != 2 {
			return errShellUsage
		}

		n, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return err
		}

		return m.TruncateFile(ctx, args[0], n)
	case "stat":
		if len(args) != 1 {
			return errShellUsage
		}

		files, err := m.ListFiles(ctx)
		if err != nil {
			return err
		}

		for _, f := range files {
			if f.Name == args[0] {
				o.Println("size:", f.Size, "parts:", len(f.Parts))

				return nil
			}
		}

		return archive.ErrNotFound
	default:
		return errShellUnknown
	}
}

var (
	errShellUsage   = errors.New("wrong number of arguments")
	errShellUnknown = errors.New("unknown command, type 'help'")
)
