package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/robohen/robohen/internal/vfs"
)

// Run is the main entry point. Returns an exit code.
// sigCh can be nil if signal handling is not needed (e.g. in tests).
func Run(in io.Reader, out, errOut io.Writer, args []string, env []string, sigCh <-chan os.Signal) int {
	globalFlags := flag.NewFlagSet("robohen", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})

	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagArchive := globalFlags.StringP("archive", "a", "", "Override archive `path`")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fprintln(errOut, "error:", err)

			return 1
		}

		workDir = wd
	}

	if globalFlags.Changed("archive") && *flagArchive == "" {
		fprintln(errOut, "error:", errArchivePathEmpty)
		printGlobalOptions(errOut)

		return 1
	}

	cfg, sources, err := LoadConfig(workDir, *flagConfig, Config{ArchivePath: *flagArchive}, globalFlags.Changed("archive"), env)
	if err != nil {
		fprintln(errOut, "error:", err)
		printGlobalOptions(errOut)

		return 1
	}

	fs := vfs.NewReal()

	commands := allCommands(fs, cfg, sources)

	commandMap := make(map[string]*Command, len(commands))
	for _, cmd := range commands {
		commandMap[cmd.Name()] = cmd
	}

	commandAndArgs := globalFlags.Args()

	if *flagHelp || (len(commandAndArgs) == 0 && globalFlags.NFlag() == 0) {
		printUsage(out, commands)

		return 0
	}

	if len(commandAndArgs) == 0 {
		fprintln(errOut, "error: no command provided")
		printUsage(errOut, commands)

		return 1
	}

	cmdName := commandAndArgs[0]

	cmd, ok := commandMap[cmdName]
	if !ok {
		fprintln(errOut, "error: unknown command:", cmdName)
		printUsage(errOut, commands)

		return 1
	}

	cmdIO := NewIO(in, out, errOut)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan int, 1)

	go func() {
		done <- cmd.Run(ctx, cmdIO, commandAndArgs[1:])
	}()

	select {
	case exitCode := <-done:
		return exitCode
	case <-sigCh:
		fprintln(errOut, "shutting down with 5s timeout...")
		cancel()
	}

	select {
	case <-done:
		fprintln(errOut, "graceful shutdown ok (130)")

		return 130
	case <-time.After(5 * time.Second):
		fprintln(errOut, "graceful shutdown timed out, forced exit (130)")

		return 130
	case <-sigCh:
		fprintln(errOut, "graceful shutdown interrupted, forced exit (130)")

		return 130
	}
}

// allCommands returns all commands in display order. Dependencies (the
// resolved archive path and filesystem) are captured via closures in each
// command constructor.
func allCommands(fs vfs.FS, cfg Config, sources ConfigSources) []*Command {
	return []*Command{
		CreateCmd(fs, cfg),
		WriteCmd(fs, cfg),
		ReadCmd(fs, cfg),
		AppendCmd(fs, cfg),
		LsCmd(fs, cfg),
		StatCmd(fs, cfg),
		RmCmd(fs, cfg),
		MvCmd(fs, cfg),
		TruncateCmd(fs, cfg),
		VerifyCmd(fs, cfg),
		ShellCmd(fs, cfg),
		ConvertCmd(fs, cfg),
		PackCmd(fs, cfg),
		ConfigCmd(fs, cfg, sources),
	}
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

const globalOptionsHelp = `  -h, --help             Show help
  -C, --cwd <dir>        Run as if started in <dir>
  -c, --config <file>    Use specified config file
  -a, --archive <path>   Override archive path`

func printGlobalOptions(w io.Writer) {
	fprintln(w, "Usage: robohen [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Global flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Run 'robohen --help' for a list of commands.")
}

func printUsage(w io.Writer, commands []*Command) {
	fprintln(w, "robohen - a single-file archive engine")
	fprintln(w)
	fprintln(w, "Usage: robohen [flags] <command> [args]")
	fprintln(w)
	fprintln(w, "Flags:")
	fprintln(w, globalOptionsHelp)
	fprintln(w)
	fprintln(w, "Commands:")

	for _, cmd := range commands {
		fprintln(w, cmd.HelpLine())
	}
}
