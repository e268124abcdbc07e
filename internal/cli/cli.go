// Package cli implements the aidoc command line: gen documents Java files, ping checks the configured endpoint, and models lists what it serves.
package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Version is the aidoc version. It is a var so build tooling can override it (ex: via `-ldflags "-X .../internal/cli.Version=1.2.3"`).
var Version = "0.1.0"

// RunOptions overrides standard I/O and the environment. Nil fields use the process defaults. Overriding is useful for testing.
type RunOptions struct {
	In     io.Reader
	Out    io.Writer
	Err    io.Writer
	Getenv func(string) string
}

// usageError marks errors caused by how the command was invoked (bad flags, missing arguments).
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// errFailures is returned when a run completed but some declarations failed. The details have already been printed.
var errFailures = errors.New("some declarations could not be documented")

// Run runs the CLI with args (typically os.Args).
//
// It returns a recommended exit code (0, 1, or 2) and an error, if any:
//   - 0 -> err == nil
//   - 1 -> err != nil, but args were sound (ex: the endpoint is down, a declaration failed).
//   - 2 -> err != nil, args parse error or misuse of flags.
//
// Errors have already been printed to opts.Err (or stderr) when Run returns.
func Run(ctx context.Context, args []string, opts *RunOptions) (int, error) {
	argv := args
	if len(argv) > 0 {
		argv = argv[1:]
	}

	env := &environment{in: os.Stdin, out: os.Stdout, err: os.Stderr, getenv: os.Getenv}
	if opts != nil {
		if opts.In != nil {
			env.in = opts.In
		}
		if opts.Out != nil {
			env.out = opts.Out
		}
		if opts.Err != nil {
			env.err = opts.Err
		}
		if opts.Getenv != nil {
			env.getenv = opts.Getenv
		}
	}

	root := newRootCommand(env)
	root.SetArgs(argv)
	root.SetIn(env.in)
	root.SetOut(env.out)
	root.SetErr(env.err)

	err := root.ExecuteContext(ctx)
	env.close()
	if err == nil {
		return 0, nil
	}
	if !errors.Is(err, errFailures) {
		fmt.Fprintf(env.err, "aidoc: %v\n", err)
	}
	var ue usageError
	if errors.As(err, &ue) || isCobraUsageError(err) {
		return 2, err
	}
	return 1, err
}

// isCobraUsageError recognizes the argument errors cobra reports for unknown commands.
func isCobraUsageError(err error) bool {
	return strings.HasPrefix(err.Error(), "unknown command") || strings.HasPrefix(err.Error(), "unknown flag")
}

// environment is the I/O and settings shared by every command in one Run.
type environment struct {
	in     io.Reader
	out    io.Writer
	err    io.Writer
	getenv func(string) string

	configFile string
	provider   string
	model      string
	baseURL    string
	verbose    bool

	log     *slog.Logger
	logFile *os.File
}

// logger logs warnings and errors to stderr (everything with --verbose). If AIDOC_LOG_FILE is set, every record at debug level and above is also appended to that
// file; an unopenable log file is ignored.
func (e *environment) logger() *slog.Logger {
	if e.log != nil {
		return e.log
	}
	level := slog.LevelWarn
	if e.verbose {
		level = slog.LevelDebug
	}
	var w io.Writer = e.err
	if path := e.getenv("AIDOC_LOG_FILE"); path != "" {
		if f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			e.logFile = f
			w = &splitWriter{stderr: e.err, file: f, verbose: e.verbose}
			level = slog.LevelDebug
		}
	}
	e.log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return e.log
}

// close releases the log file, if one was opened.
func (e *environment) close() {
	if e.logFile != nil {
		_ = e.logFile.Close()
		e.logFile = nil
	}
}

// splitWriter sends every record to file, and only warnings and errors to stderr unless verbose. slog's text handler writes one record per Write call.
type splitWriter struct {
	stderr  io.Writer
	file    io.Writer
	verbose bool
}

func (w *splitWriter) Write(p []byte) (int, error) {
	if _, err := w.file.Write(p); err != nil {
		return 0, err
	}
	if w.verbose || bytes.Contains(p, []byte("level=WARN")) || bytes.Contains(p, []byte("level=ERROR")) {
		return w.stderr.Write(p)
	}
	return len(p), nil
}

// colorOut reports whether stdout is a terminal that should get ANSI colors.
func (e *environment) colorOut() bool {
	f, ok := e.out.(*os.File)
	if !ok || e.getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func newRootCommand(env *environment) *cobra.Command {
	root := &cobra.Command{
		Use:   "aidoc",
		Short: "Generate Javadoc comments with a language model",
		Long: `aidoc extracts Java declarations, asks a language model to document them, and merges the answers back as Javadoc comments.
Existing doc comments are kept unless --overwrite is given. Without --write, changes are printed as a unified diff.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&env.configFile, "config", "", `user config file (default ~/.aidoc/config.yaml; "-" to skip)`)
	pf.StringVar(&env.provider, "provider", "", "provider: openai, ollama, lmstudio, qianwen, siliconflow, gemini, custom")
	pf.StringVar(&env.model, "model", "", "model name (default: the provider's)")
	pf.StringVar(&env.baseURL, "base-url", "", "endpoint base URL (default: the provider's)")
	pf.BoolVarP(&env.verbose, "verbose", "v", false, "log prompts, replies, and retries to stderr")

	root.AddCommand(newGenCommand(env), newPingCommand(env), newModelsCommand(env))
	return root
}
