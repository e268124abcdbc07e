package cli

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codalotl/aidoc/internal/apply"
	"github.com/codalotl/aidoc/internal/batch"
	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/docgen"
	"github.com/codalotl/aidoc/internal/javasyntax"
	"github.com/codalotl/aidoc/internal/llmcomplete"

	"github.com/spf13/cobra"
)

// loadConfig loads layered configuration, looking for a project file from startDir, then applies the global flags.
func (e *environment) loadConfig(startDir string) (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{UserFile: e.configFile, StartDir: startDir, Getenv: e.getenv})
	if err != nil {
		return config.Config{}, err
	}
	if e.provider != "" {
		if e.provider != cfg.Client.Provider && e.model == "" {
			cfg.Client.Model = ""
		}
		cfg.Client.Provider = e.provider
		if p, ok := llmcomplete.GetProvider(llmcomplete.ProviderID(e.provider)); ok && p.KeyEnv != "" {
			if key := e.getenv(p.KeyEnv); key != "" {
				cfg.Client.APIKey = key
			}
		}
	}
	if e.model != "" {
		cfg.Client.Model = e.model
	}
	if e.baseURL != "" {
		cfg.Client.BaseURL = e.baseURL
	}
	return cfg, nil
}

func (e *environment) completer(ctx context.Context, cfg config.Client) (llmcomplete.Completer, error) {
	return llmcomplete.New(ctx, llmcomplete.Options{
		Provider: llmcomplete.ProviderID(cfg.Provider),
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		Logger:   e.logger(),
	})
}

type genFlags struct {
	write       bool
	overwrite   bool
	verbosity   string
	lang        string
	tags        string
	concurrency int
	kinds       string
}

func newGenCommand(env *environment) *cobra.Command {
	var f genFlags
	cmd := &cobra.Command{
		Use:   "gen [flags] <file-or-dir>...",
		Short: "Document the declarations in Java files",
		Example: `  # Preview docs for every declaration under src/
  aidoc gen src/

  # Write terse docs for methods only, replacing existing comments
  aidoc gen --write --overwrite --verbosity terse --kinds method Calc.java`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageError{fmt.Errorf("gen requires at least one file or directory")}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGen(cmd, env, f, args)
		},
	}
	fl := cmd.Flags()
	fl.BoolVarP(&f.write, "write", "w", false, "write results to the files instead of printing a diff")
	fl.BoolVar(&f.overwrite, "overwrite", false, "replace existing doc comments")
	fl.StringVar(&f.verbosity, "verbosity", "", "terse, standard, or detailed")
	fl.StringVar(&f.lang, "lang", "", "natural language to write docs in (ex: English, Chinese)")
	fl.StringVar(&f.tags, "tags", "", "comma-separated tags: param, return, throws, since, author")
	fl.IntVarP(&f.concurrency, "concurrency", "j", 0, "maximum concurrent requests (1..8)")
	fl.StringVar(&f.kinds, "kinds", "", "comma-separated declaration kinds to document (ex: method,field); default all")
	return cmd
}

func runGen(cmd *cobra.Command, env *environment, f genFlags, args []string) error {
	ctx := cmd.Context()

	kinds, err := parseKinds(f.kinds)
	if err != nil {
		return usageError{err}
	}

	startDir := args[0]
	if info, err := os.Stat(startDir); err == nil && !info.IsDir() {
		startDir = filepath.Dir(startDir)
	}
	cfg, err := env.loadConfig(startDir)
	if err != nil {
		return err
	}
	fl := cmd.Flags()
	if fl.Changed("overwrite") {
		cfg.Doc.OverwriteExisting = f.overwrite
	}
	if f.verbosity != "" {
		cfg.Doc.Verbosity = f.verbosity
	}
	if f.lang != "" {
		cfg.Doc.TargetLanguage = f.lang
	}
	if fl.Changed("tags") {
		tags, err := config.ParseTags(f.tags)
		if err != nil {
			return usageError{err}
		}
		cfg.Doc.IncludeTags = tags
	}
	if f.concurrency != 0 {
		cfg.Client.Concurrency = f.concurrency
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}

	paths, err := javaFiles(args)
	if err != nil {
		return err
	}

	logger := env.logger()
	var files []batch.File
	for _, path := range paths {
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		tree, err := javasyntax.Parse(ctx, src)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if tree.HasErrors() {
			logger.Warn("cli.syntax_errors", "path", path)
		}
		files = append(files, batch.File{Path: path, Src: src, View: tree, Ranges: batch.Ranges(tree, kinds...)})
	}

	completer, err := env.completer(ctx, cfg.Client)
	if err != nil {
		return err
	}
	client := docgen.New(completer, cfg.Client, logger)
	res := batch.New(client, logger).Run(ctx, files, cfg)

	for _, file := range files {
		out, err := apply.All(file.Src, res.MergeResults(file.Path))
		if err != nil {
			return fmt.Errorf("%s: %w", file.Path, err)
		}
		if bytes.Equal(out, file.Src) {
			continue
		}
		if f.write {
			info, err := os.Stat(file.Path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(file.Path, out, info.Mode().Perm()); err != nil {
				return err
			}
			continue
		}
		d, err := apply.UnifiedDiff(file.Path, file.Src, out, env.colorOut())
		if err != nil {
			return err
		}
		fmt.Fprint(env.out, d)
	}

	srcByPath := make(map[string][]byte, len(files))
	for _, file := range files {
		srcByPath[file.Path] = file.Src
	}
	for _, o := range res.Outcomes {
		if o.Status != batch.StatusFailed {
			continue
		}
		line := bytes.Count(srcByPath[o.Path][:o.Range.Start], []byte("\n")) + 1
		name := o.Name
		if name == "" {
			name = "declaration"
		}
		fmt.Fprintf(env.err, "%s:%d: %s: %s failed: %v\n", o.Path, line, name, o.Stage, o.Err)
	}
	fmt.Fprintf(env.err, "aidoc: %d applied, %d skipped, %d failed, %d cancelled in %s\n", res.Applied, res.Skipped, res.Failed, res.Cancelled, res.Elapsed.Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return err
	}
	if res.Failed > 0 {
		return errFailures
	}
	return nil
}

// javaFiles expands directories to the .java files under them, in lexical order. Explicit file arguments are kept as given.
func javaFiles(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && path != arg && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".java") {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

var kindNames = map[string][]decl.Kind{
	"method":      {decl.KindMethod},
	"constructor": {decl.KindConstructor},
	"field":       {decl.KindField},
	"type":        {decl.KindClass, decl.KindInterface, decl.KindEnum, decl.KindRecord, decl.KindAnnotation},
	"class":       {decl.KindClass},
	"interface":   {decl.KindInterface},
	"enum":        {decl.KindEnum},
	"record":      {decl.KindRecord},
	"annotation":  {decl.KindAnnotation},
}

func parseKinds(s string) ([]decl.Kind, error) {
	var out []decl.Kind
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		kinds, ok := kindNames[part]
		if !ok {
			return nil, fmt.Errorf("unknown declaration kind %q", part)
		}
		out = append(out, kinds...)
	}
	return out, nil
}

func newPingCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the configured endpoint, model, and credential work",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := env.loadConfig("")
			if err != nil {
				return err
			}
			completer, err := env.completer(ctx, cfg.Client)
			if err != nil {
				return err
			}
			if err := docgen.New(completer, cfg.Client, env.logger()).Ping(ctx); err != nil {
				return err
			}
			model := cfg.Client.Model
			if p, ok := llmcomplete.GetProvider(llmcomplete.ProviderID(cfg.Client.Provider)); ok && model == "" {
				model = p.DefaultModel
			}
			fmt.Fprintf(env.out, "ok: %s (%s)\n", cfg.Client.Provider, model)
			return nil
		},
	}
}

func newModelsCommand(env *environment) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models the configured endpoint serves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := env.loadConfig("")
			if err != nil {
				return err
			}
			completer, err := env.completer(ctx, cfg.Client)
			if err != nil {
				return err
			}
			lister, ok := completer.(llmcomplete.ModelLister)
			if !ok {
				return fmt.Errorf("provider %s cannot list models", cfg.Client.Provider)
			}
			models, err := lister.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Fprintln(env.out, m)
			}
			return nil
		},
	}
}
