package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/codalotl/aidoc/internal/llmcomplete"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation and parse failure.
var ErrInvalid = errors.New("config: invalid")

// ProjectFileName is looked up from the start directory towards the filesystem root.
const ProjectFileName = ".aidoc.yaml"

// LoadOptions controls Load. Zero values mean: user file at ~/.aidoc/config.yaml, start directory is the working directory, environment from os.Getenv.
type LoadOptions struct {
	UserFile string // "-" skips the user file
	StartDir string
	Getenv   func(string) string
}

var validate = validator.New()

// Load returns Default() overlaid with the user file, the nearest project file, and the environment, validated. Missing files are skipped.
func Load(opts LoadOptions) (Config, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.UserFile == "" {
		if home, err := os.UserHomeDir(); err == nil {
			opts.UserFile = filepath.Join(home, ".aidoc", "config.yaml")
		}
	}
	if opts.StartDir == "" {
		if wd, err := os.Getwd(); err == nil {
			opts.StartDir = wd
		}
	}

	cfg := Default()

	if opts.UserFile != "" && opts.UserFile != "-" {
		if err := mergeFile(&cfg, opts.UserFile); err != nil {
			return Config{}, err
		}
	}
	if opts.StartDir != "" {
		if path, ok := findProjectFile(opts.StartDir); ok {
			if err := mergeFile(&cfg, path); err != nil {
				return Config{}, err
			}
		}
	}
	if err := applyEnv(&cfg, opts.Getenv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse overlays YAML from r onto cfg. Unknown keys are an error.
func Parse(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := Parse(cfg, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// findProjectFile walks from dir to the root and returns the first ProjectFileName found.
func findProjectFile(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		path := filepath.Join(dir, ProjectFileName)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// applyEnv applies AIDOC_* overrides, then fills APIKey from the provider's key variable if still empty.
func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := getenv(name); v != "" {
			*dst = v
		}
	}
	str("AIDOC_PROVIDER", &cfg.Client.Provider)
	str("AIDOC_BASE_URL", &cfg.Client.BaseURL)
	str("AIDOC_MODEL", &cfg.Client.Model)
	str("AIDOC_API_KEY", &cfg.Client.APIKey)
	str("AIDOC_LANGUAGE", &cfg.Doc.TargetLanguage)
	str("AIDOC_VERBOSITY", &cfg.Doc.Verbosity)

	if v := getenv("AIDOC_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: AIDOC_TIMEOUT: %w", ErrInvalid, err)
		}
		cfg.Client.Timeout = d
	}
	if v := getenv("AIDOC_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: AIDOC_CONCURRENCY: %w", ErrInvalid, err)
		}
		cfg.Client.Concurrency = n
	}
	if v := getenv("AIDOC_TAGS"); v != "" {
		tags, err := ParseTags(v)
		if err != nil {
			return err
		}
		cfg.Doc.IncludeTags = tags
	}

	if cfg.Client.APIKey == "" {
		if p, ok := llmcomplete.GetProvider(llmcomplete.ProviderID(cfg.Client.Provider)); ok && p.KeyEnv != "" {
			cfg.Client.APIKey = getenv(p.KeyEnv)
		}
	}
	return nil
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value: %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return validateConfig(c)
}

func validateConfig(c Config) error {
	if c.Client.MaxDelay < c.Client.BaseDelay {
		return fmt.Errorf("%w: client.max_delay (%s) is less than client.base_delay (%s)", ErrInvalid, c.Client.MaxDelay, c.Client.BaseDelay)
	}
	if c.Client.Provider == string(llmcomplete.ProviderIDCustom) && c.Client.BaseURL == "" {
		return fmt.Errorf("%w: client.base_url is required for the custom provider", ErrInvalid)
	}
	if c.Doc.Has(TagAuthor) && strings.TrimSpace(c.Doc.Author) == "" {
		return fmt.Errorf("%w: doc.author is required when the author tag is requested", ErrInvalid)
	}
	return nil
}
