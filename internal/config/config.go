// Package config holds aidoc's settings and loads them in layers: built-in defaults, the user file (~/.aidoc/config.yaml), the nearest project file (.aidoc.yaml),
// then AIDOC_* environment variables. Command-line flags are applied by the caller on top of the result and then re-validated with Validate.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Tag is a Javadoc block tag the generator may emit.
type Tag string

const (
	TagParam  Tag = "param"
	TagReturn Tag = "return"
	TagThrows Tag = "throws"
	TagSince  Tag = "since"
	TagAuthor Tag = "author"
)

// AllTags lists every tag in the order they are rendered.
var AllTags = []Tag{TagParam, TagReturn, TagThrows, TagSince, TagAuthor}

// Verbosity levels.
const (
	VerbosityTerse    = "terse"
	VerbosityStandard = "standard"
	VerbosityDetailed = "detailed"
)

// Doc controls what is generated and how it is merged.
type Doc struct {
	TargetLanguage    string `yaml:"target_language" validate:"required"` // human language of the prose (ex: "English", "Chinese")
	Verbosity         string `yaml:"verbosity" validate:"oneof=terse standard detailed"`
	IncludeTags       []Tag  `yaml:"include_tags" validate:"dive,oneof=param return throws since author"` // in any order; rendering order is fixed
	OverwriteExisting bool   `yaml:"overwrite_existing"`                                                  // replace existing doc comments instead of skipping them
	MaxLineWidth      int    `yaml:"max_line_width" validate:"gte=40,lte=400"`                            // display columns, including indentation
	MaxPromptTokens   int    `yaml:"max_prompt_tokens" validate:"gte=0"`                                  // 0 disables the budget
	MaxSnippetLines   int    `yaml:"max_snippet_lines" validate:"gte=0"`                                  // 0 uses the extractor default
	Author            string `yaml:"author"`                                                              // value for @author, when requested
	Since             string `yaml:"since"`                                                               // value for @since, when requested; the model's answer is used if empty
}

// Client configures the remote generation service and how it is called.
type Client struct {
	Provider    string        `yaml:"provider" validate:"oneof=openai ollama lmstudio qianwen siliconflow gemini custom"`
	BaseURL     string        `yaml:"base_url" validate:"omitempty,url"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"` // per attempt
	MaxAttempts int           `yaml:"max_attempts" validate:"gte=1,lte=3"`
	BaseDelay   time.Duration `yaml:"base_delay" validate:"gte=0"` // backoff before the second attempt; doubles after that
	MaxDelay    time.Duration `yaml:"max_delay" validate:"gte=0"`
	Concurrency int           `yaml:"concurrency" validate:"gte=1,lte=8"` // in-flight remote calls
	CacheSize   int           `yaml:"cache_size" validate:"gte=0"`        // 0 disables the response cache
	Temperature float64       `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `yaml:"max_tokens" validate:"gte=0"`
	TopP        float64       `yaml:"top_p" validate:"gte=0,lte=1"`
	JSONMode    bool          `yaml:"json_mode"` // ask the provider for a JSON object response
}

// Config is the full set of settings.
type Config struct {
	Doc    Doc    `yaml:"doc"`
	Client Client `yaml:"client"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Doc: Doc{
			TargetLanguage:  "English",
			Verbosity:       VerbosityStandard,
			IncludeTags:     []Tag{TagParam, TagReturn, TagThrows},
			MaxLineWidth:    120,
			MaxPromptTokens: 8000,
		},
		Client: Client{
			Provider:    "ollama",
			Timeout:     30 * time.Second,
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
			Concurrency: 4,
			CacheSize:   512,
			Temperature: 0.1,
			MaxTokens:   1000,
			TopP:        0.9,
			JSONMode:    true,
		},
	}
}

// Has reports whether tag t is requested.
func (d Doc) Has(t Tag) bool {
	return slices.Contains(d.IncludeTags, t)
}

// Fingerprint returns a stable hex digest of every Doc setting that changes what the generated documentation should say. Two Docs that differ only in tag order share
// a fingerprint. Merge settings and size limits are not included.
func (d Doc) Fingerprint() string {
	tags := make([]string, 0, len(d.IncludeTags))
	for _, t := range d.IncludeTags {
		tags = append(tags, string(t))
	}
	slices.Sort(tags)
	tags = slices.Compact(tags)

	h := sha256.New()
	fmt.Fprintf(h, "lang=%s\x00verbosity=%s\x00tags=%s\x00author=%s\x00since=%s",
		strings.TrimSpace(d.TargetLanguage), d.Verbosity, strings.Join(tags, ","), d.Author, d.Since)
	return hex.EncodeToString(h.Sum(nil))
}

// ParseTags parses a comma-separated tag list (ex: "param,return"). An empty string yields no tags.
func ParseTags(s string) ([]Tag, error) {
	var out []Tag
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !slices.Contains(AllTags, Tag(part)) {
			return nil, fmt.Errorf("%w: unknown tag %q", ErrInvalid, part)
		}
		if !slices.Contains(out, Tag(part)) {
			out = append(out, Tag(part))
		}
	}
	return out, nil
}
