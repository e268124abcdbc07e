// Package prompt turns a declaration context into the text sent to the model. Building is pure: the same context and configuration always produce the same request,
// byte for byte, and the same fingerprint.
package prompt

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/template"

	"github.com/codalotl/aidoc/internal/config"
	"github.com/codalotl/aidoc/internal/decl"
	"github.com/codalotl/aidoc/internal/llmcomplete"
)

// fingerprintVersion is mixed into every fingerprint. Bump it when the prompt text or reply shape changes, so that cached docs from older prompts are not reused.
const fingerprintVersion = "aidoc-prompt-v1"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"join": func(items any, sep string) string {
		switch v := items.(type) {
		case []string:
			return strings.Join(v, sep)
		case []config.Tag:
			parts := make([]string, len(v))
			for i, t := range v {
				parts[i] = string(t)
			}
			return strings.Join(parts, sep)
		}
		return fmt.Sprint(items)
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// ErrTokenBudgetExceeded is returned when even the declaration header alone does not fit in the configured prompt budget.
var ErrTokenBudgetExceeded = errors.New("prompt: token budget exceeded")

type tokenBudgetExceededError struct {
	tokens int
	budget int
}

func (e *tokenBudgetExceededError) Error() string {
	return fmt.Sprintf("prompt: token budget exceeded: %d tokens, budget %d", e.tokens, e.budget)
}

func (e *tokenBudgetExceededError) Is(target error) bool { return target == ErrTokenBudgetExceeded }

// Expect is the reply shape a request asks for. The generation client validates replies against it.
type Expect struct {
	Params  []string     // every parameter name, in declaration order
	Returns bool         // the declaration returns a value
	Throws  []string     // declared exception types, in declaration order
	Tags    []config.Tag // requested tags
}

// Wants reports whether tag t was requested.
func (e Expect) Wants(t config.Tag) bool {
	return slices.Contains(e.Tags, t)
}

// Request is a fully rendered generation request.
type Request struct {
	Kind        decl.Kind
	Name        string
	System      string
	User        string
	Fingerprint string // hex SHA-256; identical for identical (signature, existing comment, config)
	Expect      Expect
	Tokens      int  // estimated prompt tokens (system + user)
	Truncated   bool // the code snippet was shortened to fit the budget
}

// Completion returns the transport request for r using the sampling settings in cfg.
func (r Request) Completion(cfg config.Client) llmcomplete.Completion {
	return llmcomplete.Completion{
		System:      r.System,
		User:        r.User,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		JSON:        cfg.JSONMode,
	}
}

var verbosityGuides = map[string]string{
	config.VerbosityTerse:    "One summary sentence. Parameter and return descriptions of a few words.",
	config.VerbosityStandard: "A one- or two-sentence summary, plus a short second paragraph only if behavior is not obvious.",
	config.VerbosityDetailed: "A summary sentence followed by one or two paragraphs covering behavior, edge cases, and side effects.",
}

type templateData struct {
	Kind           string
	Name           string
	Enclosing      string
	Signature      string
	Params         []decl.Param
	ReturnType     string
	HasReturn      bool
	Throws         []string
	Existing       string
	Snippet        string
	Language       string
	Verbosity      string
	VerbosityGuide string
	Tags           []config.Tag
}

// Build renders the request for c under cfg. If cfg.MaxPromptTokens is positive and the prompt is over budget, the code snippet is shortened line by line from the
// end (the header is always kept). If the header alone does not fit, an error matching ErrTokenBudgetExceeded is returned.
func Build(c decl.Context, cfg config.Doc) (Request, error) {
	if !c.Kind.Supported() {
		return Request{}, fmt.Errorf("prompt: %w: %s", decl.ErrUnsupportedDeclaration, c.Kind)
	}

	tags := orderedTags(cfg.IncludeTags)
	data := templateData{
		Kind:           c.Kind.String(),
		Name:           c.Name,
		Enclosing:      c.EnclosingType,
		Signature:      c.Signature,
		Params:         c.Parameters,
		ReturnType:     c.ReturnType,
		HasReturn:      c.Returns() && slices.Contains(tags, config.TagReturn),
		Throws:         c.ThrownTypes,
		Existing:       c.ExistingComment,
		Snippet:        c.Snippet,
		Language:       strings.TrimSpace(cfg.TargetLanguage),
		Verbosity:      cfg.Verbosity,
		VerbosityGuide: verbosityGuides[cfg.Verbosity],
		Tags:           tags,
	}
	if data.Language == "" {
		data.Language = "English"
	}

	system, err := render("system.tmpl", data)
	if err != nil {
		return Request{}, err
	}
	user, err := render(templateName(c.Kind), data)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Kind:        c.Kind,
		Name:        c.Name,
		System:      system,
		User:        user,
		Fingerprint: Fingerprint(c, cfg),
		Expect: Expect{
			Params:  c.ParamNames(),
			Returns: c.Returns(),
			Throws:  slices.Clone(c.ThrownTypes),
			Tags:    tags,
		},
	}
	req.Tokens = llmcomplete.CountTokens(system) + llmcomplete.CountTokens(user)

	if cfg.MaxPromptTokens > 0 && req.Tokens > cfg.MaxPromptTokens {
		if err := fitBudget(&req, data, c, cfg.MaxPromptTokens); err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

// Fingerprint returns the cache key for c under cfg: hex SHA-256 over the normalized signature, the existing comment, and the config fingerprint.
func Fingerprint(c decl.Context, cfg config.Doc) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s", fingerprintVersion, c.Kind, decl.NormalizeSignature(c.Signature), c.ExistingComment, cfg.Fingerprint())
	return hex.EncodeToString(h.Sum(nil))
}

// fitBudget re-renders the user prompt with the longest snippet prefix that fits budget, keeping at least the header lines.
func fitBudget(req *Request, data templateData, c decl.Context, budget int) error {
	lines := strings.Split(c.Snippet, "\n")
	minKeep := strings.Count(c.Header, "\n") + 1
	if minKeep > len(lines) {
		minKeep = len(lines)
	}
	systemTokens := llmcomplete.CountTokens(req.System)

	try := func(keep int) (string, int, error) {
		d := data
		d.Snippet = strings.Join(lines[:keep], "\n")
		if keep < len(lines) {
			d.Snippet += "\n// ... truncated"
		}
		user, err := render(templateName(c.Kind), d)
		if err != nil {
			return "", 0, err
		}
		return user, systemTokens + llmcomplete.CountTokens(user), nil
	}

	user, tokens, err := try(minKeep)
	if err != nil {
		return err
	}
	if tokens > budget {
		return &tokenBudgetExceededError{tokens: tokens, budget: budget}
	}

	// Largest keep in [minKeep, len(lines)) that fits. len(lines) is known not to fit.
	lo, hi := minKeep, len(lines)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		_, t, err := try(mid)
		if err != nil {
			return err
		}
		if t <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo > minKeep {
		user, tokens, err = try(lo)
		if err != nil {
			return err
		}
	}

	req.User = user
	req.Tokens = tokens
	req.Truncated = true
	return nil
}

func templateName(k decl.Kind) string {
	switch k {
	case decl.KindClass, decl.KindInterface, decl.KindEnum, decl.KindRecord, decl.KindAnnotation:
		return "class.tmpl"
	case decl.KindField:
		return "field.tmpl"
	case decl.KindTestMethod:
		return "test.tmpl"
	case decl.KindMethod, decl.KindConstructor:
		return "method.tmpl"
	default:
		return "method.tmpl"
	}
}

func render(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("prompt: rendering %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// orderedTags returns the requested tags, deduplicated, in rendering order.
func orderedTags(requested []config.Tag) []config.Tag {
	var out []config.Tag
	for _, t := range config.AllTags {
		if slices.Contains(requested, t) {
			out = append(out, t)
		}
	}
	return out
}
