package llmcomplete

import (
	"os"
	"strings"
)

// Type identifies the API family a provider implements.
type Type string

const (
	TypeOpenAI Type = "openai" // OpenAI-compatible chat/completions API.
	TypeGemini Type = "gemini" // Google's Gemini API.
)

// ProviderID represents the inference provider identifier.
type ProviderID string

const (
	ProviderIDOpenAI      ProviderID = "openai"
	ProviderIDOllama      ProviderID = "ollama"
	ProviderIDLMStudio    ProviderID = "lmstudio"
	ProviderIDQianWen     ProviderID = "qianwen"
	ProviderIDSiliconFlow ProviderID = "siliconflow"
	ProviderIDGemini      ProviderID = "gemini"
	ProviderIDCustom      ProviderID = "custom"
)

// Provider is a preset for one inference provider.
type Provider struct {
	ID           ProviderID
	Name         string // human-readable
	Type         Type
	BaseURL      string
	DefaultModel string
	RequiresKey  bool
	KeyEnv       string // env var typically holding the key; may be empty

	// ExtraBody is merged into every request body. Local and Chinese providers use it to switch thinking output off.
	ExtraBody map[string]any
}

// EnvKey returns the value of the provider's key env var, or "" if unset.
func (p Provider) EnvKey() string {
	if p.KeyEnv == "" {
		return ""
	}
	return os.Getenv(strings.TrimPrefix(p.KeyEnv, "$"))
}

var providers = []Provider{
	{
		ID:           ProviderIDOpenAI,
		Name:         "OpenAI",
		Type:         TypeOpenAI,
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		RequiresKey:  true,
		KeyEnv:       "OPENAI_API_KEY",
	},
	{
		ID:           ProviderIDOllama,
		Name:         "Ollama (local)",
		Type:         TypeOpenAI,
		BaseURL:      "http://localhost:11434/v1",
		DefaultModel: "qwen:7b",
		ExtraBody:    map[string]any{"think": false},
	},
	{
		ID:           ProviderIDLMStudio,
		Name:         "LM Studio (local)",
		Type:         TypeOpenAI,
		BaseURL:      "http://localhost:1234/v1",
		DefaultModel: "qwen2.5-coder-7b-instruct",
	},
	{
		ID:           ProviderIDQianWen,
		Name:         "QianWen (DashScope)",
		Type:         TypeOpenAI,
		BaseURL:      "https://dashscope.aliyuncs.com/compatible-mode/v1",
		DefaultModel: "qwen3-8b",
		RequiresKey:  true,
		KeyEnv:       "DASHSCOPE_API_KEY",
		ExtraBody:    map[string]any{"enable_thinking": false},
	},
	{
		ID:           ProviderIDSiliconFlow,
		Name:         "SiliconFlow",
		Type:         TypeOpenAI,
		BaseURL:      "https://api.siliconflow.cn/v1",
		DefaultModel: "Qwen/Qwen2.5-7B-Instruct",
		RequiresKey:  true,
		KeyEnv:       "SILICONFLOW_API_KEY",
		ExtraBody:    map[string]any{"enable_thinking": false},
	},
	{
		ID:           ProviderIDGemini,
		Name:         "Google Gemini",
		Type:         TypeGemini,
		BaseURL:      "https://generativelanguage.googleapis.com/",
		DefaultModel: "gemini-2.5-flash",
		RequiresKey:  true,
		KeyEnv:       "GEMINI_API_KEY",
	},
	{
		ID:           ProviderIDCustom,
		Name:         "Custom (OpenAI-compatible)",
		Type:         TypeOpenAI,
		BaseURL:      "https://api.openai.com/v1",
		DefaultModel: "gpt-4o-mini",
		RequiresKey:  true,
		KeyEnv:       "AIDOC_API_KEY",
	},
}

// AllProviderIDs lists every known provider, in preset order.
var AllProviderIDs = func() []ProviderID {
	ids := make([]ProviderID, len(providers))
	for i, p := range providers {
		ids[i] = p.ID
	}
	return ids
}()

// GetProvider returns the preset for id.
func GetProvider(id ProviderID) (Provider, bool) {
	for _, p := range providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}
