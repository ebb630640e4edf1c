package provider

import "slices"

// Alias describes a remote provider served through the openai client via
// its OpenAI-compatible endpoint, with a preset base URL and token
// variable. Aliases without a BaseURL (azure) need per-deployment
// configuration and are excluded from the catalog.
type Alias struct {
	BaseURL  string
	TokenKey string
}

// CoreProviders are the providers with a dedicated client implementation:
// the local model runner and the OpenAI client that also backs every alias.
var CoreProviders = []string{"openai", "dmr"}

// Aliases maps the remaining provider names onto the openai client.
var Aliases = map[string]Alias{
	"anthropic": {BaseURL: "https://api.anthropic.com/v1", TokenKey: "ANTHROPIC_API_KEY"},
	"google":    {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", TokenKey: "GEMINI_API_KEY"},
	"gemini":    {BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai", TokenKey: "GEMINI_API_KEY"},
	"mistral":   {BaseURL: "https://api.mistral.ai/v1", TokenKey: "MISTRAL_API_KEY"},
	"xai":       {BaseURL: "https://api.x.ai/v1", TokenKey: "XAI_API_KEY"},
	"nebius":    {BaseURL: "https://api.studio.nebius.com/v1", TokenKey: "NEBIUS_API_KEY"},
	"requesty":  {BaseURL: "https://router.requesty.ai/v1", TokenKey: "REQUESTY_API_KEY"},
	"ollama":    {BaseURL: "http://localhost:11434/v1"},
	"azure":     {TokenKey: "AZURE_OPENAI_API_KEY"},
}

// CatalogProviders lists every provider name New accepts out of the box:
// the core providers plus the aliases that ship a usable default endpoint.
func CatalogProviders() []string {
	out := slices.Clone(CoreProviders)
	for name, alias := range Aliases {
		if alias.BaseURL != "" {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// IsCatalogProvider reports whether name can be used as a provider without
// further endpoint configuration.
func IsCatalogProvider(name string) bool {
	return slices.Contains(CatalogProviders(), name)
}
