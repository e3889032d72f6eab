// api/schemas/interfaces.go
// Canonical collaborator contracts consumed by the core. They live at the
// API level so internal packages can share them without import cycles.
package schemas

import "context"

// Page is the minimal read surface the core needs from a browser driver.
// The core never assumes a specific driver; it only needs DOM read access
// and selector-based element counting.
type Page interface {
	// GetContent returns the current page markup.
	GetContent(ctx context.Context) (string, error)
	GetTitle(ctx context.Context) (string, error)
	GetURL(ctx context.Context) (string, error)
	// Evaluate runs a read-only JavaScript expression in the page and
	// unmarshals the result into out. It must not mutate DOM state.
	Evaluate(ctx context.Context, expression string, out any) error
	// LocatorCount returns how many live elements the selector resolves to.
	LocatorCount(ctx context.Context, selector string) (int, error)
	IsVisible(ctx context.Context, selector string) (bool, error)
	IsEnabled(ctx context.Context, selector string) (bool, error)
}

// TaskKind tells the gateway which prompt family a request belongs to, so
// it can pick a model tier.
type TaskKind string

const (
	// TaskDisambiguate asks the provider to choose a selector for a label.
	TaskDisambiguate TaskKind = "disambiguate"
)

// GatewayRequest carries the prompts for one provider call.
type GatewayRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt"`
}

// TokenUsage mirrors the provider's usage accounting.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// GatewayResponse is the provider gateway's answer envelope.
type GatewayResponse struct {
	Content  string     `json:"content"`
	Model    string     `json:"model"`
	Provider string     `json:"provider"`
	Usage    TokenUsage `json:"usage"`
}

// Gateway dispatches requests to the external disambiguation provider. The
// gateway owns transport-level retry/backoff; callers layer their own
// attempt-level retry above it.
type Gateway interface {
	Execute(ctx context.Context, kind TaskKind, req GatewayRequest) (*GatewayResponse, error)
}

// Embedder turns texts into vectors. Implementations batch internally and
// preserve input order; one failed batch must not invalidate others.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
