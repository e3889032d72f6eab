// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/config"
)

// ProviderGemini is currently the only supported disambiguation provider.
const ProviderGemini = "gemini"

// NewGateway builds the disambiguation gateway for the configured provider.
func NewGateway(cfg config.GatewayConfig, logger *zap.Logger) (schemas.Gateway, error) {
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGeminiGateway(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown disambiguation provider %q (supported: %s)", cfg.Provider, ProviderGemini)
	}
}
