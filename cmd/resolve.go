// -- cmd/resolve.go --
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/locus/api/schemas"
	"github.com/xkilldash9x/locus/internal/browser"
	"github.com/xkilldash9x/locus/internal/graph"
	"github.com/xkilldash9x/locus/internal/llmclient"
	"github.com/xkilldash9x/locus/internal/memory"
	"github.com/xkilldash9x/locus/internal/observability"
	"github.com/xkilldash9x/locus/internal/resolver"
	"github.com/xkilldash9x/locus/internal/scorer"
	"github.com/xkilldash9x/locus/internal/semantic"
	"github.com/xkilldash9x/locus/internal/session"
)

var (
	resolveURL     string
	resolveAction  string
	resolveRole    string
	resolveContext string
	resolveTimeout time.Duration
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <label>",
	Short: "Resolve a human element label on a live page into a verified locator.",
	Long: `Opens the target page in a headless browser, builds the element graph,
and resolves the given label through memory, heuristic scoring, and, when
confidence is low, the disambiguation provider. Prints the resolution as
JSON on stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveURL, "url", "u", "", "page URL to resolve against (required)")
	resolveCmd.Flags().StringVarP(&resolveAction, "action", "a", "any", "intended action: click, type, or any")
	resolveCmd.Flags().StringVar(&resolveRole, "role", "", "optional ARIA role hint")
	resolveCmd.Flags().StringVar(&resolveContext, "context", "", "optional free-text context, e.g. \"in the billing section\"")
	resolveCmd.Flags().DurationVar(&resolveTimeout, "timeout", 2*time.Minute, "overall resolution deadline")
	resolveCmd.MarkFlagRequired("url")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	logger := observability.GetLogger()
	label := args[0]

	action, err := parseAction(resolveAction)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), resolveTimeout)
	defer cancel()

	sess, err := browser.NewSession(ctx, appConfig.Browser, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Navigate(resolveURL); err != nil {
		return err
	}

	r, err := buildResolver(ctx, logger)
	if err != nil {
		return err
	}

	intent := schemas.QueryIntent{
		Action:   action,
		Label:    label,
		RoleHint: resolveRole,
		Context:  resolveContext,
	}
	res, err := r.Resolve(ctx, sess.Page(), intent)
	if err != nil {
		return fmt.Errorf("resolution failed: %w", err)
	}
	logger.Info("Resolution finished.",
		zap.Bool("resolved", res.Resolved),
		zap.String("locator", res.Locator),
		zap.String("source", string(res.Source)),
		zap.Int("attempts", res.Attempts))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// buildResolver wires the per-session pipeline: tracker, store, scorer,
// graph builder, gateway, and the optional semantic retriever.
func buildResolver(ctx context.Context, logger *zap.Logger) (*resolver.Resolver, error) {
	store, err := memory.NewStore(logger, appConfig.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open selector store: %w", err)
	}

	gateway, err := llmclient.NewGateway(appConfig.Gateway, logger)
	if err != nil {
		return nil, err
	}

	var retriever *semantic.Retriever
	if appConfig.Semantic.Enabled {
		embedder, err := llmclient.NewGeminiEmbedder(ctx, appConfig.Semantic, logger)
		if err != nil {
			return nil, err
		}
		retriever = semantic.NewRetriever(embedder, appConfig.Semantic, logger)
	}

	tracker := session.NewTracker(logger)
	sc := scorer.NewScorer(logger, appConfig.Scoring, appConfig.Patterns, appConfig.Resolver.EscalationCandidates)
	builder := graph.NewBuilder(logger, appConfig.Patterns)

	return resolver.New(logger, appConfig.Resolver, builder, sc, tracker, store, gateway, retriever), nil
}

func parseAction(raw string) (schemas.ActionType, error) {
	switch schemas.ActionType(raw) {
	case schemas.ActionClick, schemas.ActionInput, schemas.ActionAny:
		return schemas.ActionType(raw), nil
	default:
		return "", fmt.Errorf("unknown action %q: expected click, type, or any", raw)
	}
}
