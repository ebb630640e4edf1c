package provider

import (
	"context"
	"log/slog"
	"strings"

	"github.com/docker/local-rag-engine/pkg/environment"
	"github.com/docker/local-rag-engine/pkg/model/provider/options"
)

// CloneWithOptions returns a new Provider instance using the same provider/model
// as the base provider, applying the provided options. If cloning fails, the
// original base provider is returned.
func CloneWithOptions(ctx context.Context, base Provider, env environment.Provider, opts ...options.Opt) Provider {
	if base == nil {
		return nil
	}

	id := strings.TrimSpace(base.ID())
	if _, _, found := strings.Cut(id, "/"); !found {
		return base
	}

	baseCfg := base.BaseConfig()
	if env == nil {
		env = baseCfg.Env
	}
	if env == nil {
		env = environment.NewDefaultProvider(ctx)
	}

	// Preserve existing options, then apply overrides. Later opts take precedence.
	baseOpts := options.FromModelOptions(baseCfg.ModelOptions)
	mergedOpts := append(baseOpts, opts...)

	cloned, err := New(ctx, id, baseCfg.Models, env, mergedOpts...)
	if err != nil {
		slog.Debug("Failed to clone provider; using base provider", "error", err, "id", id)
		return base
	}
	return cloned
}
