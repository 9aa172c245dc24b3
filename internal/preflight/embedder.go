package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/openclaw/openclaw-memory/internal/config"
	"github.com/openclaw/openclaw-memory/internal/embed"
)

// embedderProbeTimeout bounds the reachability probe so doctor stays
// fast when an endpoint is down.
const embedderProbeTimeout = 3 * time.Second

// CheckEmbedder resolves the configured provider and probes it. Not
// required: retrieval falls back to full-text search without vectors.
func (c *Checker) CheckEmbedder(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: false,
	}

	probeCtx, cancel := context.WithTimeout(ctx, embedderProbeTimeout)
	defer cancel()

	emb, err := embed.New(probeCtx, cfg)
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("cannot construct provider: %v", err)
		result.Details = "retrieval will use full-text search only"
		return result
	}
	defer func() { _ = emb.Close() }()

	if !emb.Available(probeCtx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not reachable", emb.ModelName())
		result.Details = "retrieval will use full-text search only"
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dims)", emb.ModelName(), emb.Dimensions())
	return result
}
