package proxy

import (
	"sort"
	"strings"

	"github.com/fuaadabdullah/inference-gateway/pkg/types"
)

// modelResolver picks a concrete model identifier for a request. Priority:
// explicit tier hint, then substring match against the payload's model
// name, then the configured default.
type modelResolver struct {
	tierModels   map[string]string
	defaultModel string
}

func newModelResolver(config *types.InferenceConfig) *modelResolver {
	return &modelResolver{
		tierModels:   config.TierModels,
		defaultModel: config.DefaultModel,
	}
}

// resolve maps the request to a model identifier
func (r *modelResolver) resolve(req *types.ChatCompletionRequest) string {
	if req.ModelHint != "" {
		if model, ok := r.tierModels[strings.ToLower(req.ModelHint)]; ok {
			return model
		}
	}

	if req.Model != "" {
		requested := strings.ToLower(req.Model)
		for _, model := range r.sortedModels() {
			if strings.Contains(strings.ToLower(model), requested) || strings.Contains(requested, strings.ToLower(model)) {
				return model
			}
		}
	}

	return r.defaultModel
}

// availableTiers lists the tiers this proxy can serve, for /health
func (r *modelResolver) availableTiers() []string {
	tiers := make([]string, 0, len(r.tierModels))
	for tier := range r.tierModels {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	return tiers
}

// sortedModels returns the tier models in a stable order so substring
// resolution is deterministic.
func (r *modelResolver) sortedModels() []string {
	models := make([]string, 0, len(r.tierModels))
	for _, model := range r.tierModels {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}
