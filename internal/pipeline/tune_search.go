package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/prompts"
	"github.com/jonathan/job-matcher/internal/schemas"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// TuneSearch derives search parameters from profile. Returned terms that share no
// token with the profile are dropped, so the search never runs on invented keywords.
func (p *Pipeline) TuneSearch(ctx context.Context, profile *types.CVProfile, onProgress ProgressCallback) (*types.SearchParameters, error) {
	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	profileText, err := profileJSON(profile)
	if err != nil {
		return nil, err
	}

	system, err := prompts.Stage(prompts.TuneSearchSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := prompts.Stage(prompts.TuneSearchUser, map[string]string{"Profile": profileText})
	if err != nil {
		return nil, err
	}
	emitProgress(onProgress, steps.TuneSearch, 0.2, "deriving search keywords")

	params, err := llm.Complete[types.SearchParameters](ctx, p.llm, llm.Request{
		Name:         steps.TuneSearch,
		SystemPrompt: system,
		UserContent:  user,
		Schema:       schemas.SearchParameters,
		Tier:         llm.TierLite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to derive search parameters: %w", err)
	}

	vocab := profile.Vocabulary()
	var dropped []string
	keep := func(terms []string) []string {
		out := make([]string, 0, len(terms))
		for _, term := range terms {
			if grounded(term, vocab) {
				out = append(out, term)
			} else {
				dropped = append(dropped, term)
			}
		}
		return out
	}
	params.PrimaryKeywords = keep(params.PrimaryKeywords)
	params.SecondaryKeywords = keep(params.SecondaryKeywords)
	params.SearchTerms = keep(params.SearchTerms)
	params.JobTitleKeywords = keep(params.JobTitleKeywords)
	params.TechnicalSkills = keep(params.TechnicalSkills)
	if len(dropped) > 0 {
		p.logger.Debug("dropped ungrounded search terms", zap.Strings("terms", dropped))
	}

	emitProgress(onProgress, steps.TuneSearch, 1, "search keywords ready")
	return params, nil
}

// grounded reports whether term shares at least one token with vocab.
func grounded(term string, vocab map[string]struct{}) bool {
	for _, tok := range types.Tokenize(term) {
		if _, ok := vocab[tok]; ok {
			return true
		}
	}
	return false
}
