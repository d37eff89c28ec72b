package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/prompts"
	"github.com/jonathan/job-matcher/internal/schemas"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// ParseCV resolves cvRef to a downloadable file and extracts a CVProfile from it. A
// reference that does not resolve fails with an error wrapping types.ErrNotFound.
func (p *Pipeline) ParseCV(ctx context.Context, cvRef string, onProgress ProgressCallback) (*types.CVProfile, error) {
	if strings.TrimSpace(cvRef) == "" {
		return nil, fmt.Errorf("cv reference is empty: %w", types.ErrNotFound)
	}

	file, err := p.files.ResolveDownloadURL(ctx, cvRef)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve CV: %w", err)
	}
	emitProgress(onProgress, steps.ParseCV, 0.25, "CV located")

	system, err := prompts.Stage(prompts.ParseCVSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := prompts.Stage(prompts.ParseCVUser, nil)
	if err != nil {
		return nil, err
	}

	profile, err := llm.Complete[types.CVProfile](ctx, p.llm, llm.Request{
		Name:         steps.ParseCV,
		SystemPrompt: system,
		UserContent:  user,
		Attachments:  []llm.Attachment{{URL: file.URL, MIMEType: file.ContentType}},
		Schema:       schemas.CVProfile,
		Tier:         llm.TierStandard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract CV profile: %w", err)
	}

	p.logger.Info("parsed CV",
		zap.Int("skills", len(profile.Skills)),
		zap.String("experience_level", string(profile.ExperienceLevel)))
	emitProgress(onProgress, steps.ParseCV, 1, "CV parsed")
	return profile, nil
}
