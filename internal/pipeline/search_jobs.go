package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jonathan/job-matcher/internal/listings"
	"github.com/jonathan/job-matcher/internal/llm"
	"github.com/jonathan/job-matcher/internal/logging"
	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/prompts"
	"github.com/jonathan/job-matcher/internal/schemas"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Per-category and overall caps on the terms sent to the listing store.
const (
	maxSkillTerms   = 3
	maxTitleTerms   = 2
	maxKeywordTerms = 3
	maxSearchTerms  = 8
)

// jobAnalysis is the job_analysis response: the experience match plus what the
// listing asks for and offers.
type jobAnalysis struct {
	types.ExperienceMatch
	Requirements []string `json:"requirements"`
	Benefits     []string `json:"benefits"`
}

// Validate checks the embedded experience match.
func (a *jobAnalysis) Validate() error {
	return a.ExperienceMatch.Validate()
}

// SearchTerms builds the single-term queries for a search: up to 3 technical skills,
// 2 job titles and 3 primary keywords, de-duplicated case-insensitively and capped at 8.
func SearchTerms(params *types.SearchParameters) []string {
	seen := make(map[string]struct{})
	var terms []string
	add := func(values []string, limit int) {
		for _, v := range values[:min(limit, len(values))] {
			v = strings.TrimSpace(v)
			key := strings.ToLower(v)
			if v == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			terms = append(terms, v)
		}
	}
	add(params.TechnicalSkills, maxSkillTerms)
	add(params.JobTitleKeywords, maxTitleTerms)
	add(params.PrimaryKeywords, maxKeywordTerms)
	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	return terms
}

// fallbackTerms splits terms on whitespace and keeps words longer than 2 characters.
func fallbackTerms(terms []string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range terms {
		for _, word := range strings.Fields(term) {
			key := strings.ToLower(word)
			if len([]rune(word)) <= 2 {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, word)
		}
	}
	return out
}

// findListings runs the full-text queries for every term, falling back to a substring
// filter when none of them hits. Results are unique by ID in discovery order.
func (p *Pipeline) findListings(ctx context.Context, terms []string) ([]types.JobListing, error) {
	var found []types.JobListing
	seen := make(map[string]struct{})
	collect := func(hits []types.JobListing) {
		for _, l := range hits {
			if _, ok := seen[l.ID]; ok {
				continue
			}
			seen[l.ID] = struct{}{}
			found = append(found, l)
		}
	}

	for _, term := range terms {
		for _, field := range []listings.Field{listings.FieldDescription, listings.FieldTitle} {
			hits, err := p.listings.FullTextSearch(ctx, field, term, p.opts.PerQueryLimit)
			if err != nil {
				return nil, fmt.Errorf("full-text search %s for %q: %w", field, term, err)
			}
			collect(hits)
		}
	}
	if len(found) > 0 {
		return found, nil
	}

	words := fallbackTerms(terms)
	if len(words) == 0 {
		return nil, nil
	}
	p.logger.Info("full-text search found nothing, using substring fallback", zap.Strings("terms", words))
	hits, err := p.listings.SubstringFilter(ctx, words, p.opts.PerQueryLimit*len(terms))
	if err != nil {
		return nil, fmt.Errorf("substring search: %w", err)
	}
	collect(hits)
	return found, nil
}

// SearchJobs finds listings for params and analyzes each against profile. Listings
// whose analysis fails are dropped. Results keep discovery order and are truncated to
// MaxResults; TotalFound counts them before truncation.
func (p *Pipeline) SearchJobs(ctx context.Context, params *types.SearchParameters, profile *types.CVProfile, onProgress ProgressCallback) (*types.SearchOutput, error) {
	terms := SearchTerms(params)
	p.logger.Info("searching listings", zap.Strings("terms", terms))

	found, err := p.findListings(ctx, terms)
	if err != nil {
		return nil, err
	}
	emitProgress(onProgress, steps.SearchJobs, 0.2, fmt.Sprintf("found %d listings", len(found)))
	if len(found) == 0 {
		return &types.SearchOutput{Jobs: []types.JobResult{}, TotalFound: 0}, nil
	}

	profileText, err := profileJSON(profile)
	if err != nil {
		return nil, err
	}
	system, err := prompts.Stage(prompts.JobAnalysisSystem, nil)
	if err != nil {
		return nil, err
	}

	slots := make([]*types.JobResult, len(found))
	var done atomic.Int32

	var g errgroup.Group
	g.SetLimit(p.opts.AnalysisConcurrency)
	for i := range found {
		g.Go(func() error {
			listing := found[i]
			result, err := p.analyzeListing(ctx, listing, profile, profileText, system)
			if err != nil {
				p.logger.Warn("dropping job after failed analysis",
					zap.String(logging.FieldJobID, listing.ID), zap.Error(err))
			} else {
				slots[i] = result
			}
			n := done.Add(1)
			emitProgress(onProgress, steps.SearchJobs, 0.2+0.8*float64(n)/float64(len(found)), "analyzed "+listing.ID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jobs := make([]types.JobResult, 0, len(found))
	for _, r := range slots {
		if r != nil {
			jobs = append(jobs, *r)
		}
	}
	total := len(jobs)
	if len(jobs) > p.opts.MaxResults {
		jobs = jobs[:p.opts.MaxResults]
	}

	p.logger.Info("search complete",
		zap.Int("listings", len(found)),
		zap.Int("analyzed", total),
		zap.Int("returned", len(jobs)))
	return &types.SearchOutput{Jobs: jobs, TotalFound: total}, nil
}

func (p *Pipeline) analyzeListing(ctx context.Context, listing types.JobListing, profile *types.CVProfile, profileText, system string) (*types.JobResult, error) {
	user, err := prompts.Stage(prompts.JobAnalysisUser, map[string]string{
		"Profile": profileText,
		"Listing": listings.RenderForPrompt(listing),
	})
	if err != nil {
		return nil, err
	}

	analysis, err := llm.Complete[jobAnalysis](ctx, p.llm, llm.Request{
		Name:         "job_analysis",
		SystemPrompt: system,
		UserContent:  user,
		Schema:       schemas.JobAnalysis,
		Tier:         llm.TierStandard,
	})
	if err != nil {
		return nil, err
	}

	matched, missing := MatchSkills(profile.Skills, listing)
	loc := MatchLocation(listing.Location, profile.PreferredLocations)
	return &types.JobResult{
		JobID:           listing.ID,
		Title:           listing.Title,
		Company:         listing.Company,
		Location:        listing.Location,
		SourceName:      listing.SourceName,
		SourceURL:       listing.SourceURL,
		MatchedSkills:   matched,
		MissingSkills:   missing,
		ExperienceMatch: analysis.ExperienceMatch,
		LocationMatch:   loc,
		WorkTypeMatch:   loc.Level == types.LocationMatch || loc.Level == types.LocationRemote,
		Benefits:        nonNil(analysis.Benefits),
		Requirements:    nonNil(analysis.Requirements),
		MatchScore:      analysis.Score,
	}, nil
}

// MatchSkills splits skills into those whose every token occurs in the listing's
// title or description and those that do not. Both results are non-nil.
func MatchSkills(skills []string, listing types.JobListing) (matched, missing []string) {
	text := make(map[string]struct{})
	for _, tok := range types.Tokenize(listing.Title + "\n" + listing.Description) {
		text[tok] = struct{}{}
	}

	matched, missing = []string{}, []string{}
	for _, skill := range skills {
		toks := types.Tokenize(skill)
		if len(toks) == 0 {
			continue
		}
		ok := true
		for _, tok := range toks {
			if _, found := text[tok]; !found {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	return matched, missing
}

// MatchLocation classifies a listing location against the preferred locations by
// case-insensitive substring match in either direction.
func MatchLocation(location string, preferred []string) types.LocationMatchResult {
	if len(preferred) == 0 {
		return types.LocationMatchResult{
			Level:   types.LocationNotProvided,
			Reasons: []string{"no preferred locations in profile"},
		}
	}
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return types.LocationMatchResult{
			Level:   types.LocationUnknown,
			Score:   0.5,
			Reasons: []string{"listing does not state a location"},
		}
	}

	for _, pref := range preferred {
		pl := strings.ToLower(strings.TrimSpace(pref))
		if pl == "" {
			continue
		}
		if strings.Contains(loc, pl) || strings.Contains(pl, loc) {
			return types.LocationMatchResult{
				Level:   types.LocationMatch,
				Score:   1,
				Reasons: []string{fmt.Sprintf("%s matches preferred location %s", location, pref)},
			}
		}
	}
	if strings.Contains(loc, "remote") {
		return types.LocationMatchResult{
			Level:   types.LocationRemote,
			Score:   0.8,
			Reasons: []string{"role can be done remotely"},
		}
	}
	return types.LocationMatchResult{
		Level:   types.LocationMismatch,
		Reasons: []string{fmt.Sprintf("%s is outside the preferred locations", location)},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
