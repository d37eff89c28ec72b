package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
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

const (
	maxTargetCompanies = 10
	maxJobTypes        = 3
	relevantScore      = 0.6
)

// Summary text used when there is nothing to rank.
const (
	emptySalaryInsights     = "No salary information is available because no matching jobs were found."
	emptyMarketObservations = "No jobs matched the search. Broadening the keywords or locations may help."
	emptyStrategy           = "No jobs matched the derived keywords."
)

// rankBatch is the rank_batch response.
type rankBatch struct {
	RankedJobs []struct {
		JobID        string   `json:"job_id"`
		MatchReasons []string `json:"match_reasons"`
		Concerns     []string `json:"concerns"`
	} `json:"ranked_jobs"`
	Insights struct {
		TopSkillsInDemand  []string `json:"top_skills_in_demand"`
		SalaryInsights     string   `json:"salary_insights"`
		MarketObservations string   `json:"market_observations"`
		SearchStrategy     string   `json:"search_strategy"`
	} `json:"insights"`
}

// rankInput is the per-job view sent to the batch ranking call.
type rankInput struct {
	JobID             string   `json:"job_id"`
	Title             string   `json:"title"`
	Company           string   `json:"company,omitempty"`
	Location          string   `json:"location,omitempty"`
	MatchScore        float64  `json:"match_score"`
	MatchedSkills     []string `json:"matched_skills"`
	MissingSkills     []string `json:"missing_skills"`
	ExperienceReasons []string `json:"experience_reasons"`
	ExperienceGaps    []string `json:"experience_gaps"`
}

// CombineAndRank annotates the searched jobs with reasons, concerns and extracted
// details, aggregates market insights, assigns a recommendation from each job's score
// and sorts the jobs by score, highest first. An empty search is summarized without
// any completion call.
func (p *Pipeline) CombineAndRank(ctx context.Context, search *types.SearchOutput, params *types.SearchParameters, profile *types.CVProfile, onProgress ProgressCallback) (*types.RankedResults, error) {
	if len(search.Jobs) == 0 {
		emitProgress(onProgress, steps.CombineAndRank, 1, "nothing to rank")
		return &types.RankedResults{
			Jobs: []types.JobResult{},
			Summary: types.SearchResultsSummary{
				TopSkillsInDemand:  []string{},
				SalaryInsights:     emptySalaryInsights,
				MarketObservations: emptyMarketObservations,
				SearchParams:       searchParamsSummary(params, profile, emptyStrategy),
			},
		}, nil
	}

	jobs := make([]types.JobResult, len(search.Jobs))
	copy(jobs, search.Jobs)

	batch, err := p.rankBatch(ctx, jobs, profile)
	if err != nil {
		return nil, err
	}
	emitProgress(onProgress, steps.CombineAndRank, 0.4, "ranked batch")

	byID := make(map[string]int, len(batch.RankedJobs))
	for i, r := range batch.RankedJobs {
		byID[r.JobID] = i
	}
	for i := range jobs {
		if k, ok := byID[jobs[i].JobID]; ok {
			jobs[i].MatchReasons = batch.RankedJobs[k].MatchReasons
			jobs[i].Concerns = batch.RankedJobs[k].Concerns
		}
	}

	details := p.extractDetails(ctx, jobs, onProgress)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Details = details[i]
		if d := details[i]; d != nil && d.Company != nil && jobs[i].Company == "" {
			jobs[i].Company = strings.TrimSpace(*d.Company)
		}
	}

	var total float64
	relevant := 0
	for i := range jobs {
		jobs[i].MatchScore = jobs[i].ExperienceMatch.Score
		jobs[i].Recommendation = types.RecommendationFor(jobs[i].MatchScore)
		total += jobs[i].MatchScore
		if jobs[i].MatchScore >= relevantScore {
			relevant++
		}
	}
	SortByScore(jobs)

	ordered := make([]*types.JobDetails, len(jobs))
	for i := range jobs {
		ordered[i] = jobs[i].Details
	}
	sp := searchParamsSummary(params, profile, batch.Insights.SearchStrategy)
	sp.SalaryRange = AggregateSalary(ordered)
	sp.TargetCompanies = TopCompanies(ordered, maxTargetCompanies)
	sp.PreferredJobTypes = TopJobTypes(ordered, maxJobTypes)

	emitProgress(onProgress, steps.CombineAndRank, 1, "ranking complete")
	return &types.RankedResults{
		Jobs: jobs,
		Summary: types.SearchResultsSummary{
			TotalFound:         search.TotalFound,
			TotalRelevant:      relevant,
			AverageMatchScore:  total / float64(len(jobs)),
			TopSkillsInDemand:  nonNil(batch.Insights.TopSkillsInDemand),
			SalaryInsights:     batch.Insights.SalaryInsights,
			MarketObservations: batch.Insights.MarketObservations,
			SearchParams:       sp,
		},
	}, nil
}

func (p *Pipeline) rankBatch(ctx context.Context, jobs []types.JobResult, profile *types.CVProfile) (*rankBatch, error) {
	inputs := make([]rankInput, len(jobs))
	for i, j := range jobs {
		inputs[i] = rankInput{
			JobID:             j.JobID,
			Title:             j.Title,
			Company:           j.Company,
			Location:          j.Location,
			MatchScore:        j.ExperienceMatch.Score,
			MatchedSkills:     j.MatchedSkills,
			MissingSkills:     j.MissingSkills,
			ExperienceReasons: j.ExperienceMatch.Reasons,
			ExperienceGaps:    j.ExperienceMatch.Gaps,
		}
	}
	jobsJSON, err := json.MarshalIndent(inputs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal jobs: %w", err)
	}
	profileText, err := profileJSON(profile)
	if err != nil {
		return nil, err
	}

	system, err := prompts.Stage(prompts.RankBatchSystem, nil)
	if err != nil {
		return nil, err
	}
	user, err := prompts.Stage(prompts.RankBatchUser, map[string]string{
		"Profile": profileText,
		"Jobs":    string(jobsJSON),
	})
	if err != nil {
		return nil, err
	}

	batch, err := llm.Complete[rankBatch](ctx, p.llm, llm.Request{
		Name:         "rank_batch",
		SystemPrompt: system,
		UserContent:  user,
		Schema:       schemas.RankBatch,
		Tier:         llm.TierAdvanced,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to rank jobs: %w", err)
	}
	return batch, nil
}

// extractDetails runs one extraction per job, ExtractionBatchSize at a time. A failed
// extraction leaves a nil slot.
func (p *Pipeline) extractDetails(ctx context.Context, jobs []types.JobResult, onProgress ProgressCallback) []*types.JobDetails {
	details := make([]*types.JobDetails, len(jobs))
	system, err := prompts.Stage(prompts.ExtractDetailsSystem, nil)
	if err != nil {
		p.logger.Warn("skipping detail extraction", zap.Error(err))
		return details
	}

	var done atomic.Int32
	var g errgroup.Group
	g.SetLimit(p.opts.ExtractionBatchSize)
	for i := range jobs {
		g.Go(func() error {
			d, err := p.extractOne(ctx, jobs[i].JobID, system)
			if err != nil {
				p.logger.Warn("no details extracted",
					zap.String(logging.FieldJobID, jobs[i].JobID), zap.Error(err))
			} else {
				details[i] = d
			}
			n := done.Add(1)
			emitProgress(onProgress, steps.CombineAndRank, 0.4+0.6*float64(n)/float64(len(jobs)), "extracted "+jobs[i].JobID)
			return nil
		})
	}
	_ = g.Wait()
	return details
}

func (p *Pipeline) extractOne(ctx context.Context, jobID, system string) (*types.JobDetails, error) {
	listing, err := p.listings.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	user, err := prompts.Stage(prompts.ExtractDetailsUser, map[string]string{
		"Listing": listings.RenderForPrompt(*listing),
	})
	if err != nil {
		return nil, err
	}
	return llm.Complete[types.JobDetails](ctx, p.llm, llm.Request{
		Name:         "extract_details",
		SystemPrompt: system,
		UserContent:  user,
		Schema:       schemas.JobDetails,
		Tier:         llm.TierLite,
	})
}

// SortByScore orders jobs by match score, highest first, keeping the input order of
// equal scores, and assigns 1-based ranks.
func SortByScore(jobs []types.JobResult) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].MatchScore > jobs[j].MatchScore
	})
	for i := range jobs {
		jobs[i].Rank = i + 1
	}
}

// AggregateSalary combines the extracted salary bounds into one range. Bounds that are
// not positive, and ranges whose minimum exceeds their maximum, are ignored. The
// currency is the one stated most often among the accepted entries.
func AggregateSalary(details []*types.JobDetails) *types.SalaryRange {
	var (
		out        *types.SalaryRange
		currencies = map[string]int{}
		order      []string
	)
	for _, d := range details {
		if d == nil || (d.SalaryMin == nil && d.SalaryMax == nil) {
			continue
		}
		lo, hi := d.SalaryMin, d.SalaryMax
		if lo == nil {
			lo = hi
		}
		if hi == nil {
			hi = lo
		}
		if *lo <= 0 || *hi <= 0 || *lo > *hi {
			continue
		}
		if out == nil {
			out = &types.SalaryRange{Min: *lo, Max: *hi}
		} else {
			out.Min = min(out.Min, *lo)
			out.Max = max(out.Max, *hi)
		}
		if d.Currency != nil {
			if c := strings.ToUpper(strings.TrimSpace(*d.Currency)); c != "" {
				if currencies[c] == 0 {
					order = append(order, c)
				}
				currencies[c]++
			}
		}
	}
	if out != nil {
		best := 0
		for _, c := range order {
			if currencies[c] > best {
				out.Currency, best = c, currencies[c]
			}
		}
	}
	return out
}

// TopCompanies returns up to limit distinct extracted company names in job order.
func TopCompanies(details []*types.JobDetails, limit int) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, d := range details {
		if d == nil || d.Company == nil {
			continue
		}
		name := strings.TrimSpace(*d.Company)
		key := strings.ToLower(name)
		if name == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
		if len(out) == limit {
			break
		}
	}
	return out
}

// TopJobTypes returns up to limit job types by how often they were extracted, ties
// broken by first appearance.
func TopJobTypes(details []*types.JobDetails, limit int) []string {
	counts := map[string]int{}
	var order []string
	for _, d := range details {
		if d == nil || d.JobType == nil {
			continue
		}
		jt := strings.ToLower(strings.TrimSpace(*d.JobType))
		if jt == "" {
			continue
		}
		if counts[jt] == 0 {
			order = append(order, jt)
		}
		counts[jt]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	return nonNil(order)
}

func searchParamsSummary(params *types.SearchParameters, profile *types.CVProfile, strategy string) types.SummarySearchParams {
	return types.SummarySearchParams{
		OptimizedKeywords: nonNil(SearchTerms(params)),
		TargetJobTitles:   nonNil(params.JobTitleKeywords),
		TargetCompanies:   []string{},
		PreferredJobTypes: []string{},
		Locations:         nonNil(profile.PreferredLocations),
		Strategy:          strategy,
	}
}
