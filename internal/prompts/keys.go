package prompts

// Prompt keys in stages.json.
const (
	ParseCVSystem        = "parse-cv-system"
	ParseCVUser          = "parse-cv-user"
	TuneSearchSystem     = "tune-search-system"
	TuneSearchUser       = "tune-search-user"
	JobAnalysisSystem    = "job-analysis-system"
	JobAnalysisUser      = "job-analysis-user"
	RankBatchSystem      = "rank-batch-system"
	RankBatchUser        = "rank-batch-user"
	ExtractDetailsSystem = "extract-details-system"
	ExtractDetailsUser   = "extract-details-user"
)

// StageKeys lists every prompt the pipeline uses.
var StageKeys = []string{
	ParseCVSystem, ParseCVUser,
	TuneSearchSystem, TuneSearchUser,
	JobAnalysisSystem, JobAnalysisUser,
	RankBatchSystem, RankBatchUser,
	ExtractDetailsSystem, ExtractDetailsUser,
}
