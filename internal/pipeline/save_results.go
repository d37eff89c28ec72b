package pipeline

import (
	"context"
	"fmt"

	"github.com/jonathan/job-matcher/internal/pipeline/steps"
	"github.com/jonathan/job-matcher/internal/types"
	"go.uber.org/zap"
)

// SaveResults persists the ranked jobs and summary of run. Saving again replaces the
// earlier copy, so a retried save never duplicates rows.
func (p *Pipeline) SaveResults(ctx context.Context, run *types.WorkflowRun, ranked *types.RankedResults, onProgress ProgressCallback) (*types.SaveReceipt, error) {
	if p.results == nil {
		return nil, fmt.Errorf("no result store configured")
	}
	emitProgress(onProgress, steps.SaveResults, 0.1, "saving results")

	receipt, err := p.results.SaveResults(ctx, run, ranked)
	if err != nil {
		return nil, fmt.Errorf("failed to save results: %w", err)
	}

	p.logger.Info("saved results", zap.Int("jobs", receipt.JobCount))
	emitProgress(onProgress, steps.SaveResults, 1, "results saved")
	return receipt, nil
}
