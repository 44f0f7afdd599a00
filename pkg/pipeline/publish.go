package pipeline

import (
	"context"

	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/sirupsen/logrus"
)

func (o *Orchestrator) runDBPublish(ctx context.Context, r *run) {
	if !r.db.Enabled() {
		o.skip(r.db)

		return
	}

	if o.providers.Database == nil {
		o.misconfigured(r.db, "configure providers.database", provider.ErrNotConfigured)

		return
	}

	r.db.start()

	s := r.in.Summary
	limiter := newLimiter(o.cfg.Pipeline.DB)

	r.db.Attempted++

	if err := wait(ctx, limiter); err != nil {
		o.itemFailed(r.db, "run", err)
		r.db.Aborted = true
		r.db.Skipped += len(r.in.Records)

		return
	}

	runID, err := o.providers.Database.SaveTestRun(ctx, testRun(s))
	if err != nil {
		// Results cannot be linked without a run row.
		o.itemFailed(r.db, "run", err)
		r.db.Aborted = true
		r.db.Skipped += len(r.in.Records)

		return
	}

	r.report.RunID = runID
	o.itemOK(r.db)

	categories := make(map[string]summary.Failure, len(s.Failures))
	for _, f := range s.Failures {
		categories[f.TestID] = f
	}

	for i, rec := range r.in.Records {
		if r.db.Aborted {
			r.db.Skipped += len(r.in.Records) - i

			break
		}

		r.db.Attempted++

		final := rec.FinalAttempt()
		result := provider.TestResult{
			RunID:        runID,
			TestID:       rec.ID(),
			Title:        rec.Identity().Title,
			Suite:        rec.Identity().Suite,
			File:         rec.Metadata().File,
			Status:       string(final.Status),
			Retries:      rec.RetryCount(),
			DurationSecs: final.Duration.Seconds(),
			ErrorMessage: final.FirstError().Message,
		}

		if f, ok := categories[rec.ID()]; ok {
			result.Category = string(f.Category)
		}

		if err := wait(ctx, limiter); err != nil {
			o.itemFailed(r.db, rec.ID(), err)

			continue
		}

		// No retries; a failed row is reported and the next one attempted.
		if _, err := o.providers.Database.SaveTestResult(ctx, result); err != nil {
			o.itemFailed(r.db, rec.ID(), err)

			continue
		}

		o.itemOK(r.db)
	}

	o.log.WithFields(logrus.Fields{
		"channel": r.db.Channel,
		"run_id":  runID,
		"rows":    r.db.Succeeded,
	}).Info("Results published")
}

func testRun(s *summary.RunSummary) provider.TestRun {
	run := provider.TestRun{
		StartedAt:     s.StartedAt,
		EndedAt:       s.EndedAt,
		Status:        runStatus(s),
		TestCount:     s.TestCount,
		PassedCount:   s.PassedCount,
		FailedCount:   s.FailedCount,
		SkippedCount:  s.SkippedCount,
		FlakyCount:    s.FlakyCount,
		DurationSecs:  s.TotalWallClockSeconds,
		RunnerVersion: s.Run.RunnerVersion,
	}

	if s.Build != nil {
		run.Commit = s.Build.Commit
		run.Branch = s.Build.Branch
		run.BuildID = s.Build.BuildID
		run.BuildURL = s.Build.BuildURL
	}

	return run
}

func runStatus(s *summary.RunSummary) string {
	if s.HasErrors() {
		return summary.StatusFailed
	}

	return summary.StatusPassed
}
