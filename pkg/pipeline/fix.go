package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// FixesDir is the artifact subdirectory for prompts and suggestions.
const FixesDir = "fixes"

func (o *Orchestrator) runFixSuggestions(ctx context.Context, r *run) {
	if !r.fix.Enabled() {
		o.skip(r.fix)

		if r.pr.Enabled() {
			o.misconfigured(r.pr, "enable pipeline.generate_fix; pull requests are opened from fix suggestions",
				errors.New("pull request automation requires fix suggestions"))
		} else {
			o.skip(r.pr)
		}

		return
	}

	if o.providers.AI == nil {
		o.misconfigured(r.fix, "configure providers.ai", provider.ErrNotConfigured)

		if r.pr.Enabled() {
			o.misconfigured(r.pr, "configure providers.ai", errors.New("no fix suggestions to open pull requests from"))
		} else {
			o.skip(r.pr)
		}

		return
	}

	prActive := r.pr.Enabled()

	switch {
	case !prActive:
		o.skip(r.pr)
	case o.providers.PR == nil:
		o.misconfigured(r.pr, "configure providers.pr", provider.ErrNotConfigured)

		prActive = false
	}

	r.fix.start()

	if prActive {
		r.pr.start()
	}

	fixesDir := filepath.Join(o.cfg.OutputDir, FixesDir)

	// Only this run's failures keep fix artifacts.
	if err := os.RemoveAll(fixesDir); err != nil {
		o.log.WithError(err).WithField("dir", fixesDir).Warn("Failed to purge previous fix artifacts")
	}

	limiter := newLimiter(o.cfg.Pipeline.Fix.RateLimitConfig)
	prLimiter := newLimiter(o.cfg.Pipeline.PR.RateLimitConfig)
	names := make(artifactNames, len(r.in.Summary.Failures))

	for i, f := range r.in.Summary.Failures {
		if r.fix.Aborted {
			r.fix.Skipped += len(r.in.Summary.Failures) - i

			break
		}

		if f.TestFile == "" {
			o.log.WithFields(logrus.Fields{
				"channel": r.fix.Channel,
				"item":    f.TestID,
			}).Debug("No source file for failure, skipping fix")

			r.fix.Skipped++

			continue
		}

		r.fix.Attempted++

		suggestion, truncated, err := o.suggestFix(ctx, r, f, fixesDir, names.claim(f.TestID), limiter)
		if err != nil {
			// An aborting kind is picked up at the top of the loop.
			o.itemFailed(r.fix, f.TestID, err)

			continue
		}

		o.itemOK(r.fix)

		switch {
		case !prActive:
		case r.pr.Aborted:
			r.pr.Skipped++
		case truncated:
			// The suggestion was written against a partial file.
			o.log.WithFields(logrus.Fields{
				"channel": r.pr.Channel,
				"item":    f.TestID,
			}).Warn("Fix prompt carried a truncated source, skipping pull request")

			r.pr.Skipped++
		default:
			o.openPullRequest(ctx, r, f, suggestion, prLimiter)
		}
	}
}

// suggestFix persists the prompt, asks the AI provider for a fix and
// persists the suggestion under name. truncated reports whether the prompt
// carried only part of the source.
func (o *Orchestrator) suggestFix(
	ctx context.Context, r *run, f summary.Failure, fixesDir, name string, limiter *rate.Limiter,
) (suggestion string, truncated bool, err error) {
	source, err := os.ReadFile(o.sourcePath(f.TestFile))
	if err != nil {
		return "", false, provider.NewError(provider.KindPermanent, "read source", err)
	}

	fixCfg := o.cfg.Pipeline.Fix

	prompt, truncated, err := buildPrompt(f, string(source), fixCfg.StackLines, fixCfg.MaxSourceBytes)
	if err != nil {
		return "", false, provider.NewError(provider.KindPermanent, "build prompt", err)
	}

	promptPath := filepath.Join(fixesDir, name+".prompt.md")
	fixPath := filepath.Join(fixesDir, name+".fix.md")

	if err := fsutil.WriteFile(promptPath, []byte(prompt), o.cfg.Owner); err != nil {
		return "", false, provider.NewError(provider.KindPermanent, "write prompt", err)
	}

	if err := wait(ctx, limiter); err != nil {
		return "", false, err
	}

	suggestion, err = o.providers.AI.GenerateCompletion(ctx, prompt)
	if err != nil {
		return "", false, err
	}

	if err := fsutil.WriteFile(fixPath, []byte(suggestion), o.cfg.Owner); err != nil {
		return "", false, provider.NewError(provider.KindPermanent, "write suggestion", fmt.Errorf("%s: %w", fixPath, err))
	}

	r.report.Fixes = append(r.report.Fixes, FixResult{
		TestID:     f.TestID,
		PromptPath: promptPath,
		FixPath:    fixPath,
		Truncated:  truncated,
	})

	return suggestion, truncated, nil
}

// artifactNames hands out collision-free artifact base names. Sanitizing
// is lossy, so distinct test ids can map to the same name; later claims
// get a numeric suffix.
type artifactNames map[string]struct{}

func (n artifactNames) claim(testID string) string {
	base := fsutil.SanitizeName(testID)

	name := base
	for i := 2; ; i++ {
		if _, taken := n[name]; !taken {
			break
		}

		name = fmt.Sprintf("%s-%d", base, i)
	}

	n[name] = struct{}{}

	return name
}

// repoPath converts a runner-reported file into the repository-relative,
// slash-separated path a commit modifies. Absolute paths must lie under
// the source root.
func (o *Orchestrator) repoPath(file string) (string, error) {
	if !filepath.IsAbs(file) {
		rel := filepath.Clean(file)
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", fmt.Errorf("%s: %w", file, errOutsideSourceRoot)
		}

		return filepath.ToSlash(rel), nil
	}

	if o.cfg.SourceRoot == "" {
		return "", fmt.Errorf("%s: %w", file, errNoSourceRoot)
	}

	root, err := filepath.Abs(o.cfg.SourceRoot)
	if err != nil {
		return "", fmt.Errorf("resolving source root: %w", err)
	}

	rel, err := filepath.Rel(root, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s: %w", file, errOutsideSourceRoot)
	}

	return filepath.ToSlash(rel), nil
}

// sourcePath resolves a runner-reported file against the source root.
func (o *Orchestrator) sourcePath(file string) string {
	if filepath.IsAbs(file) || o.cfg.SourceRoot == "" {
		return file
	}

	return filepath.Join(o.cfg.SourceRoot, file)
}
