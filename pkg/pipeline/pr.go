package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	errNoCodeBlock   = errors.New("fix suggestion contains no code block")
	errBranchExists  = errors.New("branch already exists")
	errNoPullRequest = errors.New("provider returned no pull request")

	errNoSourceRoot      = errors.New("absolute test file needs report.source_root")
	errOutsideSourceRoot = errors.New("test file is outside the source root")
)

// openPullRequest turns a fix suggestion into a branch, a single-file
// commit and a pull request. Any failing step abandons only this
// failure's pull request.
func (o *Orchestrator) openPullRequest(
	ctx context.Context, r *run, f summary.Failure, suggestion string, limiter *rate.Limiter,
) {
	r.pr.Attempted++

	res, err := o.createPullRequest(ctx, f, suggestion, limiter)
	if err != nil {
		o.itemFailed(r.pr, f.TestID, err)

		return
	}

	r.report.PullRequests = append(r.report.PullRequests, *res)
	o.itemOK(r.pr)

	o.log.WithFields(logrus.Fields{
		"channel": r.pr.Channel,
		"item":    f.TestID,
		"url":     res.PR.URL,
	}).Info("Pull request opened")
}

func (o *Orchestrator) createPullRequest(
	ctx context.Context, f summary.Failure, suggestion string, limiter *rate.Limiter,
) (*PRResult, error) {
	code, ok := extractCode(suggestion)
	if !ok {
		return nil, provider.NewError(provider.KindPermanent, "extract fix", errNoCodeBlock)
	}

	path, err := o.repoPath(f.TestFile)
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "resolve commit path", err)
	}

	prCfg := o.cfg.Pipeline.PR
	branch := branchName(f.TestTitle, o.now().Unix())

	if err := wait(ctx, limiter); err != nil {
		return nil, err
	}

	created, err := o.providers.PR.CreateBranch(ctx, branch, prCfg.BaseBranch)
	if err != nil {
		return nil, err
	}

	if !created {
		return nil, provider.NewError(provider.KindPermanent, "create branch", fmt.Errorf("%s: %w", branch, errBranchExists))
	}

	if err := wait(ctx, limiter); err != nil {
		return nil, err
	}

	commitID, err := o.providers.PR.CommitChanges(ctx, branch, []provider.FileChange{{
		Path:    path,
		Content: code,
	}}, commitMessage(f))
	if err != nil {
		return nil, err
	}

	body, err := render(prTmpl, struct {
		Failure    summary.Failure
		Suggestion string
		CommitID   string
	}{f, suggestion, commitID})
	if err != nil {
		return nil, provider.NewError(provider.KindPermanent, "render pull request", err)
	}

	if err := wait(ctx, limiter); err != nil {
		return nil, err
	}

	pr, err := o.providers.PR.CreatePullRequest(ctx, provider.PullRequestOptions{
		Title:      "Fix failing test: " + f.TestTitle,
		Body:       body,
		HeadBranch: branch,
		BaseBranch: prCfg.BaseBranch,
		Draft:      prCfg.Draft,
		Labels:     prCfg.Labels,
	})
	if err != nil {
		return nil, err
	}

	if pr == nil {
		return nil, provider.NewError(provider.KindPermanent, "create pull request", errNoPullRequest)
	}

	return &PRResult{
		TestID:   f.TestID,
		Branch:   branch,
		CommitID: commitID,
		PR:       pr,
	}, nil
}

// branchName builds fix/<sanitized title>-<unix timestamp>.
func branchName(title string, ts int64) string {
	return fmt.Sprintf("fix/%s-%d", fsutil.SanitizeName(title), ts)
}

func commitMessage(f summary.Failure) string {
	var b strings.Builder

	b.WriteString("fix(test): " + f.TestTitle + "\n\n")
	b.WriteString("Test: " + f.TestID + "\n")
	b.WriteString("Suite: " + f.SuiteTitle + "\n")
	b.WriteString("File: " + f.TestFile + "\n")
	b.WriteString("Error: " + excerpt(f.ErrorMessage, errorExcerptChars) + "\n")

	return b.String()
}
