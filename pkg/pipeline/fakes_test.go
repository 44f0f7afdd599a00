package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/ethpandaops/reportoor/pkg/summary"
)

type fakeAI struct {
	mu       sync.Mutex
	prompts  []string
	response string
	errs     map[int]error
	ctxErrs  []error
}

func (f *fakeAI) GenerateCompletion(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())

	if err := f.errs[idx]; err != nil {
		return "", err
	}

	return f.response, nil
}

type fakeBugTracker struct {
	mu      sync.Mutex
	details []provider.BugDetails
	err     func(idx int, d provider.BugDetails) error
}

func (f *fakeBugTracker) CreateBug(_ context.Context, d provider.BugDetails) (*provider.Bug, error) {
	f.mu.Lock()
	idx := len(f.details)
	f.details = append(f.details, d)
	f.mu.Unlock()

	if f.err != nil {
		if err := f.err(idx, d); err != nil {
			return nil, err
		}
	}

	return &provider.Bug{ID: d.TestID, URL: "https://bugs/" + d.TestID, Status: "open"}, nil
}

type fakePR struct {
	branches  []string
	bases     []string
	commits   [][]provider.FileChange
	messages  []string
	prs       []provider.PullRequestOptions
	exists    bool
	commitErr error
}

func (f *fakePR) CreateBranch(_ context.Context, name, base string) (bool, error) {
	f.branches = append(f.branches, name)
	f.bases = append(f.bases, base)

	return !f.exists, nil
}

func (f *fakePR) CommitChanges(_ context.Context, _ string, files []provider.FileChange, message string) (string, error) {
	if f.commitErr != nil {
		return "", f.commitErr
	}

	f.commits = append(f.commits, files)
	f.messages = append(f.messages, message)

	return fmt.Sprintf("sha-%d", len(f.commits)), nil
}

func (f *fakePR) CreatePullRequest(_ context.Context, opts provider.PullRequestOptions) (*provider.PullRequest, error) {
	f.prs = append(f.prs, opts)

	n := len(f.prs)

	return &provider.PullRequest{ID: fmt.Sprint(n), Number: n, URL: fmt.Sprintf("https://prs/%d", n), Status: "draft"}, nil
}

type fakeDB struct {
	runs      []provider.TestRun
	results   []provider.TestResult
	runErr    error
	resultErr map[string]error
}

func (f *fakeDB) SaveTestRun(_ context.Context, run provider.TestRun) (string, error) {
	if f.runErr != nil {
		return "", f.runErr
	}

	f.runs = append(f.runs, run)

	return "run-1", nil
}

func (f *fakeDB) SaveTestResult(_ context.Context, r provider.TestResult) (string, error) {
	if err := f.resultErr[r.TestID]; err != nil {
		return "", err
	}

	f.results = append(f.results, r)

	return fmt.Sprintf("res-%d", len(f.results)), nil
}

type fakeNotifier struct {
	summaries []*summary.RunSummary
	failures  [][]summary.Failure
	opts      []provider.NotificationOptions
	err       error
}

func (f *fakeNotifier) SendTestSummary(
	_ context.Context, s *summary.RunSummary, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.summaries = append(f.summaries, s)
	f.opts = append(f.opts, opts)

	return &provider.NotificationResult{ID: "summary", Sent: true}, nil
}

func (f *fakeNotifier) SendTestFailures(
	_ context.Context, failures []summary.Failure, opts provider.NotificationOptions,
) (*provider.NotificationResult, error) {
	if f.err != nil {
		return nil, f.err
	}

	f.failures = append(f.failures, failures)
	f.opts = append(f.opts, opts)

	return &provider.NotificationResult{ID: "failures", Sent: true}, nil
}

type fakeRecorder struct {
	items  map[string][2]int
	states map[string]string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{items: map[string][2]int{}, states: map[string]string{}}
}

func (f *fakeRecorder) ChannelItem(channel string, ok bool) {
	c := f.items[channel]
	if ok {
		c[0]++
	} else {
		c[1]++
	}

	f.items[channel] = c
}

func (f *fakeRecorder) ChannelState(channel, state string) {
	f.states[channel] = state
}
