package github

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/provider"
)

type gitRef struct {
	Ref    string `json:"ref"`
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

type createRefRequest struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type contentFile struct {
	SHA string `json:"sha"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putContentResponse struct {
	Commit struct {
		SHA string `json:"sha"`
	} `json:"commit"`
}

type pullRequestRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Draft bool   `json:"draft"`
}

type pullRequest struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	Draft   bool   `json:"draft"`
}

type labelsRequest struct {
	Labels []string `json:"labels"`
}

// CreateBranch creates name from the head of base. It returns false when
// the branch already exists.
func (c *Client) CreateBranch(ctx context.Context, name, base string) (bool, error) {
	var ref gitRef
	if err := c.do(ctx, "get base ref", http.MethodGet,
		c.repoPath("/git/ref/heads/%s", escapePath(base)), nil, &ref); err != nil {
		return false, err
	}

	err := c.do(ctx, "create branch", http.MethodPost, c.repoPath("/git/refs"), createRefRequest{
		Ref: "refs/heads/" + name,
		SHA: ref.Object.SHA,
	}, nil)
	if statusCode(err) == http.StatusUnprocessableEntity {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// CommitChanges writes each file to branch through the contents API and
// returns the sha of the last commit.
func (c *Client) CommitChanges(
	ctx context.Context, branch string, files []provider.FileChange, message string,
) (string, error) {
	if len(files) == 0 {
		return "", provider.NewError(provider.KindPermanent, "commit changes", errors.New("no files to commit"))
	}

	var commitID string

	for _, file := range files {
		path := c.repoPath("/contents/%s", escapePath(file.Path))

		// Updating an existing file requires its blob sha.
		var existing contentFile

		err := c.do(ctx, "get file", http.MethodGet, path+"?ref="+url.QueryEscape(branch), nil, &existing)
		if err != nil && statusCode(err) != http.StatusNotFound {
			return "", err
		}

		var resp putContentResponse
		if err := c.do(ctx, "commit file", http.MethodPut, path, putContentRequest{
			Message: message,
			Content: base64.StdEncoding.EncodeToString([]byte(file.Content)),
			Branch:  branch,
			SHA:     existing.SHA,
		}, &resp); err != nil {
			return "", err
		}

		commitID = resp.Commit.SHA
	}

	return commitID, nil
}

// CreatePullRequest opens a pull request and applies labels. Labeling
// failures are logged only.
func (c *Client) CreatePullRequest(ctx context.Context, opts provider.PullRequestOptions) (*provider.PullRequest, error) {
	var pr pullRequest
	if err := c.do(ctx, "create pull request", http.MethodPost, c.repoPath("/pulls"), pullRequestRequest{
		Title: opts.Title,
		Body:  opts.Body,
		Head:  opts.HeadBranch,
		Base:  opts.BaseBranch,
		Draft: opts.Draft,
	}, &pr); err != nil {
		return nil, err
	}

	if len(opts.Labels) > 0 {
		if err := c.do(ctx, "label pull request", http.MethodPost,
			c.repoPath("/issues/%d/labels", pr.Number), labelsRequest{Labels: opts.Labels}, nil); err != nil {
			c.log.WithError(err).WithField("pr", pr.Number).Warn("Failed to label pull request")
		}
	}

	status := pr.State
	if pr.Draft {
		status = "draft"
	}

	return &provider.PullRequest{
		ID:     strconv.FormatInt(pr.ID, 10),
		Number: pr.Number,
		URL:    pr.HTMLURL,
		Status: status,
	}, nil
}

// escapePath escapes each segment of a slash separated path.
func escapePath(p string) string {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}
