package github

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/sirupsen/logrus"
)

type issueRequest struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
}

type issue struct {
	ID      int64  `json:"id"`
	Number  int    `json:"number"`
	Title   string `json:"title"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
}

// CreateBug opens an issue. With dedupe enabled an open issue with the
// same title is returned instead of filing a new one.
func (c *Client) CreateBug(ctx context.Context, details provider.BugDetails) (*provider.Bug, error) {
	if c.cfg.Dedupe {
		existing, err := c.findOpenIssue(ctx, details.Title)
		if err != nil {
			return nil, err
		}

		if existing != nil {
			c.log.WithFields(logrus.Fields{
				"issue": existing.Number,
				"test":  details.TestID,
			}).Info("Open issue already exists, skipping")

			return &provider.Bug{
				ID:     strconv.Itoa(existing.Number),
				URL:    existing.HTMLURL,
				Status: "duplicate",
			}, nil
		}
	}

	labels := make([]string, 0, len(details.Labels)+1)
	labels = append(labels, details.Labels...)

	if details.Priority != "" {
		labels = append(labels, "priority: "+string(details.Priority))
	}

	req := issueRequest{
		Title:  details.Title,
		Body:   details.Description,
		Labels: labels,
	}

	if details.Assignee != "" {
		req.Assignees = []string{details.Assignee}
	}

	var created issue
	if err := c.do(ctx, "create issue", http.MethodPost, c.repoPath("/issues"), req, &created); err != nil {
		return nil, err
	}

	return &provider.Bug{
		ID:     strconv.Itoa(created.Number),
		URL:    created.HTMLURL,
		Status: created.State,
	}, nil
}

func (c *Client) findOpenIssue(ctx context.Context, title string) (*issue, error) {
	var issues []issue

	path := c.repoPath("/issues?state=open&per_page=100")
	if err := c.do(ctx, "list issues", http.MethodGet, path, nil, &issues); err != nil {
		return nil, err
	}

	for i := range issues {
		if issues[i].Title == title {
			return &issues[i], nil
		}
	}

	return nil, nil
}
