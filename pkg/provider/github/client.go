// Package github files bugs as GitHub issues and automates fix pull
// requests through the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/provider"
	"github.com/sirupsen/logrus"
)

const (
	githubAPIBaseURL  = "https://api.github.com"
	githubHTTPTimeout = 30 * time.Second
	githubAPIVersion  = "2022-11-28"
)

// Client talks to a single GitHub repository.
type Client struct {
	log     logrus.FieldLogger
	http    *http.Client
	baseURL string
	cfg     config.GitHubSettings
}

var (
	_ provider.BugTrackerProvider = (*Client)(nil)
	_ provider.PRProvider         = (*Client)(nil)
)

// New creates a Client from validated settings.
func New(log logrus.FieldLogger, cfg *config.GitHubSettings) *Client {
	baseURL := githubAPIBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &Client{
		log:     log.WithField("component", "github"),
		http:    &http.Client{Timeout: githubHTTPTimeout},
		baseURL: baseURL,
		cfg:     *cfg,
	}
}

type apiError struct {
	Message string `json:"message"`
}

// statusError is returned for non-2xx responses.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github returned %d", e.Code)
	}

	return fmt.Sprintf("github returned %d: %s", e.Code, e.Message)
}

func (c *Client) repoPath(format string, args ...any) string {
	return fmt.Sprintf("/repos/%s/%s", c.cfg.Owner, c.cfg.Repo) + fmt.Sprintf(format, args...)
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Failures are returned as *provider.Error with a kind derived from the
// HTTP status.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader

	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return provider.NewError(provider.KindPermanent, op, fmt.Errorf("encoding request: %w", err))
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return provider.NewError(provider.KindPermanent, op, fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("X-GitHub-Api-Version", githubAPIVersion)

	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return provider.NewError(provider.KindTransient, op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provider.NewError(provider.KindTransient, op, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		_ = json.Unmarshal(respBody, &apiErr)

		return provider.NewError(
			provider.KindForStatus(resp.StatusCode), op,
			&statusError{Code: resp.StatusCode, Message: apiErr.Message},
		)
	}

	if out == nil {
		return nil
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return provider.NewError(provider.KindPermanent, op, fmt.Errorf("parsing response: %w", err))
	}

	return nil
}

// statusCode extracts the HTTP status from an error returned by do.
func statusCode(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.Code
	}

	return 0
}
