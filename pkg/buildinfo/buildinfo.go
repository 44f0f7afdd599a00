// Package buildinfo collects the build and host metadata attached to a run
// summary.
package buildinfo

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// Info is the build metadata of a run.
type Info struct {
	Repository string            `json:"repository,omitempty"`
	Commit     string            `json:"commit,omitempty"`
	Branch     string            `json:"branch,omitempty"`
	BuildID    string            `json:"build_id,omitempty"`
	BuildURL   string            `json:"build_url,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Host       *HostInfo         `json:"host,omitempty"`
}

// HostInfo describes the machine the run was observed on.
type HostInfo struct {
	Hostname        string  `json:"hostname"`
	OS              string  `json:"os"`
	Platform        string  `json:"platform,omitempty"`
	PlatformVersion string  `json:"platform_version,omitempty"`
	KernelVersion   string  `json:"kernel_version,omitempty"`
	Arch            string  `json:"arch"`
	CPUModel        string  `json:"cpu_model,omitempty"`
	CPUCores        int     `json:"cpu_cores,omitempty"`
	MemoryTotalGB   float64 `json:"memory_total_gb,omitempty"`
}

// Provider supplies build metadata for a run.
type Provider interface {
	Collect(ctx context.Context) (*Info, error)
}

// Config for the collector.
type Config struct {
	Labels      map[string]string
	CollectHost bool
}

// NewCollector creates a Provider reading CI environment variables and,
// optionally, host details.
func NewCollector(log logrus.FieldLogger, cfg Config) Provider {
	return &collector{
		log:    log.WithField("component", "buildinfo"),
		cfg:    cfg,
		getenv: os.Getenv,
	}
}

type collector struct {
	log    logrus.FieldLogger
	cfg    Config
	getenv func(string) string
}

var _ Provider = (*collector)(nil)

// Collect builds the Info. Host collection failures are logged, not returned.
func (c *collector) Collect(ctx context.Context) (*Info, error) {
	info := c.fromEnv()

	if len(c.cfg.Labels) > 0 {
		info.Labels = make(map[string]string, len(c.cfg.Labels))
		for k, v := range c.cfg.Labels {
			info.Labels[k] = v
		}
	}

	if c.cfg.CollectHost {
		h, err := collectHost(ctx)
		if err != nil {
			c.log.WithError(err).Warn("Failed to collect host info")
		} else {
			info.Host = h
		}
	}

	return info, nil
}

// fromEnv reads the common CI variables, GitHub Actions first.
func (c *collector) fromEnv() *Info {
	info := &Info{
		Repository: c.first("GITHUB_REPOSITORY", "CI_PROJECT_PATH"),
		Commit:     c.first("GITHUB_SHA", "CI_COMMIT_SHA", "GIT_COMMIT"),
		Branch:     c.first("GITHUB_HEAD_REF", "GITHUB_REF_NAME", "CI_COMMIT_REF_NAME", "GIT_BRANCH"),
		BuildID:    c.first("GITHUB_RUN_ID", "CI_PIPELINE_ID", "BUILD_ID"),
		BuildURL:   c.first("CI_PIPELINE_URL", "BUILD_URL"),
	}

	if info.BuildURL == "" && info.Repository != "" && info.BuildID != "" {
		if server := c.getenv("GITHUB_SERVER_URL"); server != "" {
			info.BuildURL = fmt.Sprintf("%s/%s/actions/runs/%s",
				server, info.Repository, info.BuildID)
		}
	}

	return info
}

func (c *collector) first(keys ...string) string {
	for _, k := range keys {
		if v := c.getenv(k); v != "" {
			return v
		}
	}

	return ""
}

func collectHost(ctx context.Context) (*HostInfo, error) {
	hi, err := host.InfoWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	out := &HostInfo{
		Hostname:        hi.Hostname,
		OS:              hi.OS,
		Platform:        hi.Platform,
		PlatformVersion: hi.PlatformVersion,
		KernelVersion:   hi.KernelVersion,
		Arch:            runtime.GOARCH,
	}

	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		out.CPUModel = cpus[0].ModelName
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CPUCores = cores
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out.MemoryTotalGB = float64(vm.Total) / (1 << 30)
	}

	return out, nil
}
