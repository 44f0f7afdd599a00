package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/pipeline"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/summary"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
)

const (
	// markerKey is the object Preflight writes.
	markerKey = ".reportoor-write-test"

	// runMetadataKey tags every object with the run it belongs to.
	runMetadataKey = "reportoor-run"

	defaultRegion = "us-east-1"
)

// objectPolicy is how one artifact is stored.
type objectPolicy struct {
	contentType  string
	cacheControl string
	// rank orders uploads; higher ranks go last.
	rank int
}

// Index files describe the rest of the run and are uploaded after it, so
// a reader that finds them can rely on every other object being present.
var indexPolicies = map[string]objectPolicy{
	summary.RunSummaryFile: {contentType: "application/json", rank: 1},
	pipeline.ReportFile:    {contentType: "application/json", rank: 1},
	report.MarkdownFile:    {contentType: "text/markdown; charset=utf-8", rank: 1},
	// Dashboards poll the status of the latest run.
	summary.LastRunStatusFile: {contentType: "application/json", cacheControl: "no-cache", rank: 2},
}

var extensionTypes = map[string]string{
	".md":   "text/markdown; charset=utf-8",
	".json": "application/json",
	".prom": "text/plain; version=0.0.4; charset=utf-8",
	".log":  "text/plain; charset=utf-8",
	".txt":  "text/plain; charset=utf-8",
}

// policyFor picks the object policy of an artifact from its path relative
// to the output directory.
func policyFor(rel string) objectPolicy {
	if p, ok := indexPolicies[rel]; ok {
		return p
	}

	return objectPolicy{contentType: contentTypeOf(rel)}
}

func contentTypeOf(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return "application/octet-stream"
	}

	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}

	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}

	return "application/octet-stream"
}

// artifact is one local file bound for the bucket.
type artifact struct {
	path   string
	rel    string
	policy objectPolicy
}

// s3Uploader publishes run artifacts to S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	bucket string
	prefix string
	client *s3.Client
}

var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates an uploader for cfg. Static credentials are used
// when both keys are set, the SDK's default chain otherwise.
func NewS3Uploader(log logrus.FieldLogger, cfg *config.S3UploadConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	client := s3.New(s3.Options{
		Region:       defaultRegion,
		UsePathStyle: cfg.ForcePathStyle,
	}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
		}
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = config.DefaultUploadPrefix
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		bucket: cfg.Bucket,
		prefix: prefix,
		client: client,
	}, nil
}

// Preflight writes a marker object to prove the bucket is writable.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	body := "reportoor write test: " + time.Now().UTC().Format(time.RFC3339)

	if err := u.put(ctx, markerKey, strings.NewReader(body), objectPolicy{contentType: "text/plain"}, nil); err != nil {
		return fmt.Errorf("writing marker to s3://%s: %w", u.bucket, err)
	}

	return nil
}

// Upload publishes every file of localDir under prefix/runName. A failed
// object does not stop the others; all failures are returned together.
func (u *s3Uploader) Upload(ctx context.Context, localDir, runName string) error {
	artifacts, err := collectArtifacts(localDir)
	if err != nil {
		return err
	}

	runKey := u.runKey(runName)
	meta := map[string]string{runMetadataKey: runName}

	var (
		result   *multierror.Error
		uploaded int
	)

	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			result = multierror.Append(result, err)

			break
		}

		if err := u.uploadArtifact(ctx, runKey+"/"+a.rel, a, meta); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", a.rel, err))

			continue
		}

		uploaded++
	}

	u.log.WithFields(logrus.Fields{
		"bucket":   u.bucket,
		"key":      runKey,
		"uploaded": uploaded,
		"total":    len(artifacts),
	}).Info("Run artifacts uploaded")

	return result.ErrorOrNil()
}

func (u *s3Uploader) uploadArtifact(ctx context.Context, key string, a artifact, meta map[string]string) error {
	f, err := os.Open(a.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	u.log.WithField("key", key).Debug("Uploading artifact")

	return u.put(ctx, key, f, a.policy, meta)
}

func (u *s3Uploader) put(
	ctx context.Context, key string, body io.Reader, p objectPolicy, meta map[string]string,
) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(p.contentType),
		Metadata:    meta,
	}

	if p.cacheControl != "" {
		in.CacheControl = aws.String(p.cacheControl)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}

	return nil
}

// runKey is the key under which a run's artifacts live.
func (u *s3Uploader) runKey(runName string) string {
	return u.prefix + "/" + runName
}

// collectArtifacts lists the files under dir in upload order: plain
// artifacts by path, then index files.
func collectArtifacts(dir string) ([]artifact, error) {
	var out []artifact

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		rel = filepath.ToSlash(rel)

		out = append(out, artifact{path: p, rel: rel, policy: policyFor(rel)})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing artifacts in %s: %w", dir, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].policy.rank != out[j].policy.rank {
			return out[i].policy.rank < out[j].policy.rank
		}

		return out[i].rel < out[j].rel
	})

	return out, nil
}
