// Package upload publishes a finished run's output directory to remote
// storage.
package upload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethpandaops/reportoor/pkg/fsutil"
)

// Uploader uploads a local output directory to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable
	// by writing a small marker object.
	Preflight(ctx context.Context) error

	// Upload uploads every file in localDir under prefix + "/" + runName.
	Upload(ctx context.Context, localDir, runName string) error
}

// RunName builds the remote directory name of a run from its start time
// and an optional build id.
func RunName(startedAt time.Time, buildID string) string {
	name := startedAt.UTC().Format("20060102T150405Z")

	if id := strings.TrimSpace(buildID); id != "" {
		name = fmt.Sprintf("%s_%s", name, fsutil.SanitizeName(id))
	}

	return name
}
