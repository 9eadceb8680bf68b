// Package storage persists generated artifacts and mints the URLs handed back
// to callers. MinioStore is the production backend; FileStore keeps local and
// CI environments working without an object storage service.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Store is the object storage contract the job pipeline needs: put bytes at a
// URI, derive an output URI for a job, and mint a time-limited fetch URL.
type Store interface {
	Upload(ctx context.Context, uri string, data []byte, mimeType string) error
	OutputURI(jobID, filename string) string
	SignedURL(ctx context.Context, uri string, expiry time.Duration) (string, error)
}

// splitURI separates a storage URI into its bucket and key, e.g.
// "s3://media/generated/a/b.mp4" -> ("media", "generated/a/b.mp4").
func splitURI(uri string) (bucket, key string, err error) {
	i := strings.Index(uri, "://")
	if i < 0 {
		return "", "", fmt.Errorf("storage: uri %q has no scheme", uri)
	}
	rest := uri[i+3:]
	j := strings.Index(rest, "/")
	if j <= 0 || j == len(rest)-1 {
		return "", "", fmt.Errorf("storage: uri %q has no key", uri)
	}
	return rest[:j], rest[j+1:], nil
}
