package callrecord

import (
	"context"
	"strings"
)

// Options selects the configured backends.
type Options struct {
	DatabaseURL string
	S3Bucket    string
	S3Prefix    string
	AWSRegion   string
}

// NewStore fans out to postgres and/or S3 when configured, otherwise keeps
// records in memory.
func NewStore(ctx context.Context, opts Options) (*Fanout, error) {
	var backends []Backend
	if strings.TrimSpace(opts.DatabaseURL) != "" {
		pg, err := NewPostgresStore(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		backends = append(backends, Backend{Name: "postgres", Store: pg})
	}
	if strings.TrimSpace(opts.S3Bucket) != "" {
		s3store, err := NewS3Store(ctx, opts.S3Bucket, opts.S3Prefix, opts.AWSRegion)
		if err != nil {
			for _, b := range backends {
				_ = b.Store.Close()
			}
			return nil, err
		}
		backends = append(backends, Backend{Name: "s3", Store: s3store})
	}
	if len(backends) == 0 {
		backends = append(backends, Backend{Name: "memory", Store: NewInMemoryStore()})
	}
	return NewFanout(backends...), nil
}
