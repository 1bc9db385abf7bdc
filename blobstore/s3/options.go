package s3

import "github.com/aws/aws-sdk-go-v2/feature/s3/manager"

// UploadConfig tunes multipart uploads.
type UploadConfig struct {
	// PartSize is the multipart part size in bytes.
	PartSize int64
	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int
	// LeavePartsOnError keeps uploaded parts when an upload fails.
	LeavePartsOnError bool
}

// DefaultUploadConfig returns 8 MiB parts with five concurrent uploads.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		PartSize:    8 << 20,
		Concurrency: 5,
	}
}

type options struct {
	prefix string
	upload UploadConfig
}

// Option configures a Store.
type Option func(*options)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithUploadConfig replaces the multipart upload settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(o *options) { o.upload = cfg }
}

func newUploader(client manager.UploadAPIClient, cfg UploadConfig) *manager.Uploader {
	return manager.NewUploader(client, func(u *manager.Uploader) {
		if cfg.PartSize >= manager.MinUploadPartSize {
			u.PartSize = cfg.PartSize
		}
		if cfg.Concurrency > 0 {
			u.Concurrency = cfg.Concurrency
		}
		u.LeavePartsOnError = cfg.LeavePartsOnError
	})
}
