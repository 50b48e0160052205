package cmr

import "runtime"

// ProgressFunc is invoked as bytes are written for an individual granule.
type ProgressFunc func(FileProgress)

// FileProgress reports download progress for a single granule.
type FileProgress struct {
	Granule    GranuleReference
	FileName   string
	Downloaded int64
	Total      int64
}

type downloadConfig struct {
	concurrency int
	progress    ProgressFunc
}

// DownloadOption customises how granules are downloaded.
type DownloadOption func(*downloadConfig)

// WithDownloadConcurrency specifies the number of granules to fetch in parallel.
func WithDownloadConcurrency(n int) DownloadOption {
	return func(cfg *downloadConfig) {
		if n > 0 {
			cfg.concurrency = n
		}
	}
}

// WithProgress registers a callback to receive download progress notifications.
func WithProgress(fn ProgressFunc) DownloadOption {
	return func(cfg *downloadConfig) {
		cfg.progress = fn
	}
}

func newDownloadConfig(opts []DownloadOption) downloadConfig {
	var cfg downloadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.concurrency <= 0 {
		cfg.concurrency = runtime.NumCPU()
	}
	return cfg
}
