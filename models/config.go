package models

import (
	"errors"
	"time"
)

// Defaults for the sink thresholds: a quiet-period debounce of 20s, a 10KB
// buffer trigger, hourly rotation and a 200KB object cap.
const (
	DefaultUploadDelay = 20 * time.Second
	DefaultBufferSize  = 10_000
	DefaultRotateEvery = time.Hour
	DefaultMaxFileSize = 200_000

	DefaultEnvironment = "development"
)

// SinkConfig is the immutable configuration of one sink instance.
type SinkConfig struct {
	// Bucket is the destination bucket. Required.
	Bucket string
	// Folder is the key prefix; normalized to exactly one trailing "/".
	Folder string
	// Tags become the object tagging string, key=value pairs joined by "&".
	Tags map[string]string
	// NameFormat is a Go time layout used to render the object name. When
	// empty, a default layout carrying the environment and host identifier
	// is used and the ".json"/".log" extension is chosen by SaveLogsInJSON.
	NameFormat string
	// Environment tags the object name; defaults to "development".
	Environment string

	// UploadDelay is the debounce quiet period between a write and its
	// delayed flush, and the elapsed-time bound that forces an immediate one.
	UploadDelay time.Duration
	// BufferSize is the unwritten-byte threshold that forces an immediate flush.
	BufferSize int
	// RotateEvery bounds the lifetime of one object key.
	RotateEvery time.Duration
	// MaxFileSize bounds the buffered payload of one object key.
	MaxFileSize int

	// Compress gzips the serialized payload and appends ".gz" to the name.
	Compress bool
	// SaveLogsInJSON packages chunks into one JSON array instead of
	// concatenating them.
	SaveLogsInJSON bool

	// Passed through verbatim to the object store.
	StorageClass         string
	ServerSideEncryption string
	ACL                  string
}

var ErrBucketRequired = errors.New("sink config: bucket is required")

// ApplyDefaults fills every zero-valued threshold with its default.
func (c *SinkConfig) ApplyDefaults() {
	if c.UploadDelay <= 0 {
		c.UploadDelay = DefaultUploadDelay
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.RotateEvery <= 0 {
		c.RotateEvery = DefaultRotateEvery
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
}

func (c *SinkConfig) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}
	return nil
}
