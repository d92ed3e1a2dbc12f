package store

import (
	"context"

	"github.com/logship/s3sink/health"
)

// PutRequest describes one object upload. String fields left empty are
// omitted from the request entirely (the target protocol distinguishes
// absent from empty).
type PutRequest struct {
	Bucket string
	Key    string
	Body   []byte

	Tagging              string
	StorageClass         string
	ServerSideEncryption string
	ACL                  string
	ContentType          string
}

// ObjectStorage is the object-store collaborator. Put is treated as atomic
// and all-or-nothing by the sink; transport-level retry behavior belongs to
// the implementation, not the caller.
type ObjectStorage interface {
	Put(ctx context.Context, req PutRequest) error

	health.ReadinessCheck
}
