package sink

import (
	"net/url"

	"github.com/logship/s3sink/models"
	"github.com/logship/s3sink/store"
)

// plainTextContentType lets a browser preview uncompressed objects in place.
const plainTextContentType = "text/plain"

// buildPutRequest assembles the per-upload object metadata around the
// serialized payload.
func buildPutRequest(cfg models.SinkConfig, key string, body []byte) store.PutRequest {
	req := store.PutRequest{
		Bucket: cfg.Bucket,
		Key:    key,
		Body:   body,

		Tagging:              tagString(cfg.Tags),
		StorageClass:         cfg.StorageClass,
		ServerSideEncryption: cfg.ServerSideEncryption,
		ACL:                  cfg.ACL,
	}
	if !cfg.Compress {
		req.ContentType = plainTextContentType
	}
	return req
}

// tagString renders key=value pairs joined by "&", keys sorted, values
// escaped. Empty tag sets produce the empty string, which the store layer
// treats as absent.
func tagString(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range tags {
		values.Set(k, v)
	}
	return values.Encode()
}
