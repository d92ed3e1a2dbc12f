package sink

import "fmt"

// SerializationError wraps a failure to prepare the payload (in practice,
// a compression failure; JSON packaging itself cannot fail).
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialize payload: %v", e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// UploadError wraps an object-store put failure. Auth, network, permission
// and service-side errors all land here undistinguished.
type UploadError struct {
	Key string
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Key, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
