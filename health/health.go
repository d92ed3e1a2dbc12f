// Package health defines the readiness contract implemented by external
// collaborators (object storage, etc.) so the agent can probe them before
// serving traffic.
package health

import "context"

type ReadinessCheck interface {
	IsReady(ctx context.Context) error
	Name() string
}
