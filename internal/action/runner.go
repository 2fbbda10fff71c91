package action

import (
	"context"

	"go.uber.org/zap"
)

// runner executes a side effect of an action for one pull request.
// Runners are executed via the Retryer and must be idempotent.
type runner interface {
	Run(ctx context.Context) error
	String() string
	LogFields() []zap.Field
}
