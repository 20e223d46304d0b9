package plugin

import (
	"context"

	"firestige.xyz/gsdump/internal/core"
)

// Reporter consumes decoded records in input order.
type Reporter interface {
	Plugin
	Report(ctx context.Context, rec *core.DecodedRecord) error
	Flush(ctx context.Context) error
}
