package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Oracle reports the settled outcome of an event. LatestAnswer must be
// queryable at or after event time; an answer whose UpdatedAt precedes the
// market's event time is treated as stale by the resolution step.
type Oracle interface {
	// LatestAnswer returns the reported outcome index and the time the
	// answer was last updated.
	LatestAnswer(ctx context.Context) (answer int64, updatedAt time.Time, err error)
	// Ref returns the stable address identifying this oracle.
	Ref() common.Address
}
