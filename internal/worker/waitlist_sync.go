package worker

import (
	"context"
	"log"
	"time"
)

// PositionSyncer is the slice of the waitlist service the sync loop needs.
type PositionSyncer interface {
	SyncPositions(ctx context.Context) (int, error)
}

// RunWaitlistSync mirrors Redis queue positions into the orders table on every
// tick until ctx is cancelled.  The mirror keeps positions visible through a
// Redis restart, so a failed pass is logged and retried rather than fatal.
func RunWaitlistSync(ctx context.Context, waitlist PositionSyncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := waitlist.SyncPositions(ctx)
			if err != nil {
				log.Printf("waitlist-sync: pass failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("waitlist-sync: mirrored %d queue positions", n)
			}
		}
	}
}
