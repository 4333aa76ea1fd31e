// Package worker hosts the background loops: the payment-timeout sweeper and
// the waitlist position sync.  Both are plain tickers started from main; they
// stop when the server's root context is cancelled.
package worker

import (
	"context"
	"log"
	"time"
)

// TimeoutCanceller is the slice of the booking service the sweeper needs.
type TimeoutCanceller interface {
	CancelTimedOut(ctx context.Context) (int, error)
}

// RunPaymentSweeper cancels expired PENDING orders on every tick until ctx is
// cancelled.  Errors are logged and the loop keeps going; a failed pass just
// leaves the work for the next one.
func RunPaymentSweeper(ctx context.Context, booking TimeoutCanceller, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := booking.CancelTimedOut(ctx)
			if err != nil {
				log.Printf("payment-sweeper: pass failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("payment-sweeper: cancelled %d expired orders", n)
			}
		}
	}
}
