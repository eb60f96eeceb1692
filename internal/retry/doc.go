// Package retry provides the backoff schedule and the cancellable wait used by
// the provisioning pollers.
//
// Schedule maps a 1-based attempt count to a delay: a fixed sequence followed by
// a cap. It is pure and never fails.
//
// Sleeper is the suspension point pollers depend on. Timer is the real
// implementation; tests inject a recording sleeper so no wall-clock time passes.
//
//	var t retry.Timer
//	if err := t.Wait(ctx, schedule.Delay(attempt)); err != nil {
//	    return err // retry.ErrCancelled
//	}
package retry
