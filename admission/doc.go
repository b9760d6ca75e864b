// Package admission bounds how many executions run at once.
//
// A Limiter hands out a fixed number of slots. Callers that cannot get a slot
// within the queue timeout receive ErrCapacityExhausted, which the request
// handlers translate into a "try again later" reply instead of queueing work
// without bound.
//
// Usage:
//
//	limiter := admission.New(logger, 4, 2*time.Second)
//	release, err := limiter.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer release()
package admission
