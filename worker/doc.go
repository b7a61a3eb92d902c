// Package worker provides a worker pool for batch credential work.
//
// The pool lets issuers sign many bundles in parallel, taking advantage
// of multi-core processors, while batch results keep the submission
// order.
//
// Example usage:
//
//	pool := worker.NewPool(issueFunc, 4)
//	defer pool.Close()
//
//	for i, bundle := range bundles {
//	    pool.Submit(worker.Job{Index: i, Bundle: bundle})
//	}
//
//	for result := range pool.Results() {
//	    if result.Err != nil {
//	        // Handle error
//	    }
//	    // Process result.Value
//	}
package worker
