package vault

import (
	"fmt"
	"sync"
)

// runBatched applies fn to every item, honoring a concurrency ceiling.
// concurrency == -1 runs every item in parallel with no cap; a positive
// concurrency chunks items into sequential batches of at most that size,
// each batch run fully in parallel. Results preserve input order
// regardless of completion order, matching list_items/delete_dir's
// ordering guarantee. The first error to arrive from the failing batch
// (by completion order, not item order) is returned; later batches are
// not started.
//
// This generalizes the teacher's parallelEncryptChunks/parallelDecryptChunks
// worker-channel shape (sync.WaitGroup + buffered error channel + panic
// recovery) from chunk jobs to arbitrary item/result types.
func runBatched[T any, R any](items []T, concurrency int, fn func(T) (R, error)) ([]R, error) {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	if concurrency == -1 {
		if err := runParallel(items, results, fn); err != nil {
			return nil, err
		}
		return results, nil
	}

	for start := 0; start < len(items); start += concurrency {
		end := start + concurrency
		if end > len(items) {
			end = len(items)
		}
		if err := runParallel(items[start:end], results[start:end], fn); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func runParallel[T any, R any](items []T, results []R, fn func(T) (R, error)) error {
	var wg sync.WaitGroup
	errCh := make(chan error, len(items))

	for i := range items {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					select {
					case errCh <- fmt.Errorf("panic in batched worker: %v", r):
					default:
					}
				}
			}()
			res, err := fn(items[idx])
			if err != nil {
				select {
				case errCh <- err:
				default:
				}
				return
			}
			results[idx] = res
		}(i)
	}

	wg.Wait()
	close(errCh)

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// settleAll runs every thunk to completion regardless of individual
// failures and discards their errors; it is used for best-effort parallel
// cleanup (e.g. removing partially-created vault/directory artifacts)
// where a cleanup failure must never mask the original error.
func settleAll(thunks ...func() error) {
	var wg sync.WaitGroup
	wg.Add(len(thunks))
	for _, t := range thunks {
		go func(thunk func() error) {
			defer wg.Done()
			defer func() { _ = recover() }()
			_ = thunk()
		}(t)
	}
	wg.Wait()
}
