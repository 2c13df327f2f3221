// Package cache keeps page renders in step with the origin database.
//
// Every origin read goes through Manager.FetchManaged, which
//
//   - asks the Oracle whether the origin changed since the ledger's last
//     successful fetch of the URL (HEAD <endpoint>/last-updated),
//   - invalidates the ledger key first when it did,
//   - always performs the GET with no-cache directives,
//   - records the fetch time in the ledger on a 2xx response.
//
// The oracle fails open: any probe failure counts as "stale". The ledger is
// never consulted to skip a network fetch; it only tracks freshness so that
// operators and webhooks can see and reset it.
//
// # Basic Usage
//
//	l := ledger.NewMemory()
//
//	manager, err := cache.NewManager(l, cache.Config{
//		Origin: "https://api.example.com",
//	})
//	if err != nil {
//		return err
//	}
//
//	resp, err := manager.FetchManaged(ctx, manager.Key(cache.BookListEndpoint), nil)
//	if err != nil {
//		var failure *cache.FetchFailure
//		if errors.As(err, &failure) {
//			// origin unreachable
//		}
//		return err
//	}
//	defer resp.Body.Close()
//
// # Concurrency
//
// The check → invalidate → fetch → record sequence is not atomic. Concurrent
// calls for the same URL each probe and fetch independently; there is no
// request coalescing.
//
// # Metrics
//
//   - bookshelf_fetch_total{outcome} - Managed fetches by outcome
//   - bookshelf_fetch_duration_seconds - Managed fetch duration
//   - bookshelf_oracle_checks_total{result} - Staleness checks by result
package cache
