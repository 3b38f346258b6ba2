// Package strategy holds the stateless executors that resolve a classified
// request to a response: NetworkFirst, CacheFirst and StaleWhileRevalidate.
//
// Executors never return Go errors to their caller. A network failure that
// cannot be recovered from the cache comes back as cache.NetworkError() with
// SourceError, and background revalidation failures are swallowed. Work that
// must outlive the executor call (cache writes, revalidation fetches) is
// registered through Env.Pending so the owning event is only settled once it
// finished.
package strategy
