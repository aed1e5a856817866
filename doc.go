// Package requery implements an in-process, subscription-based query cache
// with stale-while-revalidate semantics. A query is an external resolver
// function plus its arguments; results are cached per key, shared across
// subscribers, refetched according to policy (staleness, intervals, focus
// and reconnect signals), and garbage collected once unused.
//
// Components:
//   - Client: process-wide store mapping query keys to cached entries.
//   - Query[A, V]: typed query definition binding a resolver to a name;
//     produces Observers and imperative Fetch/SetData access.
//   - Observer[V]: per-call-site subscription. Receives a callback on state
//     changes and exposes Snapshot, Wait, and Refetch.
//   - store.Store (optional): byte store with TTL used to persist successful
//     results across process restarts (e.g. BigCache, Ristretto, Redis).
//
// Keys:
//
//	<query name>:<hash16(encoded args)>
//
// Fetch coalescing: at most one fetch per key is in flight at a time.
// Concurrent demands for the same key join the in-flight fetch and share its
// result. Unsubscribing does not cancel an in-flight fetch; the result is
// still cached for other subscribers or future use.
package requery
