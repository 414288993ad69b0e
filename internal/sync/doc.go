// Package sync is the offline-first synchronization core.
//
// Overview
//
// The UI layer writes the local store directly. A Manager later uploads the
// whole store and replaces local collections with the server's canonical
// copies:
//
//	Local store (slots)
//	     │  ReadSnapshot
//	     ▼
//	RawSnapshot ──normalize──▶ Batch ──validate──▶ POST /sync
//	                                                  │
//	     ┌────────────────────────────────────────────┘
//	     ▼
//	Response ──PutAll (present keys + lastSyncTime)──▶ Local store
//	     │
//	     ▼
//	sync-success, state-changed
//
// Cycles are triggered by the daemon's timer, by connectivity returning,
// by local edits (file backend) or by the user.
//
// Guarantees
//
//   - At most one cycle is in flight. A concurrent Sync returns
//     ErrSyncInProgress at once.
//   - A batch failing validation is never transmitted.
//   - The store is written only after a fully successful, well-formed
//     response, in one atomic PutAll. Keys absent from (or null in) the
//     response leave their slots untouched.
//   - Temporary negative ids are relabelled by the server; since the
//     response replaces the whole collection, no temporary copy survives.
//   - sync-complete is emitted after every cycle that started, success or
//     not.
//
// Known gap
//
// The store is not locked during a cycle. A UI write landing between the
// gather and the commit is overwritten by the server response if it
// touches a slot the response carries; the next cycle re-uploads whatever
// the UI writes afterwards.
//
// Conflict resolution
//
// Sync trusts the server response as a replacement. The union-by-id
// Resolver is available only through the explicit Manager.Merge action.
//
// Events
//
// Subscribers receive sync-start, sync-success, sync-error, sync-complete
// and state-changed. state-changed replaces a page reload: it names the
// slots that changed and whether a full refresh was requested.
package sync
