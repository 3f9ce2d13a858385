// Package experiments is the lifecycle core: it creates, mutates and
// transitions experiments while keeping the primary store, the relational
// mirror, the priority list, the rule cache and the page bindings in step.
//
// There is no transaction spanning those systems. Every mutation writes
// them in a fixed order and, when a step fails, undoes the already
// committed steps in reverse, so the observable state after a failure
// equals the state before the call.
//
// # Create
//
//  1. Validate the request. Nothing is touched on failure.
//  2. Create the row in the primary store (mints the id).
//  3. Append to the application's priority list.
//     On failure: tombstone the primary row.
//  4. Create the mirror row.
//     On failure: remove from the priority list, tombstone the primary row.
//  5. Build the primary lookup indices.
//     On failure: remove from the priority list, tombstone the primary
//     row, delete the mirror row.
//  6. Post ExperimentCreateEvent (best-effort, never aborts).
//
// Primary first because it mints the id; the priority list before the
// mirror so anything discovering the experiment already sees it ordered;
// indices last because they are the only observably partial step and need
// both rows in place.
//
// # Update
//
// Validation (state transition, per-state field locks, time checks, field
// values, rule compile) runs entirely before the first store write. Then:
// primary update, mirror update (on failure the primary is reverted to the
// pre-call row), priority-list move on an application change, rule-cache
// install/clear on a rule change, audit rows plus one ExperimentChangeEvent
// per changed attribute for non-DRAFT experiments, and priority/page
// cleanup when the experiment enters TERMINATED or DELETED.
//
// # Concurrency
//
// Operations on the same experiment id are serialized by a striped lock;
// creates lock the (application, label) pair instead, which is what makes
// the uniqueness check race-free. Once a compensation sequence starts it
// runs on a context detached from cancellation.
package experiments
