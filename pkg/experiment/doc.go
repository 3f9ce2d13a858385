// Package experiment holds the domain model for A/B experiments.
//
// An experiment is bound to an application and a label. The (application,
// label) pair is unique among non-deleted experiments; the id is minted once
// and never reused.
//
// # Experiment states
//
// Experiments move through these states:
//
//	DRAFT ------> RUNNING <---> PAUSED
//	  |              |             |
//	  |              +------+------+
//	  |                     v
//	  |                TERMINATED
//	  |                     |
//	  +------> DELETED <----+
//
// DRAFT is the editing state: application name and label may still change.
// RUNNING and PAUSED are the live states: only the time window, sampling,
// rule, description and the personalisation/rapid settings may change.
// TERMINATED freezes everything except the description. DELETED is terminal
// and hides the experiment from reads; the row is kept so the id stays
// burned.
//
// DRAFT -> RUNNING additionally requires the experiment's bucket list to
// pass ValidateBuckets.
//
// # What lives here
//
// The package is persistence-free: types, the transition graph, and pure
// validation. Patch carries a partial update and produces the merged
// experiment together with the attribute-level audit diff.
package experiment
