// Package reconcile runs one reconciliation pass for one source account.
//
// A pass moves through these phases:
//
//	Idle -> Polling -> Detecting -> Processing <-> RecordingMapping
//	     -> RefreshingViews -> Done
//
// Polling and Detecting failures end the pass in Failed with nothing
// processed. Once Processing starts, each assignment is handled on its own: a
// failing item is recorded in its Outcome and the loop moves on, so a pass
// with failed items still ends in Done.
//
// Duplicate prevention rests on the mapping store. An assignment becomes a
// task only when no mapping exists for (source account, external id), and the
// mapping is written right after the task is created. Placement into lists
// happens in between but never blocks the mapping write.
package reconcile
