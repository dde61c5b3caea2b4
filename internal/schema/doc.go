// Package schema defines the entities shared by the reconciliation engine.
//
// # Overview
//
// Two families of types live here. Source-side types describe what an
// external provider reports (SourceAccount, RawAssignment) and how it was
// mapped locally (SyncMapping). Store-side types describe the user's own
// task/list system (Task, TaskUpdate, TodoList, ListItem).
//
// # Mapping Key
//
// A SyncMapping is identified by the pair (SourceAccountID, ExternalID):
//
//	{
//	  "source_account_id": "c2d1...",
//	  "external_id": "assignment-1042",
//	  "internal_task_id": "9b7e...",
//	  "external_modified_at": "2026-03-01T09:00:00Z"
//	}
//
// External ids are only unique within one source account, so the pair is the
// natural key and there is never more than one mapping for it.
//
// # Absent Values
//
// Optional source fields and "no change" update fields are pointers. A nil
// pointer means absent; stores must not overwrite an existing value with it.
//
// # Default Recurring Lists
//
// Lists tagged CategoryDefaultRecurring are default recurring lists. Untagged
// lists whose name is one of the configured default names (Daily, Weekly,
// Monthly) are treated the same way; that match is a naming convention, not a
// structural guarantee.
package schema
