// Package engine implements the formflow command surface: template
// commands, instance creation, form edits, attachments, action execution,
// acknowledgment and delegation.
//
// ARCHITECTURE:
//
// Read-Modify-Write per Command:
// Every command loads one snapshot from the Repository, works on a private
// clone and saves the result with an optimistic revision check. This ensures:
// - Atomic rejection: a failed check never reaches Save
// - No cross-instance state: commands on different instances are independent
// - Stale writers lose: a concurrent change surfaces as Conflict
//
// Command Processing Flow:
// 1. Per-instance mutex taken (in-process serialization)
// 2. Instance and template loaded, instance cloned
// 3. Checks run in a fixed order; the first failure returns an *Error
// 4. Mutation applied to the clone, audit entries appended
// 5. Save with the loaded revision; Closed instances handed to the Archiver
//
// The engine performs no I/O of its own beyond the Repository and the
// optional Archiver, and never retries.
//
// CRITICAL PATTERNS:
//
// Current Recipients:
// CurrentRecipients(step) is the union of a step's base groups and its
// delegated groups. Send, open and delegate checks all go through it.
//
// Field Access:
// access.Directory.Resolve decides visibility and editability for rendering
// (View), field edits (UpdateFormData) and submit-time validation
// (ValidateFormData). There is no second implementation.
//
// Append-Only History:
// Steps are only amended to stamp OpenedAt and to record delegations. Form
// history and activity entries are only ever appended.
//
// Error Taxonomy:
// PermissionDenied, InvalidTransition, ValidationFailed, PreconditionNotMet,
// NotFound, PublishBlocked and Conflict. Validation failures carry per-field
// messages; publish failures carry every issue in order.
package engine
