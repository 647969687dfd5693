package errors

import "errors"

// Sync pass errors.
var (
	// ErrAdapterUnavailable wraps network or auth failures reaching the
	// remote. The pass aborts; actions already applied stand.
	ErrAdapterUnavailable = errors.New("remote adapter unavailable")

	// ErrMatchingConflict indicates the matcher paired one node twice.
	// This is a defect in the matching rules, not a retryable condition.
	ErrMatchingConflict = errors.New("matching conflict")

	// ErrUnsupportedOperation means the adapter lacks a capability the
	// tree change requires. The affected node is skipped for the pass.
	ErrUnsupportedOperation = errors.New("operation not supported by adapter")

	// ErrSyncInProgress means a pass for the account is already running.
	ErrSyncInProgress = errors.New("sync already in progress for account")
)

// Mapping store errors.
var (
	ErrMappingStoreCorrupt = errors.New("mapping store commit failed")
)
