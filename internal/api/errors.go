package api

const (
	ErrInvalidJSON = "invalid json"
	ErrInvalidID   = "invalid id"
	ErrNotFound    = "not found"
	ErrDependency  = "dependency error"
	ErrSyncBusy    = "sync pass already running"
)
