package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error

	// Project errors
	CodeProjectNotFound = "E_PROJECT_NOT_FOUND" // the specified project does not exist
	CodeUnknownFormat   = "E_UNKNOWN_FORMAT"    // no parser registered for the project's format

	// Sync errors
	CodeSyncRunning  = "E_SYNC_RUNNING"  // a pull for this project is already in progress
	CodeApplyFailed  = "E_APPLY_FAILED"  // the apply transaction failed and was rolled back
	CodeStaleVersion = "E_STALE_VERSION" // an entry changed underneath the operation

	// Remote errors
	CodeRemoteAuth        = "E_REMOTE_AUTH"        // the remote rejected our credentials
	CodeRemoteNotFound    = "E_REMOTE_NOT_FOUND"   // repository, branch or path does not exist
	CodeRemoteUnavailable = "E_REMOTE_UNAVAILABLE" // the remote is rate limiting or failing
)
