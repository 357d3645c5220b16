// ABOUTME: Sentinel errors for the transfer engine's failure taxonomy
// ABOUTME: Callers distinguish failure classes with errors.Is

package composer

import "errors"

// ErrInvalidFormat is returned when a snapshot file fails structural
// validation. No store is touched after this error.
var ErrInvalidFormat = errors.New("invalid snapshot format")

// ErrPreconditionFailed is returned when a target store fails its
// integrity check before any mutation. The operation aborts untouched.
var ErrPreconditionFailed = errors.New("pre-merge integrity check failed")

// ErrPostconditionFailed is returned when a target store fails its
// integrity check after mutation. Backups are retained for manual
// recovery; nothing is rolled back automatically because the underlying
// engine's commits are already durable.
var ErrPostconditionFailed = errors.New("post-merge integrity check failed")

// ErrSizeLimitExceeded is returned when a source store is too large to
// process in memory safely
var ErrSizeLimitExceeded = errors.New("store exceeds size limit")
