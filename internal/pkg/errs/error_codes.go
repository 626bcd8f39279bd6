/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific business or system errors both inside the
server and in responses sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect (e.g., syntax error).
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Chat Errors
const (
	// ErrUnknownDestination indicates that an inbound frame addressed an unsupported destination.
	ErrUnknownDestination = 2001
)

// 3xxx: User and Security Errors
const (
	// ErrUserExists indicates that a username is already registered in the directory.
	ErrUserExists = 3001

	// ErrUnauthorized indicates that the caller is missing valid admin credentials.
	ErrUnauthorized = 3002
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrStorageUnavailable indicates that the persistence layer failed to serve the request.
	ErrStorageUnavailable = 5001
)
