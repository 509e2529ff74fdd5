/*
Package errs provides custom error types and application-level error code constants.

These error codes are used to clearly identify specific business or system errors
both internally within the server and in communication with clients, over HTTP
and over the realtime socket.
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

	// ErrInvalidUsername indicates that the username does not satisfy the naming rules.
	ErrInvalidUsername = 1101

	// ErrInvalidPassword indicates that the password length is outside the accepted range.
	ErrInvalidPassword = 1102

	// ErrInvalidOrder indicates that an order request failed validation.
	ErrInvalidOrder = 1201
)

// 2xxx: Chat Protocol Errors
const (
	// ErrNotAuthenticated indicates that a chat event arrived before the session authenticated.
	ErrNotAuthenticated = 2001

	// ErrPersistenceFailure indicates that the message store rejected or timed out a write.
	ErrPersistenceFailure = 2002

	// ErrNotMessageAuthor indicates a delete request for a message written by someone else.
	ErrNotMessageAuthor = 2003

	// ErrRenameNotAllowed indicates a display name change under a verified identity policy.
	ErrRenameNotAllowed = 2004

	// ErrUnsupportedEvent indicates that the client sent an unknown or malformed event.
	ErrUnsupportedEvent = 2006
)

// 3xxx: Identity and Security Errors
const (
	// ErrDuplicateUsername indicates that the username is already registered.
	ErrDuplicateUsername = 3001

	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = 3002

	// ErrInvalidOrExpiredCredential indicates a credential with a bad signature or past its expiry.
	ErrInvalidOrExpiredCredential = 3003

	// ErrUnauthorized indicates that the endpoint requires a valid credential.
	ErrUnauthorized = 3004

	// ErrPowChallengeRequired indicates the client must complete a Proof-of-Work challenge first.
	ErrPowChallengeRequired = 3101

	// ErrPowChallengeInvalid indicates that the PoW proof provided by the client is invalid or incorrect.
	ErrPowChallengeInvalid = 3102
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrFeatureDisabled indicates that the requested feature is not configured on this server.
	ErrFeatureDisabled = 5001

	// ErrExportFailed indicates that the history transcript could not be written to storage.
	ErrExportFailed = 5002
)
