/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to standardize
HTTP responses, socket error events and internal error handling.
*/
package errs

import "net/http"

// errorMap stores the detailed CustomError struct corresponding to every application error code.
// The key is the error code (int), and the value contains the user message and HTTP status code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrInvalidUsername:      {Code: ErrInvalidUsername, Message: "Username must be 3-20 letters, digits or underscores.", Status: http.StatusBadRequest},
	ErrInvalidPassword:      {Code: ErrInvalidPassword, Message: "Password must be 6-50 characters.", Status: http.StatusBadRequest},
	ErrInvalidOrder:         {Code: ErrInvalidOrder, Message: "Invalid order: %s", Status: http.StatusBadRequest},

	// 2xxx: Chat Protocol Errors
	ErrNotAuthenticated:   {Code: ErrNotAuthenticated, Message: "Please authenticate before chatting."},
	ErrPersistenceFailure: {Code: ErrPersistenceFailure, Message: "Message could not be saved. Please try again."},
	ErrNotMessageAuthor:   {Code: ErrNotMessageAuthor, Message: "You can only delete your own messages."},
	ErrRenameNotAllowed:   {Code: ErrRenameNotAllowed, Message: "Display name is bound to your account."},
	ErrUnsupportedEvent:   {Code: ErrUnsupportedEvent, Message: "Unsupported event."},

	// 3xxx: Identity and Security Errors
	ErrDuplicateUsername:          {Code: ErrDuplicateUsername, Message: "Username is already taken.", Status: http.StatusBadRequest},
	ErrInvalidCredentials:         {Code: ErrInvalidCredentials, Message: "Incorrect username or password.", Status: http.StatusUnauthorized},
	ErrInvalidOrExpiredCredential: {Code: ErrInvalidOrExpiredCredential, Message: "Session expired. Please sign in again.", Status: http.StatusUnauthorized},
	ErrUnauthorized:               {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrPowChallengeRequired:       {Code: ErrPowChallengeRequired, Message: "Verification required. Please try again.", Status: http.StatusForbidden},
	ErrPowChallengeInvalid:        {Code: ErrPowChallengeInvalid, Message: "Verification failed. Please try again.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown:         {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrFeatureDisabled: {Code: ErrFeatureDisabled, Message: "This feature is not available.", Status: http.StatusNotFound},
	ErrExportFailed:    {Code: ErrExportFailed, Message: "History export failed. Please try again.", Status: http.StatusBadGateway},
}
