package recorder

import "errors"

var (
	// ErrPolicyFetch is returned when the policy API cannot be reached.
	ErrPolicyFetch = errors.New("policy fetch failed")

	// ErrPolicyParse is returned when the policy API response is not a JSON
	// object or a field has the wrong shape.
	ErrPolicyParse = errors.New("policy response malformed")

	// ErrPolicyIncomplete is returned when a required policy key is missing.
	ErrPolicyIncomplete = errors.New("policy response incomplete")

	// ErrRename is returned when a finished segment cannot be moved to its
	// final name. The temporary file is left in place.
	ErrRename = errors.New("segment rename failed")

	// ErrUpload is returned when the upload request fails at the transport
	// level. The renamed file is left in place.
	ErrUpload = errors.New("segment upload failed")

	// ErrDelete marks a local file that could not be removed after a
	// successful upload. It is reported, never returned as a failure.
	ErrDelete = errors.New("segment cleanup failed")
)
