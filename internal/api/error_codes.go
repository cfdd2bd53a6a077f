// internal/api/error_codes.go
package api

// API error code constants
const (
	// Generic errors
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorConflict      = "CONFLICT"

	// Dialog errors
	ErrorDialogNotFound     = "DIALOG_NOT_FOUND"
	ErrorDialogCreateFailed = "DIALOG_CREATE_FAILED"

	// Node and edge errors
	ErrorNodeNotFound    = "NODE_NOT_FOUND"
	ErrorNodeInvalid     = "NODE_INVALID"
	ErrorLinkInvalid     = "LINK_INVALID"
	ErrorHistoryBoundary = "HISTORY_BOUNDARY"

	// Character errors
	ErrorCharacterNotFound = "CHARACTER_NOT_FOUND"
	ErrorCharacterInvalid  = "CHARACTER_INVALID"

	// Scene errors
	ErrorSceneNotFound = "SCENE_NOT_FOUND"
	ErrorSceneInvalid  = "SCENE_INVALID"

	// Export errors
	ErrorExportFailed        = "EXPORT_FAILED"
	ErrorExportFormatInvalid = "EXPORT_FORMAT_INVALID"
)
