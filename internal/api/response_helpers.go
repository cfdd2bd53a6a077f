// internal/api/response_helpers.go
package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/Corphon/DialogWeaverMCP/internal/errors"
	"github.com/Corphon/DialogWeaverMCP/internal/models"
	"github.com/gin-gonic/gin"
)

// ResponseHelper builds the standard API envelope
type ResponseHelper struct{}

// NewResponseHelper creates a response helper
func NewResponseHelper() *ResponseHelper {
	return &ResponseHelper{}
}

// Success sends a 200 response
func (rh *ResponseHelper) Success(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	}

	c.JSON(http.StatusOK, response)
}

// Created sends a 201 response
func (rh *ResponseHelper) Created(c *gin.Context, data interface{}, message ...string) {
	response := &APIResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	if len(message) > 0 {
		response.Message = message[0]
	} else {
		response.Message = "resource created"
	}

	c.JSON(http.StatusCreated, response)
}

// Error sends an error response with a stable code
func (rh *ResponseHelper) Error(c *gin.Context, statusCode int, errorCode, message string, details ...string) {
	apiError := &APIError{
		Code:    errorCode,
		Message: message,
	}
	if len(details) > 0 {
		apiError.Details = details[0]
	}

	response := &APIResponse{
		Success:   false,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: rh.getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// BadRequest sends a 400 response
func (rh *ResponseHelper) BadRequest(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusBadRequest, ErrorBadRequest, message, details...)
}

// NotFound sends a 404 response
func (rh *ResponseHelper) NotFound(c *gin.Context, resource string, details ...string) {
	rh.Error(c, http.StatusNotFound, rh.getResourceNotFoundCode(resource), resource+" not found", details...)
}

// InternalError sends a 500 response
func (rh *ResponseHelper) InternalError(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusInternalServerError, ErrorInternalError, message, details...)
}

// Conflict sends a 409 response
func (rh *ResponseHelper) Conflict(c *gin.Context, message string, details ...string) {
	rh.Error(c, http.StatusConflict, ErrorConflict, message, details...)
}

// ServiceError maps a service-layer error onto the right status code
func (rh *ResponseHelper) ServiceError(c *gin.Context, err error) {
	switch {
	case errors.IsNotFoundError(err):
		rh.Error(c, http.StatusNotFound, ErrorNotFound, err.Error())
	case errors.IsValidationError(err):
		rh.BadRequest(c, err.Error())
	case errors.IsConflictError(err):
		rh.Conflict(c, err.Error())
	default:
		rh.InternalError(c, err.Error())
	}
}

// FileResponse streams script content as a download
func (rh *ResponseHelper) FileResponse(c *gin.Context, content string, filename string, contentType string) {
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.String(http.StatusOK, content)
}

// ExportResponse sends an export result either as the JSON envelope or
// as a file download, depending on the requested format
func (rh *ResponseHelper) ExportResponse(c *gin.Context, result *models.ExportResult, download bool) {
	if !download {
		rh.Success(c, result, "export completed")
		return
	}
	rh.FileResponse(c, result.Content, filepath.Base(result.FilePath), "text/plain; charset=utf-8")
}

// getRequestID reads the request ID set by middleware, if any
func (rh *ResponseHelper) getRequestID(c *gin.Context) string {
	if requestID := c.GetString("request_id"); requestID != "" {
		return requestID
	}
	return ""
}

// getResourceNotFoundCode picks the error code for a missing resource
func (rh *ResponseHelper) getResourceNotFoundCode(resource string) string {
	switch resource {
	case "dialog":
		return ErrorDialogNotFound
	case "node":
		return ErrorNodeNotFound
	case "character":
		return ErrorCharacterNotFound
	case "scene":
		return ErrorSceneNotFound
	default:
		return ErrorNotFound
	}
}
