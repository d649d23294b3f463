package analysis

import (
	"BillboardAnalyzer/pkg/response"
	"net/http"
)

var (
	ErrBadRequest         = response.NewError(http.StatusBadRequest, "bad request")
	ErrImageRequired      = response.NewError(http.StatusBadRequest, "image file is required")
	ErrInvalidFileType    = response.NewError(http.StatusBadRequest, "Invalid file type. Only 'image/jpeg' is accepted.")
	ErrFileTooLarge       = response.NewError(http.StatusBadRequest, "Image file size exceeds the 5MB limit.")
	ErrInvalidCoordinates = response.NewError(http.StatusBadRequest, "Invalid latitude or longitude format. Must be valid numbers.")
	ErrSubmissionNotFound = response.NewError(http.StatusNotFound, "submission not found")
	ErrStorageUnavailable = response.NewError(http.StatusServiceUnavailable, "submission storage is not configured")
	ErrInvalidLimit       = response.NewError(http.StatusBadRequest, "limit must be a positive integer")
)
