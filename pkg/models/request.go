package models

import "strings"

// CreateSessionRequest is the body of POST /v1/sessions. Either URL or
// both AppGroupID and AppFileID select what is launched.
type CreateSessionRequest struct {
	DeviceDescriptorID string `json:"deviceDescriptorId"`
	URL                string `json:"url,omitempty"`
	AppGroupID         int    `json:"appGroupId,omitempty"`
	AppFileID          string `json:"appFileId,omitempty"`
}

// IsApp reports whether the request launches an app-storage file
func (r CreateSessionRequest) IsApp() bool {
	return r.AppGroupID != 0 && strings.TrimSpace(r.AppFileID) != ""
}

// OrientationRequest is the body of POST /v1/sessions/{id}/orientation
type OrientationRequest struct {
	Orientation Orientation `json:"orientation"`
}

// PasteRequest is the body of POST /v1/sessions/{id}/paste
type PasteRequest struct {
	Text string `json:"text"`
}

// KeyRequest is the body of POST /v1/sessions/{id}/key
type KeyRequest struct {
	Key string `json:"key"`
}

// ErrorResponse is the body of every failed API call
type ErrorResponse struct {
	Error string `json:"error"`
}
