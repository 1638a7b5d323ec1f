package models

// AppGroupFileMetadata describes the binary inside an uploaded app file
type AppGroupFileMetadata struct {
	Identifier   string  `json:"identifier"`
	Name         string  `json:"name"`
	Version      *string `json:"version,omitempty"`
	Icon         *string `json:"icon,omitempty"`
	IsTestRunner bool    `json:"is_test_runner"`
	VersionCode  *int    `json:"version_code,omitempty"`
	ShortVersion *string `json:"short_version,omitempty"`
	MinOS        *string `json:"min_os,omitempty"`
}

// AppGroupFile is one uploaded app file in app storage
type AppGroupFile struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	UploadTimestamp int64                `json:"upload_timestamp"`
	ETag            string               `json:"etag"`
	Kind            string               `json:"kind"`
	GroupID         int                  `json:"group_id"`
	Size            int64                `json:"size"`
	Description     *string              `json:"description,omitempty"`
	Metadata        AppGroupFileMetadata `json:"metadata"`
}

// IsAndroid reports whether the file is an Android package
func (f AppGroupFile) IsAndroid() bool { return f.Kind == "android" }

// IsIOS reports whether the file is an iOS package
func (f AppGroupFile) IsIOS() bool { return f.Kind == "ios" }

// AppGroup groups every uploaded version of one app
type AppGroup struct {
	ID     int          `json:"id"`
	Name   string       `json:"name"`
	Count  int          `json:"count"`
	Recent AppGroupFile `json:"recent"`
}

// Page is the paging envelope of the app-storage API
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalItems int `json:"total_items"`
}
