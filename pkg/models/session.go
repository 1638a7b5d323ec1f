package models

// WebRTCCredentials are the video-transport credentials issued with a session
type WebRTCCredentials struct {
	AccessToken string `json:"accessToken"`
	RoomName    string `json:"roomName"`
}

// DeviceSession identifies one remote-device lease
type DeviceSession struct {
	DeviceSessionID   string            `json:"deviceSessionId"`
	TestReportID      string            `json:"testReportId"`
	WebRTCCredentials WebRTCCredentials `json:"webRtcCredentials"`
}

// DeviceSessionDescriptor is the static metadata of an opened device instance
type DeviceSessionDescriptor struct {
	DataCenterID             string  `json:"dataCenterId"`
	DeviceSessionID          string  `json:"deviceSessionId"`
	DeviceDescriptorID       string  `json:"deviceDescriptorId"`
	Host                     string  `json:"host"`
	OS                       string  `json:"os"`
	ResolutionWidth          int     `json:"resolutionWidth"`
	ResolutionHeight         int     `json:"resolutionHeight"`
	Orientation              string  `json:"orientation"`
	HasOnScreenButtons       bool    `json:"hasOnScreenButtons"`
	HardwareButtonsAvailable bool    `json:"hardwareButtonsAvailable"`
	ViewOnly                 bool    `json:"viewOnly"`
	AlternativeIOEnabled     bool    `json:"alternativeIoEnabled"`
	MultiTouchSupported      bool    `json:"multiTouchSupported"`
	PhoneNumber              *string `json:"phoneNumber,omitempty"`
}

// StatusResponse is the status flag carried by several session responses
type StatusResponse string

const (
	StatusSuccess StatusResponse = "SUCCESS"
	StatusError   StatusResponse = "ERROR"
)

// SessionDescriptor wraps the device descriptor returned for a session
type SessionDescriptor struct {
	Status                  StatusResponse          `json:"status"`
	Error                   *string                 `json:"error,omitempty"`
	DeviceSessionDescriptor DeviceSessionDescriptor `json:"deviceSessionDescriptor"`
}

// OpenURLResponse is returned when a URL is opened on the device
type OpenURLResponse struct {
	Status       StatusResponse `json:"status"`
	Error        *string        `json:"error,omitempty"`
	ErrorMessage *string        `json:"errorMessage,omitempty"`
}

// InstallationStatus is the state of an app installation on a device
type InstallationStatus string

const (
	InstallationPending  InstallationStatus = "PENDING"
	InstallationFinished InstallationStatus = "FINISHED"
	InstallationError    InstallationStatus = "ERROR"
)

// InstallationProgress is returned by the install and install-status calls
type InstallationProgress struct {
	ID     string             `json:"id"`
	Status InstallationStatus `json:"status"`
}

// Orientation is the device orientation accepted by the orientation call
type Orientation string

const (
	OrientationPortrait  Orientation = "PORTRAIT"
	OrientationLandscape Orientation = "LANDSCAPE"
)

// Valid reports whether o is a known orientation
func (o Orientation) Valid() bool {
	return o == OrientationPortrait || o == OrientationLandscape
}
