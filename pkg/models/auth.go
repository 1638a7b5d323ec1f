package models

import "strings"

// AuthenticationToken is returned by the accounts service on sign-in
type AuthenticationToken struct {
	TokenID    string `json:"tokenId"`
	SuccessURL string `json:"successUrl"`
	Realm      string `json:"realm"`
}

// Authentication is the signed-in user
type Authentication struct {
	Token    AuthenticationToken `json:"token"`
	Username string              `json:"username"`
	Password string              `json:"-"`
	// Region is the API endpoint region, e.g. "us-west-1"
	Region string `json:"region"`
	// DataCenter is the device data-center id, e.g. "US"
	DataCenter string `json:"dataCenter"`
}

// Valid reports whether the credentials and token are all present
func (a Authentication) Valid() bool {
	return strings.TrimSpace(a.Username) != "" &&
		strings.TrimSpace(a.Password) != "" &&
		strings.TrimSpace(a.Token.TokenID) != ""
}
