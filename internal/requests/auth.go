package requests

import (
	"net/http"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
)

// AuthToken signs in with username and password. It is the only call sent
// without a bearer token.
func AuthToken(username, password string) network.Request {
	return network.Request{
		Name:    "auth.token",
		Service: network.ServiceAccounts,
		Method:  http.MethodPost,
		Path:    "/am/json/realms/root/realms/authtree/authenticate",
		Headers: map[string]string{
			"X-OpenAM-Username": username,
			"X-OpenAM-Password": password,
			"X-Requested-With":  "XMLHttpRequest",
			"Cache-Control":     "no-store",
		},
		SkipAuth: true,
	}
}

// Logout ends the signed-in web session.
func Logout() network.Request {
	return network.Request{
		Name:   "auth.logout",
		Method: http.MethodPost,
		Path:   "/encore/api/logout",
	}
}
