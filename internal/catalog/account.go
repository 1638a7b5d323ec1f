package catalog

import (
	"context"
	"strings"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/region"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// SignIn exchanges credentials for a token and resolves the data center
// of the requested region.
func SignIn(ctx context.Context, exec network.Executor, regions *region.Manager, username, password, requestedRegion string) (*models.Authentication, error) {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return nil, ErrInvalidCredentials
	}

	token, err := network.Decode[models.AuthenticationToken](ctx, exec, requests.AuthToken(username, password), nil)
	if err != nil {
		return nil, err
	}
	if token.TokenID == "" {
		return nil, network.ErrInvalidServerResponse
	}

	r := regions.Route(requestedRegion)
	return &models.Authentication{
		Token:      token,
		Username:   username,
		Password:   password,
		Region:     string(r),
		DataCenter: regions.DataCenter(string(r)),
	}, nil
}

// SignOut ends the web session behind auth.
func SignOut(ctx context.Context, exec network.Executor, auth *models.Authentication) error {
	return network.Send(ctx, exec, requests.Logout(), auth)
}
