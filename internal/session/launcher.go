package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/internal/waiter"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// LaunchEnv is what a Launcher may use to start the app.
type LaunchEnv struct {
	Exec      network.Executor
	Auth      *models.Authentication
	Installer *waiter.Installation
	Logger    zerolog.Logger
}

// Launcher picks how the device is opened and what runs once it is online.
type Launcher interface {
	// OpenRequest is the REST call that leases the device.
	OpenRequest(deviceDescriptorID string) network.Request
	// Start launches the app on an online device.
	Start(ctx context.Context, env LaunchEnv, s models.DeviceSession) error
}

// URLLauncher opens a URL in the device browser.
type URLLauncher struct {
	URL string
}

func (l URLLauncher) OpenRequest(deviceDescriptorID string) network.Request {
	return requests.Open(deviceDescriptorID)
}

func (l URLLauncher) Start(ctx context.Context, env LaunchEnv, s models.DeviceSession) error {
	resp, err := network.Decode[models.OpenURLResponse](ctx, env.Exec, requests.OpenURL(s, l.URL), env.Auth)
	if err != nil {
		return err
	}
	if resp.Status == models.StatusError {
		reason := "unknown error"
		if resp.ErrorMessage != nil {
			reason = *resp.ErrorMessage
		} else if resp.Error != nil {
			reason = *resp.Error
		}
		return &network.Error{Kind: network.KindInvalidServerResponse, Err: fmt.Errorf("open url: %s", reason)}
	}
	env.Logger.Info().Str("url", l.URL).Msg("url opened on device")
	return nil
}

// AppLauncher installs and launches an app-storage file.
type AppLauncher struct {
	GroupID int
	FileID  string
}

func (l AppLauncher) OpenRequest(deviceDescriptorID string) network.Request {
	return requests.OpenWithNativeApp(l.GroupID, l.FileID, deviceDescriptorID)
}

func (l AppLauncher) Start(ctx context.Context, env LaunchEnv, s models.DeviceSession) error {
	progress, err := network.Decode[models.InstallationProgress](ctx, env.Exec, requests.Install(s, l.GroupID, l.FileID), env.Auth)
	if err != nil {
		return err
	}
	env.Logger.Info().Str("installation_id", progress.ID).Str("file_id", l.FileID).Msg("app installation started")

	if err := env.Installer.Wait(ctx, env.Auth, s, progress.ID); err != nil {
		return err
	}
	env.Logger.Info().Str("installation_id", progress.ID).Msg("app installed")
	return nil
}
