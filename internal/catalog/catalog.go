// Package catalog lists what a session can be opened on: the device
// catalog of the account's data center and the apps in app storage.
package catalog

import (
	"context"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/devicecloud-mini/internal/clock"
	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
	"github.com/shehryarbajwa/devicecloud-mini/internal/requests"
	"github.com/shehryarbajwa/devicecloud-mini/pkg/models"
)

// DefaultPageSize is the page size used for app-storage listings.
const DefaultPageSize = 25

// Catalog fetches devices and apps for a signed-in account.
type Catalog struct {
	exec     network.Executor
	clock    clock.Clock
	pageSize int
	logger   zerolog.Logger
}

// New creates a catalog. A nil clock uses the real clock.
func New(exec network.Executor, clk clock.Clock, logger zerolog.Logger) *Catalog {
	if clk == nil {
		clk = clock.Real()
	}
	return &Catalog{exec: exec, clock: clk, pageSize: DefaultPageSize, logger: logger}
}

// Devices returns the devices of the account's data center, each marked
// in use when it is missing from the availability list. The catalog and
// the availability list are fetched concurrently.
func (c *Catalog) Devices(ctx context.Context, auth *models.Authentication) ([]models.AvailableDevice, error) {
	var (
		filtered  models.FilterableDevices
		available []string
	)

	dataCenter := ""
	if auth != nil {
		dataCenter = auth.DataCenter
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		filtered, err = network.Decode[models.FilterableDevices](gctx, c.exec, requests.Devices(dataCenter), auth)
		return err
	})
	g.Go(func() error {
		var err error
		available, err = network.Decode[[]string](gctx, c.exec, requests.AvailableDevices(c.clock.Now()), auth)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	free := make(map[string]bool, len(available))
	for _, id := range available {
		free[id] = true
	}

	devices := make([]models.AvailableDevice, 0, len(filtered.Entities))
	for _, d := range filtered.Entities {
		devices = append(devices, models.AvailableDevice{Device: d, InUse: !free[d.DescriptorID]})
	}
	sort.SliceStable(devices, func(i, j int) bool {
		if devices[i].InUse != devices[j].InUse {
			return !devices[i].InUse
		}
		return devices[i].Name < devices[j].Name
	})

	c.logger.Debug().Int("devices", len(devices)).Int("available", len(available)).Msg("device catalog fetched")
	return devices, nil
}

// Device looks a single descriptor up in the catalog.
func (c *Catalog) Device(ctx context.Context, auth *models.Authentication, descriptorID string) (*models.AvailableDevice, error) {
	devices, err := c.Devices(ctx, auth)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].DescriptorID == descriptorID {
			return &devices[i], nil
		}
	}
	return nil, ErrUnknownDevice
}

// AppGroups returns every app-storage group.
func (c *Catalog) AppGroups(ctx context.Context, auth *models.Authentication) ([]models.AppGroup, error) {
	return fetchAll[models.AppGroup](ctx, c, auth, func(page int) network.Request {
		return requests.AppGroups(page, c.pageSize)
	})
}

// AppFiles returns every file of an app-storage group.
func (c *Catalog) AppFiles(ctx context.Context, auth *models.Authentication, groupID int) ([]models.AppGroupFile, error) {
	return fetchAll[models.AppGroupFile](ctx, c, auth, func(page int) network.Request {
		return requests.AppFiles(groupID, page, c.pageSize)
	})
}

// fetchAll walks pages starting at 1 until page >= ceil(total/pageSize).
func fetchAll[T any](ctx context.Context, c *Catalog, auth *models.Authentication, build func(page int) network.Request) ([]T, error) {
	var items []T
	for page := 1; ; page++ {
		resp, err := network.Decode[models.Page[T]](ctx, c.exec, build(page), auth)
		if err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)

		maxPages := int(math.Ceil(float64(resp.TotalItems) / float64(c.pageSize)))
		if page >= maxPages {
			return items, nil
		}
	}
}
