package requests

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shehryarbajwa/devicecloud-mini/internal/network"
)

// Devices lists the device catalog of a data center.
func Devices(dataCenterID string) network.Request {
	return network.Request{
		Name:   "devices.filtered",
		Method: http.MethodGet,
		Path:   "/v1/rdc/devices/filtered",
		Query:  url.Values{"dataCenterId": {dataCenterID}},
	}
}

// AvailableDevices lists the descriptor ids of devices not in use.
func AvailableDevices(now time.Time) network.Request {
	return network.Request{
		Name:   "devices.available",
		Method: http.MethodGet,
		Path:   "/v1/rdc/devices/availableDescriptors",
		Query:  url.Values{"ts": {strconv.FormatInt(now.UnixMilli(), 10)}},
	}
}

// AppGroups lists one page of app-storage groups.
func AppGroups(page, perPage int) network.Request {
	return network.Request{
		Name:    "apps.groups",
		Method:  http.MethodGet,
		Path:    "/v1/storage/groups",
		Headers: jsonHeaders(),
		Query: url.Values{
			"kind":     {"ios", "android"},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		},
	}
}

// AppFiles lists one page of files in an app-storage group.
func AppFiles(groupID, page, perPage int) network.Request {
	return network.Request{
		Name:    "apps.files",
		Method:  http.MethodGet,
		Path:    "/v1/storage/files",
		Headers: jsonHeaders(),
		Query: url.Values{
			"kind":     {"ios", "android"},
			"group_id": {strconv.Itoa(groupID)},
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(perPage)},
		},
	}
}
