package models

// Device is one entry of the filtered device catalog
type Device struct {
	AbiType             string   `json:"abiType"`
	APILevel            int      `json:"apiLevel"`
	CloudType           string   `json:"cloudType"`
	CompositeID         string   `json:"compositeId"`
	CPUType             string   `json:"cpuType"`
	CPUCores            int      `json:"cpuCores"`
	CPUFrequency        int      `json:"cpuFrequency"`
	DataCenterID        string   `json:"dataCenterId"`
	DescriptorID        string   `json:"descriptorId"`
	DPI                 int      `json:"dpi"`
	DPIName             string   `json:"dpiName"`
	FreeOfCharge        bool     `json:"freeOfCharge"`
	FormFactor          string   `json:"formFactor"`
	HasOnScreenButtons  bool     `json:"hasOnScreenButtons"`
	IncludedInPlan      bool     `json:"includedInPlan"`
	InternalStorageSize int      `json:"internalStorageSize"`
	ModelNumber         string   `json:"modelNumber"`
	Name                string   `json:"name"`
	OS                  string   `json:"os"`
	OSVersion           string   `json:"osVersion"`
	RAMSize             int      `json:"ramSize"`
	ResolutionHeight    int      `json:"resolutionHeight"`
	ResolutionWidth     int      `json:"resolutionWidth"`
	ScreenSize          float64  `json:"screenSize"`
	PhoneNumber         *string  `json:"phoneNumber,omitempty"`
	Manufacturers       []string `json:"manufacturers"`
	Connectivity        []string `json:"connectivity"`
}

// DeviceFacets are the filter counts returned with the catalog
type DeviceFacets struct {
	CloudType    map[string]int `json:"cloudType"`
	DataCenter   map[string]int `json:"dataCenter"`
	DPI          map[string]int `json:"dpi"`
	ScreenSize   map[string]int `json:"screenSize"`
	OS           map[string]int `json:"os"`
	OSVersion    map[string]int `json:"osVersion"`
	FormFactor   map[string]int `json:"formFactor"`
	Resolution   map[string]int `json:"resolution"`
	Manufacturer map[string]int `json:"manufacturer"`
}

// FilterableDevices is the response of the device catalog call
type FilterableDevices struct {
	Facets   DeviceFacets `json:"facets"`
	Entities []Device     `json:"entities"`
}

// AvailableDevice is a catalog device annotated with its availability
type AvailableDevice struct {
	Device
	InUse bool `json:"inUse"`
}
