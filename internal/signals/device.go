package signals

import (
	"fmt"

	"github.com/avct/uasurfer"
)

// Device is a parsed view of the User-Agent recorded with each visit.
type Device struct {
	DeviceType   string `json:"device_type"`
	OS           string `json:"os"`
	Browser      string `json:"browser"`
	KnownCrawler bool   `json:"known_crawler"`
}

// ParseDevice parses ua with uasurfer. KnownCrawler reflects uasurfer's
// named-crawler list and is kept separate from IsBotLike.
func ParseDevice(ua string) Device {
	u := uasurfer.Parse(ua)

	var deviceType string
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		deviceType = "desktop"
	case uasurfer.DevicePhone:
		deviceType = "mobile"
	case uasurfer.DeviceTablet:
		deviceType = "tablet"
	default:
		deviceType = "other"
	}

	v := u.OS.Version
	bv := u.Browser.Version
	return Device{
		DeviceType:   deviceType,
		OS:           fmt.Sprintf("%s %s %d.%d.%d", u.OS.Platform.String(), u.OS.Name.String(), v.Major, v.Minor, v.Patch),
		Browser:      fmt.Sprintf("%s %d.%d.%d", u.Browser.Name.String(), bv.Major, bv.Minor, bv.Patch),
		KnownCrawler: u.IsBot(),
	}
}
