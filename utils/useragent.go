package utils

import (
	"strings"

	"github.com/avct/uasurfer"

	"climatedash/api/models"
)

// UnknownFamily is reported when a browser or OS cannot be identified.
const UnknownFamily = "unknown"

// Classification is the result of inspecting a user-agent string.
type Classification struct {
	Device  models.DeviceClass
	Browser string
	OS      string
}

// ClassifyUserAgent maps a raw user-agent string to a device class, browser
// family and OS family. Mobile is checked before tablet, anything else is a
// desktop. It never fails: unrecognised input yields desktop/unknown.
func ClassifyUserAgent(raw string) Classification {
	c := Classification{
		Device:  models.DeviceDesktop,
		Browser: UnknownFamily,
		OS:      UnknownFamily,
	}
	if strings.TrimSpace(raw) == "" {
		return c
	}

	ua := uasurfer.Parse(raw)
	switch ua.DeviceType {
	case uasurfer.DevicePhone, uasurfer.DeviceWearable:
		c.Device = models.DeviceMobile
	case uasurfer.DeviceTablet:
		c.Device = models.DeviceTablet
	}

	if ua.Browser.Name != uasurfer.BrowserUnknown {
		c.Browser = ua.Browser.Name.StringTrimPrefix()
	}
	if ua.OS.Name != uasurfer.OSUnknown {
		c.OS = ua.OS.Name.StringTrimPrefix()
	}
	return c
}
