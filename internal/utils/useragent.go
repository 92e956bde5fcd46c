package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo holds parsed information from a User-Agent string
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
}

// ParseUserAgent parses a User-Agent string and extracts device information
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)

	info := DeviceInfo{
		DeviceType: "desktop",
		OS:         "Unknown",
		Browser:    "Unknown",
		IsBot:      parser.Bot(),
	}

	if parser.Mobile() {
		info.DeviceType = "mobile"
		if isTablet(userAgent) {
			info.DeviceType = "tablet"
		}
	}

	if osInfo := parser.OSInfo(); osInfo.Name != "" {
		info.OS = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
	}

	if name, version := parser.Browser(); name != "" {
		info.Browser = strings.TrimSpace(name + " " + version)
	}

	return info
}

// Summary renders the device info as a single audit-friendly line
func (d DeviceInfo) Summary() string {
	summary := d.DeviceType + " / " + d.OS + " / " + d.Browser
	if d.IsBot {
		summary += " (bot)"
	}
	return summary
}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "sm-t"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}
