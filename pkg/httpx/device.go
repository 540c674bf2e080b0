package httpx

import (
	"net/http"
	"strings"
)

// UnknownDevice is used when a client sends no User-Agent.
const UnknownDevice = "unknown"

// maxDeviceLen bounds what ends up in the sessions table.
const maxDeviceLen = 512

// DeviceID identifies the client device a session is bound to.
func DeviceID(r *http.Request) string {
	ua := strings.TrimSpace(r.UserAgent())
	if ua == "" {
		return UnknownDevice
	}
	if len(ua) > maxDeviceLen {
		ua = ua[:maxDeviceLen]
	}
	return ua
}
