package utils

// Custom WebSocket close codes the bridge sends before closing a session.
// https://www.rfc-editor.org/rfc/rfc6455#section-7.4.2
const (
	CloseCodeExpiredSession     int = 4001
	CloseCodeMissingSessionID   int = 4002
	CloseCodeInvalidDisplay     int = 4003
	CloseCodeDisplayUnavailable int = 4004
	CloseCodeSessionInUse       int = 4005
)

// IsKnownClientErrorCode reports whether code means the client asked for
// something the bridge refused. Retrying the same request will not help.
func IsKnownClientErrorCode(code int) bool {
	return code == CloseCodeExpiredSession ||
		code == CloseCodeMissingSessionID ||
		code == CloseCodeInvalidDisplay ||
		code == CloseCodeSessionInUse
}

var codeNameMap = map[int]string{
	CloseCodeExpiredSession:     "CloseCodeExpiredSession",
	CloseCodeMissingSessionID:   "CloseCodeMissingSessionID",
	CloseCodeInvalidDisplay:     "CloseCodeInvalidDisplay",
	CloseCodeDisplayUnavailable: "CloseCodeDisplayUnavailable",
	CloseCodeSessionInUse:       "CloseCodeSessionInUse",
}

func CloseCodeName(code int) string {
	name, exists := codeNameMap[code]
	if exists {
		return name
	}
	return "UnknownCode"
}
