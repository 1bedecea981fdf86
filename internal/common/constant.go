// Package common contains constants and small helpers shared by the
// DadMail client packages.
package common

const (
	// AuthorizationHeader carries the bearer credential on outbound requests.
	AuthorizationHeader = "Authorization"
	// BearerScheme prefixes the access token in AuthorizationHeader.
	BearerScheme = "Bearer"
	// RequestIDHeader correlates a request with its replay in logs.
	RequestIDHeader = "X-Request-ID"

	// SessionNamespace is the persisted-storage namespace for the session
	// snapshot and the token pair.
	SessionNamespace = "auth-storage"
	// KeyringNamespace holds material for at-rest sealing.
	KeyringNamespace = "keyring"
)
