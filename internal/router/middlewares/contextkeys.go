package middlewares

// ContextKey is used to key context values.
type ContextKey int

const (
	// ContextKeyFID is used to store the fid of the incoming request,
	// this is found in the request path.
	ContextKeyFID ContextKey = iota
	// ContextIPAddress is used to store the ip address of the client for the incoming request,
	// this is found in either the request IP or the x-forwarded header.
	ContextIPAddress ContextKey = iota
)
