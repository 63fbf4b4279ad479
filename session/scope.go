package session

// Scope is everything built for one incoming request: the cookie bridge, the
// storage on top of it and the providers that read from that storage.
type Scope struct {
	Bridge  *CookieBridge
	Storage KeyValueStorage
	Library LibraryOptions
}

// LastAuthUser returns the session identity of the request, or "".
func (s *Scope) LastAuthUser() string {
	if s == nil || s.Bridge == nil {
		return ""
	}
	return s.Bridge.LastAuthUser()
}
