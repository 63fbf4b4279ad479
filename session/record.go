package session

// Record is a named credential value held by the cookie jar.
// Present is false when no cookie (or an empty one) backs the name; an absent
// record is never reported as an empty string.
type Record struct {
	Name    string
	Value   string
	Present bool
}

// Mutation is a write made to the cookie jar during a request that has to be
// sent back to the client.
type Mutation struct {
	Name    string
	Value   string
	Deleted bool
}

// CookieStorageAdapter is the get/getAll/set/delete contract a host's cookie
// store has to satisfy.
type CookieStorageAdapter interface {
	// Get returns the record for name, or false when the cookie is not set.
	Get(name string) (Record, bool)

	// GetAll returns one record per known key name of the current session.
	GetAll() []Record

	// Set overwrites the value for name for the rest of the request.
	Set(name, value string)

	// Delete removes name; the removal is sent back to the client.
	Delete(name string)
}

// KeyValueStorage is the storage capability consumed by token and credential
// providers. Implementations may be backed by cookies, request headers or a
// server-side session store.
type KeyValueStorage interface {
	GetItem(key string) (value string, found bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
	Clear() error
}

// NewKeyValueStorage adapts a CookieStorageAdapter to KeyValueStorage.
func NewKeyValueStorage(adapter CookieStorageAdapter) KeyValueStorage {
	return &cookieStorage{adapter: adapter}
}

type cookieStorage struct {
	adapter CookieStorageAdapter
}

func (s *cookieStorage) GetItem(key string) (string, bool, error) {
	rec, ok := s.adapter.Get(key)
	if !ok {
		return "", false, nil
	}
	return rec.Value, true, nil
}

func (s *cookieStorage) SetItem(key, value string) error {
	s.adapter.Set(key, value)
	return nil
}

func (s *cookieStorage) RemoveItem(key string) error {
	s.adapter.Delete(key)
	return nil
}

func (s *cookieStorage) Clear() error {
	for _, rec := range s.adapter.GetAll() {
		s.adapter.Delete(rec.Name)
	}
	return nil
}
