package session

import (
	"net/http"
	"net/url"
	"sync"
	"time"
)

// DefaultCookieMaxAge matches the default Cognito refresh token lifetime.
const DefaultCookieMaxAge = 30 * 24 * time.Hour

// CookieOptions is the write policy applied to outbound cookies.
type CookieOptions struct {
	MaxAge   time.Duration
	SameSite http.SameSite
	Secure   bool
	HttpOnly bool
	Path     string
	Domain   string
}

// DefaultCookieOptions returns the policy used when nothing else is configured:
// 30 days, SameSite=Lax, Secure.
func DefaultCookieOptions() *CookieOptions {
	return &CookieOptions{
		MaxAge:   DefaultCookieMaxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   true,
		Path:     "/",
	}
}

type cookieRef struct {
	value   string
	present bool
	dirty   bool
}

// CookieBridge exposes the credential cookies of a single request through
// CookieStorageAdapter. Only names derived from the LastAuthUser cookie are
// tracked; everything else is ignored.
//
// With nil options the bridge runs read-mostly: writes are kept in memory for
// the rest of the request but WriteCookies never emits them.
type CookieBridge struct {
	mu      sync.Mutex
	req     *http.Request
	keys    Keys
	opts    *CookieOptions
	now     func() time.Time
	refs    map[string]*cookieRef
	ordered []string
}

// NewCookieBridge creates a bridge over the cookies of r.
func NewCookieBridge(r *http.Request, keys Keys, opts *CookieOptions) *CookieBridge {
	b := &CookieBridge{
		req:  r,
		keys: keys,
		opts: opts,
		now:  time.Now,
		refs: make(map[string]*cookieRef),
	}

	if user := readCookie(r, keys.LastAuthUser()); user != "" {
		b.track(keys.ForUser(user)...)
	}
	return b
}

// LastAuthUser returns the session identity seen by this bridge, or "".
func (b *CookieBridge) LastAuthUser() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, ok := b.refs[b.keys.LastAuthUser()]
	if !ok || !ref.present {
		return ""
	}
	return ref.value
}

// Keys returns the key naming used by the bridge.
func (b *CookieBridge) Keys() Keys {
	return b.keys
}

// Names returns the tracked record names in a stable order.
func (b *CookieBridge) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.ordered...)
}

// Adopt starts tracking the records of user so that a new session can be
// written through the bridge.
func (b *CookieBridge) Adopt(user string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.track(b.keys.ForUser(user)...)
}

// Get implements CookieStorageAdapter.
func (b *CookieBridge) Get(name string) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, ok := b.refs[name]
	if !ok || !ref.present || ref.value == "" {
		return Record{}, false
	}
	return Record{Name: name, Value: ref.value, Present: true}, true
}

// GetAll implements CookieStorageAdapter.
func (b *CookieBridge) GetAll() []Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	records := make([]Record, 0, len(b.ordered))
	for _, name := range b.ordered {
		ref := b.refs[name]
		rec := Record{Name: name}
		if ref.present && ref.value != "" {
			rec.Value = ref.value
			rec.Present = true
		}
		records = append(records, rec)
	}
	return records
}

// Set implements CookieStorageAdapter.
func (b *CookieBridge) Set(name, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, ok := b.refs[name]
	if !ok {
		return
	}
	ref.value = value
	ref.present = true
	ref.dirty = true
}

// Delete implements CookieStorageAdapter.
func (b *CookieBridge) Delete(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ref, ok := b.refs[name]
	if !ok {
		return
	}
	ref.value = ""
	ref.present = false
	ref.dirty = true
}

// Mutations returns the writes not yet flushed to a response.
func (b *CookieBridge) Mutations() []Mutation {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Mutation
	for _, name := range b.ordered {
		ref := b.refs[name]
		if !ref.dirty {
			continue
		}
		out = append(out, Mutation{Name: name, Value: ref.value, Deleted: !ref.present})
	}
	return out
}

// WriteCookies adds a Set-Cookie header for every pending mutation and
// returns how many were written. It must be called before the response
// header is written. A mutation whose cookie net/http refuses to serialize
// stays pending. Without a write policy it does nothing.
func (b *CookieBridge) WriteCookies(w http.ResponseWriter) int {
	if b.opts == nil {
		return 0
	}

	var written []string
	for _, m := range b.Mutations() {
		v := b.cookieFor(m).String()
		if v == "" {
			continue
		}
		w.Header().Add("Set-Cookie", v)
		written = append(written, m.Name)
	}

	b.mu.Lock()
	for _, name := range written {
		b.refs[name].dirty = false
	}
	b.mu.Unlock()

	return len(written)
}

func (b *CookieBridge) cookieFor(m Mutation) *http.Cookie {
	path := b.opts.Path
	if path == "" {
		path = "/"
	}
	c := &http.Cookie{
		Name:     m.Name,
		Path:     path,
		Domain:   b.opts.Domain,
		Secure:   b.opts.Secure,
		HttpOnly: b.opts.HttpOnly,
		SameSite: b.opts.SameSite,
	}
	if m.Deleted {
		c.MaxAge = -1
		return c
	}

	c.Value = url.PathEscape(m.Value)
	if b.opts.MaxAge > 0 {
		c.MaxAge = int(b.opts.MaxAge.Seconds())
		c.Expires = b.now().Add(b.opts.MaxAge).UTC()
	}
	return c
}

// track must be called with mu held (or before the bridge is shared).
func (b *CookieBridge) track(names ...string) {
	for _, name := range names {
		if _, ok := b.refs[name]; ok {
			continue
		}
		value := readCookie(b.req, name)
		b.refs[name] = &cookieRef{value: value, present: value != ""}
		b.ordered = append(b.ordered, name)
	}
}

func readCookie(r *http.Request, name string) string {
	if r == nil {
		return ""
	}
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	if v, err := url.PathUnescape(c.Value); err == nil {
		return v
	}
	return c.Value
}
