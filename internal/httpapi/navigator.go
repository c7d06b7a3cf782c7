package httpapi

import (
	"net/url"
	"strings"
	"sync"
)

// Redirect is a navigation the portal asks the client to perform.
type Redirect struct {
	Location string `json:"location"`
	Replace  bool   `json:"replace"`
}

// Navigator implements governance.Navigator for HTTP clients. Clients report the view
// they are on through the location header; navigations are handed back in the next
// response.
type Navigator struct {
	mutex   sync.Mutex
	current string
	pending *Redirect
}

// NewNavigator returns a navigator positioned at the root view.
func NewNavigator() *Navigator {
	return &Navigator{current: "/"}
}

// Visit records the client's current location.
func (navigator *Navigator) Visit(location string) {
	location = strings.TrimSpace(location)
	if location == "" {
		return
	}
	navigator.mutex.Lock()
	defer navigator.mutex.Unlock()
	navigator.current = location
}

// CurrentQuery returns the raw query of the current location.
func (navigator *Navigator) CurrentQuery() string {
	navigator.mutex.Lock()
	defer navigator.mutex.Unlock()
	parsed, err := url.Parse(navigator.current)
	if err != nil {
		_, query, _ := strings.Cut(navigator.current, "?")
		return query
	}
	return parsed.RawQuery
}

// Navigate moves the current location and queues the redirect for the client.
func (navigator *Navigator) Navigate(location string, replace bool) {
	navigator.mutex.Lock()
	defer navigator.mutex.Unlock()
	navigator.current = location
	navigator.pending = &Redirect{Location: location, Replace: replace}
}

// Take returns and clears the queued redirect.
func (navigator *Navigator) Take() (Redirect, bool) {
	navigator.mutex.Lock()
	defer navigator.mutex.Unlock()
	if navigator.pending == nil {
		return Redirect{}, false
	}
	redirect := *navigator.pending
	navigator.pending = nil
	return redirect, true
}
