package repo

import "net/http"

// roundTripFunc lets a test stand in for an HTTP transport with a closure.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// newTestClient builds an *http.Client whose every request is answered by fn.
func newTestClient(fn roundTripFunc) *http.Client {
	return &http.Client{Transport: fn}
}
