package ports

import "net/http"

// HTTPClient performs the requests of the host client. *http.Client
// satisfies it; tests substitute canned transports.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
