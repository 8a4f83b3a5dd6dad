package models

import "fmt"

// FetchStatus classifies the outcome of a single page fetch.
type FetchStatus int

const (
	FetchSuccess FetchStatus = iota
	FetchHTTPError
	FetchNetworkError
)

func (s FetchStatus) String() string {
	switch s {
	case FetchSuccess:
		return "success"
	case FetchHTTPError:
		return "http_error"
	case FetchNetworkError:
		return "network_error"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// FetchResult is what the fetcher hands back for one URL.
type FetchResult struct {
	URL         string
	FinalURL    string
	Status      FetchStatus
	StatusCode  int
	ContentType string
	Body        []byte
	Err         error

	// Truncated is set when the body was cut at the fetcher's size cap.
	Truncated bool
}

// OK reports whether the fetch produced a usable body.
func (r FetchResult) OK() bool {
	return r.Status == FetchSuccess
}

// Failure describes a failed fetch. It returns nil for successful fetches.
func (r FetchResult) Failure() error {
	switch r.Status {
	case FetchSuccess:
		return nil
	case FetchHTTPError:
		return fmt.Errorf("http status %d for %s", r.StatusCode, r.URL)
	default:
		return fmt.Errorf("fetch %s: %w", r.URL, r.Err)
	}
}
