package source

import "fmt"

// HttpError is returned when a release host answers with a status other than 200
type HttpError struct {
	StatusCode int
	Url        string
	Body       string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("HTTP %d while fetching %s: %s", e.StatusCode, e.Url, e.Body)
}
