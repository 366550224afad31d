package elasticsearch

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// errorBody is the error envelope of a failed request.
type errorBody struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// responseError converts a failed response into a domain error for op on
// target.
func responseError(res *esapi.Response, op, target string) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))

	var body errorBody
	reason := string(raw)
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Type != "" {
		reason = body.Error.Type + ": " + body.Error.Reason
	}

	var base error
	switch {
	case body.Error.Type == "resource_already_exists_exception":
		base = domain.ErrIndexAlreadyExists
	case res.StatusCode == 404:
		base = domain.ErrNotFound
	case res.StatusCode == 409:
		base = domain.ErrConflict
	case res.StatusCode >= 500:
		base = domain.ErrUnavailable
	default:
		base = domain.ErrInternal
	}

	return &domain.IndexError{
		Target:    target,
		Operation: op,
		Err:       fmt.Errorf("%s %s: %w", res.Status(), reason, base),
	}
}
