package mongodb

import (
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/jobrunner/hospigeo/internal/domain"
)

// codeCannotExtractGeoKeys is returned by the server when a document's
// geometry cannot be indexed.
const codeCannotExtractGeoKeys = 16755

// advisoryMarkers are message fragments of data-quality index failures.
var advisoryMarkers = []string{
	"duplicate vertices",
	"duplicate vertex",
	"out of bounds",
}

// classifyIndexError sorts a spatial index creation failure into an
// advisory data-quality warning or a fatal index error. Only message text
// separates the two, so every rule lives here.
func classifyIndexError(collection string, err error) error {
	if err == nil {
		return nil
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) && cmdErr.Code == codeCannotExtractGeoKeys && hasAdvisoryMarker(cmdErr.Message) {
		return &domain.AdvisoryIndexError{Collection: collection, Err: err}
	}
	if hasAdvisoryMarker(err.Error()) {
		return &domain.AdvisoryIndexError{Collection: collection, Err: err}
	}

	return &domain.IndexError{Target: collection, Operation: "create 2dsphere index", Err: err}
}

func hasAdvisoryMarker(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range advisoryMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
