package http

import (
	"net/http"
	"strings"
	"time"

	xutil "AnomalyReplay/pkg/util"
)

// ParseOptionalTime parses a query time bound. An empty string is an open
// bound (nil); anything unparsable is an error.
func ParseOptionalTime(field, s string) (*time.Time, *AppError) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, ok := xutil.ParseTime(s)
	if !ok {
		return nil, NewAppError("ERR_TIME_FORMAT", field, field+" must be RFC3339, a datetime or unix seconds", http.StatusBadRequest).WithParam("value", s)
	}
	return &t, nil
}
