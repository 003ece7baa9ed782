package query

import (
	"fmt"
	"net/url"
	"strconv"

	pkgerrors "smsinbox/pkg/errors"
	"smsinbox/pkg/models"
)

// Limits bounds the page size accepted by ParseParams.
type Limits struct {
	Default int
	Max     int
}

// Params is a validated message query.
type Params struct {
	Filter models.Filter
	Limit  int
	Offset int
}

// ParseParams validates the query string of GET /messages. Empty values are
// treated as absent. from and to are not trimmed: a leading space is a '+'
// lost in transport. "from_msisdn" and "to_msisdn" are accepted as aliases
// of "from" and "to".
func ParseParams(values url.Values, limits Limits) (Params, *pkgerrors.Error) {
	p := Params{Limit: limits.Default}
	var fields []pkgerrors.FieldError

	if raw := first(values, "limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			fields = append(fields, pkgerrors.FieldError{Field: "limit", Reason: "must be an integer"})
		case n < 1 || n > limits.Max:
			fields = append(fields, pkgerrors.FieldError{
				Field:  "limit",
				Reason: fmt.Sprintf("must be between 1 and %d", limits.Max),
			})
		default:
			p.Limit = n
		}
	}

	if raw := first(values, "offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			fields = append(fields, pkgerrors.FieldError{Field: "offset", Reason: "must be an integer"})
		case n < 0:
			fields = append(fields, pkgerrors.FieldError{Field: "offset", Reason: "must be greater than or equal to 0"})
		default:
			p.Offset = n
		}
	}

	if since := first(values, "since"); since != "" {
		if reason := models.CheckTimestamp(since); reason != "" {
			fields = append(fields, pkgerrors.FieldError{Field: "since", Reason: reason})
		} else {
			p.Filter.Since = since
		}
	}

	p.Filter.From = models.NormalizeMSISDN(first(values, "from", "from_msisdn"))
	p.Filter.To = models.NormalizeMSISDN(first(values, "to", "to_msisdn"))
	p.Filter.Q = first(values, "q")

	if len(fields) > 0 {
		return Params{}, pkgerrors.ErrValidation.
			WithDetail("kind", "invalid_query").
			WithFields(fields)
	}
	return p, nil
}

func first(values url.Values, keys ...string) string {
	for _, key := range keys {
		if v := values.Get(key); v != "" {
			return v
		}
	}
	return ""
}
