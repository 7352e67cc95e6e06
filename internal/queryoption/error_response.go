package queryoption

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/coffersTech/odsearch/internal/pkg/search"
)

// ErrorDetail is one entry of the OData error "details" array.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// ErrorBody follows the OData JSON error format.
type ErrorBody struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Target  string        `json:"target,omitempty"`
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorResponse is the top-level OData error document.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds an OData error document for err.
// Grammar errors carry their message key as code and the offending position.
func NewErrorResponse(err error) ErrorResponse {
	body := ErrorBody{
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	}

	var optErr *InvalidOptionError
	switch {
	case errors.As(err, &optErr):
		body.Code = "INVALID_QUERY_OPTION"
		body.Target = optErr.Param
	case errors.Is(err, ErrSearchTooLong):
		body.Code = "SEARCH_TOO_LONG"
		body.Target = SearchParam
	case errors.Is(err, ErrDuplicateParam):
		body.Code = "DUPLICATE_QUERY_OPTION"
		body.Target = SearchParam
	default:
		if key, ok := search.KeyOf(err); ok {
			body.Code = string(key)
			body.Target = SearchParam
			if pos, ok := search.Position(err); ok {
				body.Details = []ErrorDetail{{
					Code:    "POSITION",
					Message: strconv.Itoa(pos),
					Target:  SearchParam,
				}}
			}
		}
	}

	return ErrorResponse{Error: body}
}

// WriteError writes err as an OData error document with the mapped status.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusCode(err))
	_ = json.NewEncoder(w).Encode(NewErrorResponse(err))
}
