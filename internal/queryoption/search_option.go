package queryoption

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/coffersTech/odsearch/internal/pkg/search"
)

// SearchParam is the name of the $search system query option.
const SearchParam = "$search"

// SearchOption is the parsed $search system query option.
type SearchOption struct {
	Text       string                   `json:"text"`
	Expression *search.SearchExpression `json:"-"`
}

// Root returns the root node of the expression, or nil when o is nil.
func (o *SearchOption) Root() search.Node {
	if o == nil || o.Expression == nil {
		return nil
	}
	return o.Expression.Root
}

var (
	ErrSearchTooLong  = errors.New("$search expression is too long")
	ErrDuplicateParam = errors.New("$search must not be specified more than once")
)

// ParseSearch parses an already percent-decoded $search expression.
// maxLen bounds the input in bytes; 0 disables the check.
func ParseSearch(text string, maxLen int) (*SearchOption, error) {
	if maxLen > 0 && len(text) > maxLen {
		return nil, fmt.Errorf("%w (%d > %d bytes)", ErrSearchTooLong, len(text), maxLen)
	}

	expr, err := search.Parse(text)
	if err != nil {
		return nil, err
	}
	return &SearchOption{Text: text, Expression: expr}, nil
}

// FromQuery extracts and parses $search from decoded query values.
// Returns nil when the option is absent.
func FromQuery(values url.Values, maxLen int) (*SearchOption, error) {
	raw, ok := values[SearchParam]
	if !ok {
		return nil, nil
	}
	if len(raw) > 1 {
		return nil, ErrDuplicateParam
	}
	return ParseSearch(raw[0], maxLen)
}

// StatusCode maps a query-option error to an HTTP status.
func StatusCode(err error) int {
	if _, ok := search.KeyOf(err); ok {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrSearchTooLong) || errors.Is(err, ErrDuplicateParam) {
		return http.StatusBadRequest
	}
	var optErr *InvalidOptionError
	if errors.As(err, &optErr) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
