package queryoption

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	TopParam  = "$top"
	SkipParam = "$skip"
)

// InvalidOptionError reports a system query option with a malformed value.
type InvalidOptionError struct {
	Param string
	Value string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: expected a non-negative integer", e.Value, e.Param)
}

// Paging holds the $top and $skip system query options.
type Paging struct {
	Top  int
	Skip int
}

// ParsePaging reads $top and $skip. An absent $top falls back to defaultTop.
func ParsePaging(values url.Values, defaultTop int) (Paging, error) {
	p := Paging{Top: defaultTop}

	top, ok, err := nonNegative(values, TopParam)
	if err != nil {
		return p, err
	}
	if ok {
		p.Top = top
	}

	skip, _, err := nonNegative(values, SkipParam)
	if err != nil {
		return p, err
	}
	p.Skip = skip
	return p, nil
}

func nonNegative(values url.Values, param string) (int, bool, error) {
	raw, ok := values[param]
	if !ok {
		return 0, false, nil
	}
	if len(raw) > 1 {
		return 0, false, &InvalidOptionError{Param: param, Value: raw[1]}
	}
	n, err := strconv.Atoi(raw[0])
	if err != nil || n < 0 {
		return 0, false, &InvalidOptionError{Param: param, Value: raw[0]}
	}
	return n, true, nil
}
