package search

import (
	"errors"
	"fmt"
	"strings"
)

// MessageKey names one error condition independent of the message text.
type MessageKey string

const (
	KeyTokenizer              MessageKey = "TOKENIZER_EXCEPTION"
	KeyInvalidNotOperand      MessageKey = "INVALID_NOT_OPERAND"
	KeyExpectedDifferentToken MessageKey = "EXPECTED_DIFFERENT_TOKEN"
	KeyInvalidEndOfQuery      MessageKey = "INVALID_END_OF_QUERY"
	KeyMissingClose           MessageKey = "MISSING_CLOSE"
)

// EOFMarker is used in diagnostics in place of the end-of-input token.
const EOFMarker = "<EOF>"

// TokenizerError is returned when part of the input cannot be classified as a
// phrase, word, keyword or parenthesis.
type TokenizerError struct {
	Key    MessageKey
	Pos    int    // byte offset of the offending character
	Text   string // the offending character
	Reason string
}

func (e *TokenizerError) Error() string {
	return fmt.Sprintf("%s %q at position %d", e.Reason, e.Text, e.Pos)
}

// ParserError is returned when the token sequence violates the grammar.
type ParserError struct {
	Key      MessageKey
	Pos      int
	Expected []TokenType // only set for KeyExpectedDifferentToken
	Actual   Token
}

func (e *ParserError) Error() string {
	switch e.Key {
	case KeyExpectedDifferentToken:
		names := make([]string, len(e.Expected))
		for i, tt := range e.Expected {
			names[i] = tt.String()
		}
		return fmt.Sprintf("Expected %s found: %s", strings.Join(names, "||"), describe(e.Actual))
	case KeyInvalidNotOperand:
		return fmt.Sprintf("invalid operand for NOT at position %d: %s", e.Pos, describe(e.Actual))
	case KeyInvalidEndOfQuery:
		return fmt.Sprintf("unexpected %s at position %d after end of expression", describe(e.Actual), e.Pos)
	case KeyMissingClose:
		return fmt.Sprintf("missing ')' for group opened at position %d", e.Pos)
	default:
		return string(e.Key)
	}
}

// describe names a token for diagnostics.
func describe(tok Token) string {
	if tok.Type == TokenEOF {
		return EOFMarker
	}
	return tok.Type.String()
}

// KeyOf returns the message key carried by a tokenizer or parser error.
func KeyOf(err error) (MessageKey, bool) {
	var te *TokenizerError
	if errors.As(err, &te) {
		return te.Key, true
	}
	var pe *ParserError
	if errors.As(err, &pe) {
		return pe.Key, true
	}
	return "", false
}

// Position returns the byte offset a tokenizer or parser error refers to.
func Position(err error) (int, bool) {
	var te *TokenizerError
	if errors.As(err, &te) {
		return te.Pos, true
	}
	var pe *ParserError
	if errors.As(err, &pe) {
		return pe.Pos, true
	}
	return 0, false
}
