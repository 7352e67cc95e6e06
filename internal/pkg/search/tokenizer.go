package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenWord
	TokenPhrase
	TokenAnd
	TokenOr
	TokenNot
	TokenOpen
	TokenClose
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenWord:
		return "WORD"
	case TokenPhrase:
		return "PHRASE"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenOpen:
		return "OPEN"
	case TokenClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// Token represents a lexical token.
// Value is only set for words and phrases. Pos is the byte offset of the
// token's first byte in the input.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// Tokenizer scans a $search expression left to right.
// It is not restartable: once TokenEOF has been returned callers must stop.
type Tokenizer struct {
	input string
	pos   int
}

// NewTokenizer creates a new Tokenizer for the given input.
func NewTokenizer(input string) *Tokenizer {
	return &Tokenizer{input: input}
}

// NextToken returns the next token from the input.
func (t *Tokenizer) NextToken() (Token, error) {
	t.skipWhitespace()

	if t.pos >= len(t.input) {
		return Token{Type: TokenEOF, Pos: len(t.input)}, nil
	}

	start := t.pos
	switch t.input[t.pos] {
	case '(':
		t.pos++
		return Token{Type: TokenOpen, Pos: start}, nil
	case ')':
		t.pos++
		return Token{Type: TokenClose, Pos: start}, nil
	case '"':
		return t.readPhrase()
	}

	r, _ := utf8.DecodeRuneInString(t.input[t.pos:])
	if isWordRune(r) {
		return t.readWord()
	}
	return Token{}, t.errorAt(start, "unexpected character")
}

func (t *Tokenizer) skipWhitespace() {
	for t.pos < len(t.input) {
		r, size := utf8.DecodeRuneInString(t.input[t.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		t.pos += size
	}
}

func (t *Tokenizer) readWord() (Token, error) {
	start := t.pos
	for t.pos < len(t.input) {
		r, size := utf8.DecodeRuneInString(t.input[t.pos:])
		if !isWordRune(r) {
			break
		}
		t.pos += size
	}
	if err := t.expectDelimiter(); err != nil {
		return Token{}, err
	}

	value := t.input[start:t.pos]

	// Keywords are case-sensitive: "and" and "ANDy" stay words.
	switch value {
	case "AND":
		return Token{Type: TokenAnd, Pos: start}, nil
	case "OR":
		return Token{Type: TokenOr, Pos: start}, nil
	case "NOT":
		return Token{Type: TokenNot, Pos: start}, nil
	}
	return Token{Type: TokenWord, Value: value, Pos: start}, nil
}

func (t *Tokenizer) readPhrase() (Token, error) {
	start := t.pos
	t.pos++ // opening quote

	var sb strings.Builder
	for {
		if t.pos >= len(t.input) {
			return Token{}, t.errorAt(start, "unterminated phrase")
		}
		ch := t.input[t.pos]
		if ch == '"' {
			t.pos++
			break
		}
		if ch == '\\' {
			if t.pos+1 >= len(t.input) {
				return Token{}, t.errorAt(start, "unterminated phrase")
			}
			next := t.input[t.pos+1]
			if next != '"' && next != '\\' {
				return Token{}, t.errorAt(t.pos, "invalid escape sequence")
			}
			sb.WriteByte(next)
			t.pos += 2
			continue
		}
		r, size := utf8.DecodeRuneInString(t.input[t.pos:])
		if r == utf8.RuneError && size == 1 {
			return Token{}, t.errorAt(t.pos, "invalid UTF-8")
		}
		sb.WriteString(t.input[t.pos : t.pos+size])
		t.pos += size
	}

	if sb.Len() == 0 {
		return Token{}, t.errorAt(start, "empty phrase")
	}
	if err := t.expectDelimiter(); err != nil {
		return Token{}, err
	}
	return Token{Type: TokenPhrase, Value: sb.String(), Pos: start}, nil
}

// expectDelimiter checks that a word or phrase ends at whitespace, a
// parenthesis or the end of input.
func (t *Tokenizer) expectDelimiter() error {
	if t.pos >= len(t.input) {
		return nil
	}
	r, _ := utf8.DecodeRuneInString(t.input[t.pos:])
	if r == '(' || r == ')' || unicode.IsSpace(r) {
		return nil
	}
	return t.errorAt(t.pos, "unexpected character")
}

func (t *Tokenizer) errorAt(pos int, reason string) error {
	r, _ := utf8.DecodeRuneInString(t.input[pos:])
	return &TokenizerError{
		Key:    KeyTokenizer,
		Pos:    pos,
		Text:   string(r),
		Reason: reason,
	}
}

// isWordRune reports whether r may appear in an unquoted search word:
// Unicode letters and letter numbers.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Nl, r)
}
