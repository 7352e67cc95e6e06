package search

// Parser parses $search expressions into an expression tree.
//
// Grammar, lowest to highest precedence:
//
//	Expr      := OrExpr
//	OrExpr    := AndExpr ( OR AndExpr )*
//	AndExpr   := NotFactor ( [AND] NotFactor )*
//	NotFactor := NOT NotFactor | Primary
//	Primary   := WORD | PHRASE | OPEN Expr CLOSE
//
// A Parser holds a single lookahead token and must not be shared between
// goroutines.
type Parser struct {
	tokenizer *Tokenizer
	current   Token
}

// NewParser creates a parser reading tokens from t.
func NewParser(t *Tokenizer) *Parser {
	return &Parser{tokenizer: t}
}

// Parse parses the input string and returns the expression tree.
//
// Example expressions:
//   - blue
//   - "light blue" OR azure
//   - shoes NOT (red OR brown)
//   - a b c (implicit AND)
func Parse(input string) (*SearchExpression, error) {
	return NewParser(NewTokenizer(input)).Parse()
}

// Parse consumes the whole token stream and returns the expression tree.
func (p *Parser) Parse() (*SearchExpression, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}

	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	// Ensure we consumed all tokens
	if p.current.Type != TokenEOF {
		return nil, &ParserError{Key: KeyInvalidEndOfQuery, Pos: p.current.Pos, Actual: p.current}
	}

	return &SearchExpression{Root: root}, nil
}

func (p *Parser) advance() error {
	tok, err := p.tokenizer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

// parseOr handles OR expressions (lowest precedence).
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.current.Type == TokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = OrExpr{Left: left, Right: right}
	}

	return left, nil
}

// parseAnd handles explicit and implicit AND expressions.
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for {
		switch p.current.Type {
		case TokenAnd:
			if err := p.advance(); err != nil {
				return nil, err
			}
		case TokenWord, TokenPhrase, TokenNot, TokenOpen:
			// implicit AND: the next factor starts without a connector
		default:
			return left, nil
		}

		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = AndExpr{Left: left, Right: right}
	}
}

// parseNot handles NOT expressions.
func (p *Parser) parseNot() (Node, error) {
	if p.current.Type != TokenNot {
		return p.parsePrimary()
	}

	notTok := p.current
	if err := p.advance(); err != nil {
		return nil, err
	}

	switch p.current.Type {
	case TokenNot, TokenAnd, TokenOr, TokenClose, TokenEOF:
		return nil, &ParserError{Key: KeyInvalidNotOperand, Pos: notTok.Pos, Actual: p.current}
	}

	operand, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return NotExpr{Operand: operand}, nil
}

// parsePrimary handles words, phrases and parenthesized groups.
func (p *Parser) parsePrimary() (Node, error) {
	switch p.current.Type {
	case TokenWord, TokenPhrase:
		lit := Literal{Text: p.current.Value}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return lit, nil

	case TokenOpen:
		open := p.current
		if err := p.advance(); err != nil {
			return nil, err
		}
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenClose {
			// parseOr only stops at CLOSE or EOF
			return nil, &ParserError{Key: KeyMissingClose, Pos: open.Pos, Actual: p.current}
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		// A group collapses to its single child.
		return expr, nil

	default:
		return nil, &ParserError{
			Key:      KeyExpectedDifferentToken,
			Pos:      p.current.Pos,
			Expected: []TokenType{TokenPhrase, TokenWord},
			Actual:   p.current,
		}
	}
}
