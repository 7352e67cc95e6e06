package search

// Node is the interface implemented by all expression nodes.
// The set is closed: Literal, NotExpr, AndExpr and OrExpr.
type Node interface {
	node() // marker method
	String() string
}

// Literal is a word or phrase value.
type Literal struct {
	Text string
}

func (Literal) node() {}

func (l Literal) String() string {
	return "'" + l.Text + "'"
}

// NotExpr negates its operand.
type NotExpr struct {
	Operand Node
}

func (NotExpr) node() {}

func (n NotExpr) String() string {
	return "{NOT " + n.Operand.String() + "}"
}

// AndExpr is a binary conjunction.
type AndExpr struct {
	Left  Node
	Right Node
}

func (AndExpr) node() {}

func (a AndExpr) String() string {
	return "{" + a.Left.String() + " AND " + a.Right.String() + "}"
}

// OrExpr is a binary disjunction.
type OrExpr struct {
	Left  Node
	Right Node
}

func (OrExpr) node() {}

func (o OrExpr) String() string {
	return "{" + o.Left.String() + " OR " + o.Right.String() + "}"
}

// SearchExpression wraps the root of a parsed $search expression.
type SearchExpression struct {
	Root Node
}

// String returns the canonical rendering of the expression, e.g.
// {{'a' AND 'b'} OR {NOT 'c'}}.
func (e *SearchExpression) String() string {
	if e == nil || e.Root == nil {
		return ""
	}
	return e.Root.String()
}
