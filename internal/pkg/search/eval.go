package search

import "strings"

// Document is anything that can be matched against a search expression.
type Document interface {
	SearchableFields() []string
}

// Match evaluates the node against a Document and returns true if it matches.
// A nil node matches everything.
func Match(node Node, doc Document) bool {
	if node == nil {
		return true // No search means match all
	}

	switch n := node.(type) {
	case Literal:
		return matchLiteral(n.Text, doc)
	case NotExpr:
		return !Match(n.Operand, doc)
	case AndExpr:
		return Match(n.Left, doc) && Match(n.Right, doc)
	case OrExpr:
		return Match(n.Left, doc) || Match(n.Right, doc)
	default:
		return false
	}
}

// matchLiteral searches all fields case-insensitively.
func matchLiteral(text string, doc Document) bool {
	q := strings.ToLower(text)
	for _, f := range doc.SearchableFields() {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Terms returns the literal texts of node in left-to-right order.
// Literals under a NOT are skipped since they never contribute to a match.
func Terms(node Node) []string {
	var terms []string
	var walk func(Node)
	walk = func(n Node) {
		switch n := n.(type) {
		case Literal:
			terms = append(terms, n.Text)
		case AndExpr:
			walk(n.Left)
			walk(n.Right)
		case OrExpr:
			walk(n.Left)
			walk(n.Right)
		}
	}
	walk(node)
	return terms
}
