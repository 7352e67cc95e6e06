package search

import (
	"testing"

	"github.com/stvp/assert"
)

// testDoc implements Document for testing
type testDoc []string

func (d testDoc) SearchableFields() []string { return d }

func TestMatch(t *testing.T) {
	doc := testDoc{"Trail Running Shoe", "Lightweight shoe for rocky terrain", "Footwear"}

	tests := []struct {
		query    string
		expected bool
	}{
		{"shoe", true},
		{"SHOE", true},
		{"boot", false},
		{"shoe rocky", true},
		{"shoe AND boot", false},
		{"boot OR rocky", true},
		{"NOT boot", true},
		{"NOT shoe", false},
		{`"rocky terrain"`, true},
		{`"terrain rocky"`, false},
		{"footwear NOT (boot OR sandal)", true},
		{"(boot OR sandal) footwear", false},
		{"a OR b AND c", true}, // 'a' appears in "Trail"
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			expr, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			if got := Match(expr.Root, doc); got != tt.expected {
				t.Errorf("Match(%q) = %v, want %v", tt.query, got, tt.expected)
			}
		})
	}
}

func TestMatchNilMatchesAll(t *testing.T) {
	assert.True(t, Match(nil, testDoc{}))
}

func TestTerms(t *testing.T) {
	tests := []struct {
		query    string
		expected []string
	}{
		{"a", []string{"a"}},
		{"a b OR c", []string{"a", "b", "c"}},
		{`"x y" NOT z`, []string{"x y"}},
		{"NOT (a OR b)", nil},
		{"((a)) (b (c))", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			expr, err := Parse(tt.query)
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}
			assert.Equal(t, Terms(expr.Root), tt.expected)
		})
	}
}
