package engine

// Entity is a single searchable record (row-oriented view).
// Used when ingesting, reading data from disk or returning query results.
type Entity struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Category    string `json:"category" yaml:"category"`
	CreatedAt   int64  `json:"created_at" yaml:"created_at"`
}

// SearchableFields implements search.Document.
func (e *Entity) SearchableFields() []string {
	return []string{e.Name, e.Description, e.Category}
}
