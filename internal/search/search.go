package search

// Result is a single search hit. Hits are candidates only; the caller
// still filters them through document authorization before returning
// anything to a viewer.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	OwnerID  string `json:"ownerId"`
	IsPublic bool   `json:"isPublic"`
}

// Query describes a search request. Field restricts matching to
// "title" or "content"; empty matches both.
type Query struct {
	Text   string
	Field  string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint. Total
// counts candidates before authorization filtering.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DocumentRecord is the data we index for a document.
type DocumentRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	OwnerID  string `json:"ownerId"`
	IsPublic bool   `json:"isPublic"`
}
