package model

// Image is an embedded figure extracted from a document page. Description
// stays nil if the vision call never succeeded; that never blocks the
// document from reaching ready.
type Image struct {
	ID          int64   `json:"id"`
	Slug        string  `json:"slug"`
	Page        int     `json:"page"`
	Path        string  `json:"path"`
	Description *string `json:"description"`
}
