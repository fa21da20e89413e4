package domain

// Category is a catalog grouping.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Slug        string `json:"slug,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}
