package domain

// Recipe is a household recipe.
type Recipe struct {
	ID           string   `json:"id"`
	OwnerID      string   `json:"ownerId"`
	Title        string   `json:"title"`
	Ingredients  []string `json:"ingredients,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Timestamps
}
