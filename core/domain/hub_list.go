package domain

// ShoppingList is a shared household shopping list.
type ShoppingList struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Name    string `json:"name"`
	Color   string `json:"color,omitempty"`
	Timestamps
}

// ListItem is one entry inside a shopping list. Items sync as independent
// operations with their own operationId; an item failure never rolls back
// its parent list.
type ListItem struct {
	ID        string  `json:"id"`
	OwnerID   string  `json:"ownerId"`
	ListID    string  `json:"listId"`
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity,omitempty"`
	Unit      string  `json:"unit,omitempty"`
	Category  string  `json:"category,omitempty"`
	IsChecked bool    `json:"isChecked"`
	Timestamps
}
