package models

// Default shopping list names created for a new household.
const (
	ListGrocery  = "grocery"
	ListPharmacy = "pharmacy"
	ListOther    = "other"
)

type ShoppingItem struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// ShoppingLists maps a list name to its ordered items.
type ShoppingLists map[string][]ShoppingItem

// ShoppingDocument is the singleton remote document shared by the whole household.
type ShoppingDocument struct {
	Lists     ShoppingLists `json:"lists"`
	UpdatedAt int64         `json:"updatedAt"`
	UpdatedBy string        `json:"updatedBy,omitempty"`
}

// DefaultShoppingLists returns the three empty starter lists.
func DefaultShoppingLists() ShoppingLists {
	return ShoppingLists{
		ListGrocery:  {},
		ListPharmacy: {},
		ListOther:    {},
	}
}

// Clone deep-copies the lists.
func (l ShoppingLists) Clone() ShoppingLists {
	if l == nil {
		return nil
	}
	out := make(ShoppingLists, len(l))
	for name, items := range l {
		out[name] = append([]ShoppingItem{}, items...)
	}
	return out
}

// IsEmpty reports whether there are no lists at all. Empty named lists still count as lists.
func (l ShoppingLists) IsEmpty() bool {
	return len(l) == 0
}
