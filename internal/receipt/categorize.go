package receipt

import "github.com/zombor/pantry-tracker/internal/category"

// Classifier assigns a category to an item description
type Classifier interface {
	Classify(description string) category.ID
}

// Categorize assigns a category to every item. Items no rule matches become
// category.Unassigned; they are kept, never dropped.
func Categorize(r *Receipt, c Classifier) {
	for i := range r.Items {
		r.Items[i].Category = c.Classify(r.Items[i].Description)
	}
	r.Status = StatusCategorized
}
