package category

func substrings(keywords ...string) []Rule {
	rules := make([]Rule, len(keywords))
	for i, k := range keywords {
		rules[i] = Rule{Pattern: k, Mode: MatchSubstring}
	}
	return rules
}

// Defaults returns the categories seeded into an empty database
func Defaults() []Category {
	return []Category{
		{ID: "frozen", Name: "Mrożonki", Color: "#00BCD4", Priority: 1, ShelfLifeDays: 180,
			Rules: substrings("mrożon", "mroż.", "zamroż", "lody", "lód")},
		{ID: "dairy", Name: "Nabiał", Color: "#4CAF50", Priority: 2, ShelfLifeDays: 7,
			Rules: substrings("mleko", "mlek", "ser", "jogurt", "śmietana", "masło", "margaryna", "twaróg", "kefir")},
		{ID: "meat", Name: "Mięso", Color: "#F44336", Priority: 3, ShelfLifeDays: 4,
			Rules: substrings("mięso", "drób", "wędlina", "kiełbasa", "szynka", "parówki", "kurczak")},
		{ID: "vegetables", Name: "Warzywa", Color: "#8BC34A", Priority: 4, ShelfLifeDays: 10,
			Rules: substrings("warzywa", "marchew", "ziemniaki", "cebula", "pomidor", "ogórek")},
		{ID: "fruit", Name: "Owoce", Color: "#FF9800", Priority: 5, ShelfLifeDays: 7,
			Rules: substrings("owoce", "jabłka", "banany", "pomarańcze", "cytryny")},
		{ID: "drinks", Name: "Napoje", Color: "#2196F3", Priority: 6,
			Rules: substrings("napój", "woda", "sok", "cola", "piwo", "kawa", "herbata")},
		{ID: "bread", Name: "Pieczywo", Color: "#795548", Priority: 7, ShelfLifeDays: 3,
			Rules: substrings("chleb", "bułka", "bagietka", "rogal", "drożdżówka")},
		{ID: "sweets", Name: "Słodycze", Color: "#E91E63", Priority: 8,
			Rules: substrings("cukierki", "czekolada", "ciastka", "batonik", "wafelek")},
		{ID: "snacks", Name: "Przekąski", Color: "#FFC107", Priority: 9,
			Rules: substrings("chipsy", "paluszki", "orzeszki", "krakersy")},
		{ID: "household", Name: "Chemia", Color: "#9E9E9E", Priority: 10,
			Rules: substrings("proszek", "płyn", "mydło", "szampon", "pasta")},
	}
}
