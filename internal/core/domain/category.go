package domain

import "strings"

type Category string

const (
	CategoryElectronics  Category = "electronics"
	CategoryFurniture    Category = "furniture"
	CategoryAppliances   Category = "appliances"
	CategoryJewelry      Category = "jewelry"
	CategoryArt          Category = "art"
	CategoryCollectibles Category = "collectibles"
	CategoryClothing     Category = "clothing"
	CategoryTools        Category = "tools"
	CategorySports       Category = "sports"
	CategoryBooks        Category = "books"
	CategoryKitchenware  Category = "kitchenware"
	CategoryOther        Category = "other"
)

var categories = []Category{
	CategoryElectronics,
	CategoryFurniture,
	CategoryAppliances,
	CategoryJewelry,
	CategoryArt,
	CategoryCollectibles,
	CategoryClothing,
	CategoryTools,
	CategorySports,
	CategoryBooks,
	CategoryKitchenware,
	CategoryOther,
}

var categorySynonyms = map[string]Category{
	"electronic":       CategoryElectronics,
	"computers":        CategoryElectronics,
	"appliance":        CategoryAppliances,
	"jewellery":        CategoryJewelry,
	"artwork":          CategoryArt,
	"collectible":      CategoryCollectibles,
	"apparel":          CategoryClothing,
	"tool":             CategoryTools,
	"sporting goods":   CategorySports,
	"sports equipment": CategorySports,
	"book":             CategoryBooks,
	"kitchen":          CategoryKitchenware,
}

// Categories lists the closed category set in display order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// CanonicalCategory maps provider output onto the closed set. Empty input stays empty,
// unknown non-empty input becomes CategoryOther.
func CanonicalCategory(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ""
	}
	for _, c := range categories {
		if string(c) == key {
			return c
		}
	}
	if c, ok := categorySynonyms[key]; ok {
		return c
	}
	return CategoryOther
}
