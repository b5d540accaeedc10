package event

import (
	"strings"

	"golang.org/x/text/cases"
)

// Category slugs.
const (
	CategoryMusic      = "music"
	CategoryTheatre    = "theatre"
	CategoryComedy     = "comedy"
	CategoryFilm       = "film"
	CategoryVisualArts = "visual-arts"
	CategoryWorkshops  = "workshops"
	CategoryOther      = "other"
)

type categoryKeywords struct {
	category string
	keywords []string
}

// keywordTable is ordered: the first row with a matching keyword wins.
var keywordTable = []categoryKeywords{
	{CategoryMusic, []string{"music", "concert", "band", "orchestra", "jazz", "classical", "rock", "pop", "singer"}},
	{CategoryTheatre, []string{"theatre", "theater", "play", "drama", "musical", "performance", "stage"}},
	{CategoryComedy, []string{"comedy", "stand-up", "standup", "comedian", "funny", "humor"}},
	{CategoryFilm, []string{"film", "movie", "cinema", "screening", "documentary"}},
	{CategoryVisualArts, []string{"art", "exhibition", "gallery", "painting", "sculpture", "photography", "installation"}},
	{CategoryWorkshops, []string{"workshop", "class", "course", "lesson", "tutorial", "masterclass", "training"}},
}

// tagCategories maps folded tag names of the seeded vocabulary to categories.
var tagCategories = map[string]string{
	"music":       CategoryMusic,
	"theatre":     CategoryTheatre,
	"comedy":      CategoryComedy,
	"film":        CategoryFilm,
	"visual arts": CategoryVisualArts,
	"workshops":   CategoryWorkshops,
}

// Categories returns every category slug in table order, ending with "other".
func Categories() []string {
	out := make([]string, 0, len(keywordTable)+1)
	for _, row := range keywordTable {
		out = append(out, row.category)
	}
	return append(out, CategoryOther)
}

// IsCategory reports whether s is a known category slug.
func IsCategory(s string) bool {
	for _, c := range Categories() {
		if c == s {
			return true
		}
	}
	return false
}

// Categorize derives a category from free text by keyword substring matching.
func Categorize(title, description string) string {
	text := Fold(title + " " + description)
	for _, row := range keywordTable {
		for _, kw := range row.keywords {
			if strings.Contains(text, kw) {
				return row.category
			}
		}
	}
	return CategoryOther
}

// CategoryForTag maps a tag name onto a category; unknown names map to "other".
func CategoryForTag(name string) string {
	if c, ok := tagCategories[Fold(strings.TrimSpace(name))]; ok {
		return c
	}
	return CategoryOther
}

// Fold returns the case-folded form of s used for all case-insensitive matching.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// DefaultTags is the controlled tag vocabulary seeded into a fresh store.
var DefaultTags = []string{
	"Music", "Theatre", "Comedy", "Film", "Visual Arts", "Workshops",
	"Dance", "Literature", "Tech", "Food & Drink",
	"Nightlife", "Family Friendly", "Free", "Outdoor",
	"Festival", "Photography", "Crafts", "Wellness",
	"Other",
}
