package service

import "strings"

type iconTheme struct {
	keywords []string
	icons    []string
}

var iconThemes = []iconTheme{
	{[]string{"mancare", "food", "restaurant", "cafea", "coffee", "bautura", "drink", "alimente"}, []string{"🍕", "🍔", "🍟", "🌮", "🍜", "🥗", "☕", "🍺", "🍷", "🥤"}},
	{[]string{"transport", "masina", "car", "taxi", "autobuz", "benzina", "fuel", "parking"}, []string{"🚗", "🚕", "🚌", "🚙", "⛽", "🅿️"}},
	{[]string{"cumparaturi", "shopping", "haine", "clothes", "magazin", "store"}, []string{"🛍️", "👕", "👗", "👠", "👜", "🧥"}},
	{[]string{"sanatate", "health", "doctor", "farmacie", "pharmacy", "spital"}, []string{"💊", "🏥", "💉", "🩺", "🩹", "🦷"}},
	{[]string{"educatie", "education", "scoala", "school", "curs", "course"}, []string{"📚", "📖", "✏️", "🎓", "🏫"}},
	{[]string{"distractie", "hobby", "film", "cinema", "muzica", "music", "joc", "game"}, []string{"🎮", "🎬", "🎵", "🎸", "🎭", "🎲"}},
	{[]string{"sport", "fitness", "gym", "sala", "fotbal", "football"}, []string{"⚽", "🏀", "🎾", "🏋️", "🚴", "🏊"}},
	{[]string{"casa", "home", "chirie", "rent", "utilitati", "electric", "apa", "gaz"}, []string{"🏠", "🏡", "🔑", "🛋️", "💡", "🔌"}},
	{[]string{"familie", "family", "copii", "kids", "baby", "bebelus"}, []string{"👪", "👶", "🧒", "💑"}},
	{[]string{"cadouri", "gifts", "prezent", "aniversare", "birthday"}, []string{"🎁", "🎀", "🎉", "🎂", "💐"}},
	{[]string{"animale", "pets", "caine", "dog", "pisica", "cat", "vet"}, []string{"🐾", "🐕", "🐈", "🐇"}},
	{[]string{"vacanta", "travel", "calatorie", "zbor", "flight", "hotel"}, []string{"✈️", "🏖️", "🗺️", "🧳", "🏨"}},
	{[]string{"tehnologie", "tech", "laptop", "telefon", "phone", "software", "server"}, []string{"💻", "🖥️", "📱", "⌨️", "🖨️"}},
	{[]string{"frumusete", "beauty", "cosmetica", "salon", "hair", "makeup"}, []string{"💄", "💅", "💇", "🧴", "✂️"}},
	{[]string{"banca", "bank", "finance", "investitie", "asigurare", "insurance"}, []string{"💰", "💳", "💸", "🏦", "📈"}},
	{[]string{"munca", "work", "birou", "office", "business", "afacere"}, []string{"💼", "📋", "📁", "📌", "📎"}},
}

var genericIcons = []string{"📁", "📦", "🔖", "🏷️", "⭐", "🔵", "🟢", "🟡", "🟠", "🟣"}

// pickIcon prefers an unused icon from themes whose keywords appear in name,
// then any unused themed icon, then a generic one.
func pickIcon(name string, used map[string]bool) string {
	lower := strings.ToLower(name)
	for _, t := range iconThemes {
		if !containsAnyKeyword(lower, t.keywords) {
			continue
		}
		for _, icon := range t.icons {
			if !used[icon] {
				return icon
			}
		}
	}
	for _, t := range iconThemes {
		for _, icon := range t.icons {
			if !used[icon] {
				return icon
			}
		}
	}
	for _, icon := range genericIcons {
		if !used[icon] {
			return icon
		}
	}
	return genericIcons[0]
}

func containsAnyKeyword(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
