package service

import (
	"strings"

	"expense-bot/internal/model"
)

// categoryKeywords maps default category names to product and service words
// commonly found on Moldovan receipts.
var categoryKeywords = map[string][]string{
	"Mâncare & Restaurante": {
		"lapte", "pui", "carne", "banan", "morcov", "ceapa", "ulei", "oua", "iaurt",
		"smantana", "fruct", "legum", "cafea", "paine", "covrig", "branza", "lavas",
		"drojdie", "cartofi", "pere", "mere", "dorada", "usturoi", "radacina",
		"patrunjel", "marar", "cotlet", "bors", "apio", "piept", "smântână",
		"covrigei", "petrunjel", "chifla", "gambe", "crema", "frisca", "laptele",
		"salată", "legume", "bautura", "băutură", "suc", "restaurant", "pizza",
	},
	"Cumpărături": {
		"detergent", "sapun", "servetel", "hartie", "plastic", "baterie", "cosmet",
		"covor", "electronic", "lamp", "articol casnic", "sacosa", "odorizant",
	},
	"Sănătate": {
		"vitamin", "farmacie", "medical", "pastila", "supliment", "medicament",
	},
	"Utilități & Locuință": {
		"factura", "energie", "gaz", "apa", "electric", "chir", "intretinere",
	},
	"Transport": {
		"benzina", "diesel", "taxi", "uber", "transport", "autobuz", "masina", "motorina",
	},
	"Distracție & Timp liber": {
		"cinema", "joc", "spectacol", "bilete", "cadou", "hobby", "concert",
	},
}

// keywordOrder fixes lookup order so results do not depend on map iteration.
var keywordOrder = []string{
	"Mâncare & Restaurante",
	"Cumpărături",
	"Sănătate",
	"Utilități & Locuință",
	"Transport",
	"Distracție & Timp liber",
}

// NormalizeCategory maps a free-form category onto one of known.
//
// Resolution order: exact match, case-insensitive substring in either
// direction, keyword table over hint and candidate, the fallback category,
// the first known category. With no known categories the candidate itself
// (or the fallback name) is returned.
func NormalizeCategory(candidate, hint string, known []string) string {
	if len(known) == 0 {
		if candidate != "" {
			return candidate
		}
		return model.FallbackCategory
	}

	for _, name := range known {
		if name == candidate {
			return candidate
		}
	}

	lower := strings.ToLower(strings.TrimSpace(candidate))
	if lower != "" {
		for _, name := range known {
			kn := strings.ToLower(name)
			if strings.Contains(kn, lower) || strings.Contains(lower, kn) {
				return name
			}
		}
	}

	if name, ok := keywordCategory(hint+" "+candidate, known); ok {
		return name
	}

	for _, name := range known {
		if strings.EqualFold(name, model.FallbackCategory) {
			return name
		}
	}
	return known[0]
}

// ApplyCategoryMapping rewrites the draft's top-level and per-item categories
// in place so that each names an entry of known.
func ApplyCategoryMapping(d *model.Draft, known []string) {
	d.Category = NormalizeCategory(d.Category, d.Notes+" "+d.Vendor, known)
	for i := range d.Items {
		d.Items[i].Category = NormalizeCategory(d.Items[i].Category, d.Items[i].Name, known)
	}
}

func keywordCategory(text string, known []string) (string, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}
	for _, target := range keywordOrder {
		if !containsName(known, target) {
			continue
		}
		for _, kw := range categoryKeywords[target] {
			if strings.Contains(text, kw) {
				return target, true
			}
		}
	}
	return "", false
}

func containsName(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
