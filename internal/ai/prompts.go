package ai

import (
	"fmt"
	"strings"
)

const defaultCategoryList = "Mâncare & Restaurante, Transport, Cumpărături, Distracție & Timp liber, Utilități & Locuință, Sănătate, Alte cheltuieli"

const categoryGuidance = `Folosește DOAR aceste categorii exacte și alege-o pe cea mai apropiată pentru fiecare produs.
- Mâncare & Restaurante: alimente, băuturi, ingrediente, restaurante, supermarketuri
- Cumpărături: produse casnice, igienă, cosmetice, electronice mici, consumabile
- Sănătate: medicamente, farmacie, vitamine, suplimente
- Utilități & Locuință: facturi, energie, gaz, apă, chirie
- Transport: combustibil, taxi, transport public, piese auto
- Distracție & Timp liber: evenimente, jocuri, hobby, bilete, cadouri
- Alte cheltuieli: doar dacă nu există o potrivire bună în lista de mai sus`

const draftSchema = `{
  "amount": număr total,
  "currency": "MDL" (sau moneda găsită),
  "vendor": "string",
  "purchase_date": "YYYY-MM-DD" (default azi),
  "category": "<una din categoriile definite>",
  "items": [
     {
        "name": "produs",
        "qty": număr,
        "price": număr,
        "category": "<una din categoriile definite>"
     }
  ],
  "notes": "text",
  "language": "ro",
  "confidence": 0.x
}`

const photoPrompt = `Analyze this receipt image and extract expense information.
Return a JSON object with: amount (number), currency (string),
vendor (string), purchase_date (YYYY-MM-DD), category (string),
items (array of {name, qty, price}), notes (string),
language (string), confidence (0-1 float).
If information is unclear, use your best judgment and reflect that in the confidence score.
Return only the JSON object.`

const suggestSystemPrompt = "You help users define expense categories for a budgeting dashboard."

func textSystemPrompt(categories []string) string {
	list := defaultCategoryList
	if len(categories) > 0 {
		list = strings.Join(categories, ", ")
	}
	return fmt.Sprintf(`Ești un asistent financiar. Extrage cheltuieli și întoarce DOAR JSON valid.

Categorii disponibile: %s

%s

Structură JSON obligatorie:
%s

Reguli stricte:
- fiecare items[i].category trebuie să fie exact una dintre categoriile enumerate;
- nu inventa alte denumiri, nu traduce în altă limbă;
- dacă produsul este alimentar, folosește Mâncare & Restaurante etc.;
- dacă nu există potrivire decentă, folosește 'Alte cheltuieli';
- răspunde doar în limba română.`, list, categoryGuidance, draftSchema)
}

func suggestUserPrompt(description string) string {
	return fmt.Sprintf("Return ONLY valid JSON with keys: name, icon, color. "+
		"Name must be written in Romanian and limited to maximum 3 words. "+
		"Icon must be a single emoji. "+
		"Color must be one of these hex codes (choose the closest match): %s. "+
		"If none match well, choose the closest visually pleasing hex from the list. "+
		"Do NOT wrap the JSON in markdown, just raw JSON.\n\nDescription: %s",
		strings.Join(Palette, ", "), description)
}
