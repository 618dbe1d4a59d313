package receipt

import (
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"expense-bot/internal/model"
)

var (
	linePrefixRe = regexp.MustCompile(`^\s*\d+[A-Za-z]*[-\s]+`)
	dateRe       = regexp.MustCompile(`(\d{2}\.\d{2}\.\d{4})`)
	numberJunkRe = regexp.MustCompile(`[^0-9,.\-]`)
)

// ParseHTML extracts a draft from a receipt page. now supplies the purchase
// date when the page has none.
func ParseHTML(r io.Reader, now time.Time) (model.Draft, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return model.Draft{}, errors.Wrap(err, "parse receipt html")
	}

	var company, fiscalCode, regNumber, address string
	doc.Find("p.text-gray-600").Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		upper := strings.ToUpper(text)
		switch {
		case strings.Contains(upper, "COD FISCAL"):
			fiscalCode = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "COD FISCAL:"), "COD FISCAL"))
		case strings.Contains(upper, "NUMARUL DE ÎNREGISTRARE") || strings.Contains(upper, "NUMĂRUL DE ÎNREGISTRARE"):
			regNumber = strings.TrimSpace(afterLast(text, ":"))
		case company == "" && len(text) > 5 && isCompanyName(text):
			company = text
		case strings.Contains(text, "mun.") || strings.Contains(strings.ToLower(text), "str."):
			if address == "" {
				address = text
			}
		}
	})

	type line struct{ name, value string }
	var lines []line
	doc.Find("div.flex.justify-between.items-center").Each(func(_ int, s *goquery.Selection) {
		spans := s.Find("span")
		if spans.Length() != 2 {
			return
		}
		lines = append(lines, line{
			name:  cleanText(spans.Eq(0).Text()),
			value: cleanText(spans.Eq(1).Text()),
		})
	})

	var (
		items    []model.DraftItem
		pending  *model.DraftItem
		total    float64
		currency = "MDL"
		date     string
	)
	flush := func() {
		if pending != nil {
			items = append(items, *pending)
			pending = nil
		}
	}

	for _, l := range lines {
		name := strings.TrimSpace(linePrefixRe.ReplaceAllString(l.name, ""))
		if name == "" {
			name = l.name
		}

		if strings.Contains(strings.ToLower(l.value), "x") && name != "" && !strings.HasPrefix(strings.ToUpper(name), "TVA") {
			if qty, price, ok := parseQuantityPrice(l.value); ok {
				flush()
				pending = &model.DraftItem{Name: name, Qty: model.NumberOf(qty), Price: model.NumberOf(price)}
			}
			continue
		}

		if pending != nil && name == "" && l.value != "" {
			if v, cur, ok := parseAmount(l.value); ok {
				pending.Total = model.NumberOf(v)
				if cur != "" {
					currency = cur
				}
				flush()
			}
			continue
		}

		if pending != nil && name != "" {
			flush()
		}

		if strings.EqualFold(name, "TOTAL") {
			if v, cur, ok := parseAmount(l.value); ok {
				total = v
				if cur != "" {
					currency = cur
				}
			}
		}

		if date == "" && strings.Contains(l.name, "DATA") {
			if m := dateRe.FindString(l.name); m != "" {
				if t, err := time.Parse("02.01.2006", m); err == nil {
					date = t.Format("2006-01-02")
				}
			}
		}
	}
	flush()

	if date == "" {
		date = now.Format("2006-01-02")
	}
	vendor := company
	if vendor == "" {
		vendor = "Unknown"
	}
	notes := "Bon fiscal"
	if regNumber != "" {
		notes += " " + regNumber
	}

	return model.Draft{
		Amount:             model.NumberOf(total),
		Currency:           currency,
		Vendor:             vendor,
		PurchaseDate:       date,
		Category:           guessCategory(company, items),
		Items:              items,
		Notes:              notes,
		Language:           "ro",
		Confidence:         model.NumberOf(1),
		FiscalCode:         fiscalCode,
		RegistrationNumber: regNumber,
		Address:            address,
	}, nil
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isCompanyName(text string) bool {
	return strings.Contains(text, "S.R.L.") || strings.Contains(text, "S.A.") || strings.Contains(text, "I.I.")
}

// cleanNumber parses amounts such as "1 234,50", "6.049,00" or "12.50 MDL".
// When several separators remain, the last one is the decimal point.
func cleanNumber(value string) (float64, bool) {
	cleaned := strings.NewReplacer("\u00a0", "", " ", "").Replace(value)
	cleaned = numberJunkRe.ReplaceAllString(cleaned, "")
	if cleaned == "" {
		return 0, false
	}
	if strings.Count(cleaned, ",") > 1 && !strings.Contains(cleaned, ".") {
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if strings.Count(cleaned, ".") > 1 {
		i := strings.LastIndex(cleaned, ".")
		cleaned = strings.ReplaceAll(cleaned[:i], ".", "") + cleaned[i:]
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseQuantityPrice(text string) (qty, price float64, ok bool) {
	parts := strings.Split(strings.ToLower(text), "x")
	if len(parts) != 2 {
		return 0, 0, false
	}
	qty, okQty := cleanNumber(parts[0])
	price, okPrice := cleanNumber(parts[1])
	if !okQty || !okPrice {
		return 0, 0, false
	}
	return qty, price, true
}

// parseAmount returns the amount and "MDL" when a lei marker is present.
func parseAmount(text string) (float64, string, bool) {
	if text == "" {
		return 0, "", false
	}
	upper := strings.ToUpper(strings.TrimSpace(text))
	var currency string
	if strings.Contains(upper, "MDL") || strings.Contains(upper, "LEI") || strings.HasSuffix(upper, "B") {
		currency = "MDL"
	}
	v, ok := cleanNumber(text)
	return v, currency, ok
}

var (
	foodVendors         = []string{"linella", "nr1", "fidesco", "green hills", "kaufland", "metro"}
	electronicsKeywords = []string{"garmin", "camera", "dash cam", "microsd", "electronics", "tech"}
	pharmacyKeywords    = []string{"farmacie", "pharmacy", "medicament"}
	fuelKeywords        = []string{"petrom", "lukoil", "bemol", "benzina"}
)

func guessCategory(vendor string, items []model.DraftItem) string {
	v := strings.ToLower(vendor)
	if containsAny(v, foodVendors) {
		return "Mâncare & Restaurante"
	}
	if containsAny(v, electronicsKeywords) {
		return "Electronice"
	}
	for _, it := range items {
		if containsAny(strings.ToLower(it.Name), electronicsKeywords) {
			return "Electronice"
		}
	}
	if containsAny(v, pharmacyKeywords) {
		return "Sănătate"
	}
	if containsAny(v, fuelKeywords) {
		return "Transport"
	}
	return "Cumpărături"
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
