package bot

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"expense-bot/internal/model"
	"expense-bot/internal/service"
)

const (
	btnConfirm = "✅ DA"
	btnCancel  = "❌ NU"
)

const (
	textAccessDenied        = "⛔ Nu ai acces la acest bot."
	textUnknownCommand      = "Comanda nu este suportată. Vezi /help."
	textProcessing          = "⏳ Procesez cheltuiala..."
	textProcessingPhoto     = "📸 Analizez bonul..."
	textProcessingVoice     = "🎤 Ascult mesajul..."
	textConfirmationExpired = "❌ Confirmarea a expirat. Te rog adaugă din nou cheltuiala."
	textNotYourDraft        = "⛔ Această confirmare nu îți aparține."
	textDraftCancelled      = "❌ <b>Cheltuială anulată</b>\n\nNu a fost salvată în baza de date."
	textDeleteCancelled     = "❌ Ștergere anulată."
	textCategoryNotFound    = "❌ Categorie negăsită!"
	textCallbackError       = "❌ Eroare la procesare!"
	textNoCategories        = "📂 <b>Nu ai categorii create încă</b>\n\n💡 Folosește: /add_category Nume Categorie"
	textAddCategoryUsage    = "❌ <b>Nume categorie lipsă!</b>\n\n<b>Folosește:</b> /add_category Nume Categorie\n\n<b>Exemple:</b>\n• /add_category Educație\n• /add_category Hobby"
)

const textHelp = `<b>📱 Expense Bot - Ghid de utilizare</b>

<b>🎯 Cum să adaugi cheltuieli:</b>

1️⃣ <b>Fotografie bon</b>
   Trimite o poză cu bonul fiscal sau cu codul QR

2️⃣ <b>Mesaj vocal</b>
   Spune: "Am cheltuit 50 lei pe cafea"

3️⃣ <b>Text simplu</b>
   Scrie: "Cafea 45 MDL" sau lipește linkul bonului fiscal

Fiecare cheltuială se salvează doar după ce apeși ✅ DA.

<b>📊 Comenzi:</b>
/start - Mesaj de bun venit
/categories - Vezi și șterge categorii
/add_category - Adaugă o categorie
/expenses - Ultimele cheltuieli
/stats - Statistici
/help - Acest mesaj`

func formatWelcome(name string, cats []model.Category) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👋 <b>Salut, %s!</b>\n\nSunt aici să te ajut să-ți urmărești cheltuielile.\n\n", escape(name))
	b.WriteString("<b>💡 Trimite:</b>\n📸 Poză cu bon\n🎤 Mesaj vocal\n✍️ Text simplu\n")
	if len(cats) > 0 {
		b.WriteString("\n<b>📊 Categoriile tale:</b>\n")
		for _, c := range cats {
			fmt.Fprintf(&b, "%s %s\n", c.Icon, escape(c.Name))
		}
	}
	b.WriteString("\n<b>Comenzi:</b>\n/categories - Categorii\n/expenses - Cheltuieli\n/stats - Statistici\n/help - Ajutor")
	return b.String()
}

func formatCategories(cats []model.Category) string {
	var b strings.Builder
	b.WriteString("<b>📂 Categoriile tale:</b>\n\n")
	for _, c := range cats {
		badge := ""
		if c.IsDefault {
			badge = " 🔒"
		}
		fmt.Fprintf(&b, "%s <b>%s</b>%s\n", c.Icon, escape(c.Name), badge)
	}
	fmt.Fprintf(&b, "\n<i>Total: %d categorii</i>\n\n", len(cats))
	b.WriteString("💡 <b>Acțiuni:</b>\n• /add_category Nume - Adaugă categorie nouă\n• Apasă pe categorie pentru a o șterge")
	return b.String()
}

// formatPreview renders a draft awaiting confirmation. Drafts with several
// items are shown as the separate expenses they will become.
func formatPreview(d model.Draft, now time.Time) string {
	currency := d.Currency
	if currency == "" {
		currency = "MDL"
	}
	date := displayDate(d.PurchaseDate, now)

	var b strings.Builder
	if len(d.Items) > 1 {
		fmt.Fprintf(&b, "❓ <b>Confirmi %d cheltuieli separate?</b>\n\n", len(d.Items))
		fmt.Fprintf(&b, "📅 <b>Data:</b> %s\n", date)
		fmt.Fprintf(&b, "💰 <b>Total:</b> %s %s\n\n", amountText(d.Amount), escape(currency))
		b.WriteString("<b>📝 Cheltuieli care vor fi create:</b>\n")
		for i, item := range d.Items {
			fmt.Fprintf(&b, "%d. <b>%s</b> - %s\n", i+1, escape(itemName(item)), itemAmount(item, currency))
			fmt.Fprintf(&b, "   📂 %s\n\n", escape(item.Category))
		}
		b.WriteString("⚠️ <i>Fiecare produs va fi salvat ca cheltuială separată!</i>")
		return b.String()
	}

	b.WriteString("❓ <b>Confirmi cheltuiala?</b>\n\n")
	amount := d.Amount
	if amount.IsZero() && len(d.Items) == 1 {
		amount = model.NumberOf(service.ResolvePricing(d.Items[0]).LineAmount())
	}
	fmt.Fprintf(&b, "💰 <b>Sumă:</b> %s %s", amountText(amount), escape(currency))
	if d.Vendor != "" {
		fmt.Fprintf(&b, "\n🏪 <b>Vendor:</b> %s", escape(d.Vendor))
	}
	if d.Category != "" {
		fmt.Fprintf(&b, "\n📂 <b>Categorie:</b> %s", escape(d.Category))
	}
	fmt.Fprintf(&b, "\n📅 <b>Data:</b> %s\n\n", date)

	confidence, _ := d.Confidence.Float()
	icon := "⚠️"
	if confidence > 0.8 {
		icon = "🎯"
	}
	fmt.Fprintf(&b, "%s <i>Confidence: %d%%</i>", icon, int(math.Round(confidence*100)))
	return b.String()
}

func formatSaved(m *service.Materialized) string {
	d := m.Draft
	date := m.PurchaseDate.Format("02.01.2006")
	var b strings.Builder

	if len(m.Expenses) > 1 {
		fmt.Fprintf(&b, "✅ <b>%d Cheltuieli create cu succes!</b>\n\n", len(m.Expenses))
		fmt.Fprintf(&b, "📅 <b>Data:</b> %s\n\n", date)
		b.WriteString("<b>📝 Cheltuieli salvate:</b>\n")
		for _, item := range d.Items {
			fmt.Fprintf(&b, "• %s - %s (%s)\n", escape(itemName(item)), itemAmount(item, d.Currency), escape(item.Category))
		}
		fmt.Fprintf(&b, "\n💰 <b>Total:</b> %s %s", amountText(d.Amount), escape(d.Currency))
		return b.String()
	}

	amount := "?"
	if len(m.Expenses) == 1 && m.Expenses[0].Amount.Valid {
		amount = m.Expenses[0].Amount.Decimal.StringFixed(2)
	}
	category := d.Category
	if category == "" {
		category = "N/A"
	}
	b.WriteString("✅ <b>Cheltuială confirmată și salvată!</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Sumă:</b> %s %s\n", amount, escape(d.Currency))
	fmt.Fprintf(&b, "📂 <b>Categorie:</b> %s\n", escape(category))
	fmt.Fprintf(&b, "📅 <b>Data:</b> %s", date)
	return b.String()
}

func formatIntakeError(err error) string {
	return "❌ <b>Eroare la procesare</b>\n\nNu am putut procesa cheltuiala. Te rog încearcă din nou.\n\n" +
		"<b>Exemple:</b>\n• \"Cafea 50 lei\"\n• \"Taxi 120 MDL\"\n• \"Cumpărături 200\"\n\n" +
		fmt.Sprintf("<i>Error: %s</i>", escape(err.Error()))
}

func formatSaveError(err error) string {
	return fmt.Sprintf("❌ <b>Nu am putut salva cheltuiala.</b>\n\n<i>Error: %s</i>", escape(err.Error()))
}

// itemAmount renders the line amount, with quantity and unit price when the
// item states a quantity above one.
func itemAmount(item model.DraftItem, currency string) string {
	p := service.ResolvePricing(item)
	s := fmt.Sprintf("%.2f %s", p.LineAmount(), escape(currency))
	if p.Quantity != nil && *p.Quantity > 1 && p.UnitPrice != nil {
		s += fmt.Sprintf(" <i>(%g x %.2f)</i>", *p.Quantity, *p.UnitPrice)
	}
	return s
}

func itemName(item model.DraftItem) string {
	if strings.TrimSpace(item.Name) == "" {
		return "Unknown"
	}
	return item.Name
}

func amountText(n model.Number) string {
	if v, ok := n.Float(); ok {
		return fmt.Sprintf("%.2f", v)
	}
	return "?"
}

func displayDate(raw string, now time.Time) string {
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(raw)); err == nil {
		return t.Format("02.01.2006")
	}
	return now.Format("02.01.2006")
}

func escape(s string) string {
	return html.EscapeString(s)
}
