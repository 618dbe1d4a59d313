package service

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"expense-bot/internal/model"
)

const uncategorized = "Necategorizat"

var sourceIcons = map[model.Source]string{
	model.SourcePhoto:  "📸",
	model.SourceVoice:  "🎤",
	model.SourceManual: "✍️",
}

// StatsService builds the HTML reports shown in the chat.
type StatsService struct {
	expenses *ExpenseService
	currency string
}

func NewStatsService(expenses *ExpenseService, currency string) *StatsService {
	if currency == "" {
		currency = "MDL"
	}
	return &StatsService{expenses: expenses, currency: currency}
}

// Summary reports totals in the default currency, the current week and
// month, a daily average since the first expense, the top categories and the
// latest expenses. Expenses without an amount are ignored.
func (s *StatsService) Summary(ctx context.Context, userID uint, now time.Time) (string, error) {
	all, err := s.expenses.All(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "📊 Nu ai cheltuieli înregistrate încă!", nil
	}

	var valid []ExpenseView
	for _, e := range all {
		if e.Amount != nil {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return "📊 Nu ai cheltuieli valide înregistrate!", nil
	}

	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	monthStart := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	var (
		total, weekTotal, monthTotal float64
		weekCount, monthCount        int
		oldest                       = now
		byCategory                   = make(map[string]float64)
	)
	for _, e := range valid {
		if e.CreatedAt.Before(oldest) {
			oldest = e.CreatedAt
		}
		if !e.CreatedAt.Before(weekStart) {
			weekCount++
		}
		if !e.CreatedAt.Before(monthStart) {
			monthCount++
		}
		if e.Currency != s.currency {
			continue
		}
		amount := *e.Amount
		total += amount
		if !e.CreatedAt.Before(weekStart) {
			weekTotal += amount
		}
		if !e.CreatedAt.Before(monthStart) {
			monthTotal += amount
		}
		name := e.Details.Category
		if name == "" {
			name = uncategorized
		}
		byCategory[name] += amount
	}
	days := int(now.Sub(oldest).Hours()/24) + 1
	dailyAvg := total / float64(days)

	type categoryTotal struct {
		name  string
		total float64
	}
	ranked := make([]categoryTotal, 0, len(byCategory))
	for name, t := range byCategory {
		ranked = append(ranked, categoryTotal{name, t})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].total == ranked[j].total {
			return ranked[i].name < ranked[j].name
		}
		return ranked[i].total > ranked[j].total
	})

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].CreatedAt.After(valid[j].CreatedAt) })

	var b strings.Builder
	b.WriteString("📊 <b>Statistici Detaliate</b>\n\n")
	b.WriteString("💰 <b>REZUMAT:</b>\n")
	fmt.Fprintf(&b, "   Total: %.2f %s (%d cheltuieli)\n", total, s.currency, len(valid))
	fmt.Fprintf(&b, "   Medie/zi: %.2f %s\n\n", dailyAvg, s.currency)
	b.WriteString("📅 <b>PERIOADA:</b>\n")
	fmt.Fprintf(&b, "   Săptămâna: %.2f %s (%d chelt.)\n", weekTotal, s.currency, weekCount)
	fmt.Fprintf(&b, "   Luna: %.2f %s (%d chelt.)\n\n", monthTotal, s.currency, monthCount)
	b.WriteString("📂 <b>PE CATEGORII:</b>\n")
	for i, c := range ranked {
		if i == 5 {
			break
		}
		pct := 0.0
		if total > 0 {
			pct = c.total / total * 100
		}
		fmt.Fprintf(&b, "   • %s: %.0f %s (%.0f%%)\n", html.EscapeString(c.name), c.total, s.currency, pct)
	}
	b.WriteString("\n📝 <b>ULTIMELE 5 CHELTUIELI:</b>\n")
	for i, e := range valid {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "  • %s: %.0f %s%s\n", e.CreatedAt.In(now.Location()).Format("02.01"), *e.Amount, e.Currency, vendorSuffix(e.Vendor, 15))
	}
	fmt.Fprintf(&b, "\n<i>Actualizat: %s</i>", now.Format("02.01.2006 15:04"))

	return b.String(), nil
}

// RecentList renders the last ten expenses with a total in the default
// currency.
func (s *StatsService) RecentList(ctx context.Context, userID uint) (string, error) {
	recent, err := s.expenses.Recent(ctx, userID, 10)
	if err != nil {
		return "", err
	}
	if len(recent) == 0 {
		return "📊 <b>Nu ai cheltuieli înregistrate încă</b>\n\nTrimite-mi:\n📸 O poză cu bonul\n🎤 Un mesaj vocal\n✍️ Sau scrie direct suma", nil
	}

	var b strings.Builder
	b.WriteString("<b>📊 Ultimele 10 cheltuieli:</b>\n\n")
	total := 0.0
	for _, e := range recent {
		if e.Amount == nil {
			continue
		}
		date := "N/A"
		if e.PurchaseDate != "" {
			if t, err := time.Parse("2006-01-02", e.PurchaseDate); err == nil {
				date = t.Format("02.01.2006")
			}
		}
		icon, ok := sourceIcons[e.Source]
		if !ok {
			icon = "📝"
		}
		fmt.Fprintf(&b, "%s <b>%.2f %s</b>%s\n", icon, *e.Amount, e.Currency, vendorSuffix(e.Vendor, 0))
		fmt.Fprintf(&b, "   📅 %s\n\n", date)
		if e.Currency == s.currency {
			total += *e.Amount
		}
	}
	if total > 0 {
		fmt.Fprintf(&b, "<b>💰 Total (%s): %.2f</b>", s.currency, total)
	}
	return strings.TrimSpace(b.String()), nil
}

// vendorSuffix renders " - vendor", cut to limit runes when limit > 0.
func vendorSuffix(vendor string, limit int) string {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		return ""
	}
	if r := []rune(vendor); limit > 0 && len(r) > limit {
		vendor = string(r[:limit])
	}
	return " - " + html.EscapeString(vendor)
}
