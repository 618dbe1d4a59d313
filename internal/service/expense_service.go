package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expense-bot/internal/cryptox"
	"expense-bot/internal/metrics"
	"expense-bot/internal/model"
	"expense-bot/internal/repository"
)

// defaultItemConfidence is recorded on split line items whose draft carried
// no confidence.
const defaultItemConfidence = 0.8

// ExpenseView is an expense with its encrypted fields opened.
type ExpenseView struct {
	ID                 uint         `json:"id"`
	Source             model.Source `json:"source"`
	Amount             *float64     `json:"amount"`
	Currency           string       `json:"currency"`
	Vendor             string       `json:"vendor"`
	CategoryID         *uint        `json:"category_id"`
	Category           string       `json:"category"`
	PurchaseDate       string       `json:"purchase_date,omitempty"`
	FiscalCode         *string      `json:"vendor_fiscal_code,omitempty"`
	RegistrationNumber *string      `json:"vendor_registration_number,omitempty"`
	Address            *string      `json:"vendor_address,omitempty"`
	AIConfidence       *float64     `json:"ai_confidence,omitempty"`
	Details            model.Draft  `json:"parsed_data"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// ListQuery is a repository filter plus a free-text vendor search.
type ListQuery struct {
	repository.ExpenseFilter
	Search string
}

// ExpenseUpdate carries the editable fields; nil means unchanged. Items
// replace the stored line items.
type ExpenseUpdate struct {
	Amount       *float64
	Currency     *string
	Vendor       *string
	PurchaseDate *string
	CategoryID   *uint
	Notes        *string
	Items        []model.DraftItem
}

// Materialized describes what a confirmed draft turned into.
type Materialized struct {
	Expenses     []model.Expense
	Draft        model.Draft
	PurchaseDate time.Time
}

// ExpenseService persists drafts and serves decrypted expenses.
type ExpenseService struct {
	expenses   *repository.ExpenseRepository
	categories *repository.CategoryRepository
	cipher     *cryptox.Cipher
	currency   string
	now        func() time.Time
}

func NewExpenseService(expenses *repository.ExpenseRepository, categories *repository.CategoryRepository, cipher *cryptox.Cipher, defaultCurrency string) *ExpenseService {
	if defaultCurrency == "" {
		defaultCurrency = "MDL"
	}
	return &ExpenseService{
		expenses:   expenses,
		categories: categories,
		cipher:     cipher,
		currency:   defaultCurrency,
		now:        time.Now,
	}
}

// Materialize turns a confirmed draft into stored expenses. A draft with more
// than one line item yields one expense per item; otherwise a single expense
// is created from the top-level fields. All rows are written atomically.
func (s *ExpenseService) Materialize(ctx context.Context, userID uint, draft model.Draft, source model.Source) (*Materialized, error) {
	if !source.Valid() {
		return nil, fmt.Errorf("%w: source %q", ErrInvalidInput, source)
	}
	cats, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if draft.CategoryID != nil {
		for _, c := range cats {
			if c.ID == *draft.CategoryID {
				draft.Category = c.Name
				break
			}
		}
	}
	ApplyCategoryMapping(&draft, model.CategoryNames(cats))

	date := s.parseDate(draft.PurchaseDate)
	currency := draft.Currency
	if currency == "" {
		currency = s.currency
	}
	draft.Currency = currency
	fiscalCode, regNumber, address := optional(draft.FiscalCode), optional(draft.RegistrationNumber), optional(draft.Address)

	var expenses []model.Expense
	if len(draft.Items) > 1 {
		confidence := draft.Confidence
		if confidence.IsZero() {
			confidence = model.NumberOf(defaultItemConfidence)
		}
		for _, item := range draft.Items {
			lineAmount := ResolvePricing(item).LineAmount()
			name := item.Name
			if name == "" {
				name = "Unknown"
			}
			normalized := NormalizedItem(item)

			payload := model.Draft{
				Amount:             model.NumberOf(lineAmount),
				Currency:           currency,
				Vendor:             name,
				Category:           item.Category,
				Items:              []model.DraftItem{normalized},
				PurchaseDate:       date.Format("2006-01-02"),
				Confidence:         confidence,
				FiscalCode:         draft.FiscalCode,
				RegistrationNumber: draft.RegistrationNumber,
				Address:            draft.Address,
			}
			e, err := s.newExpense(userID, source, payload, lineAmountDecimal(lineAmount), cats, date)
			if err != nil {
				return nil, err
			}
			e.AIConfidence = draft.Confidence.Ptr()
			e.VendorFiscalCode, e.VendorRegistrationNumber, e.VendorAddress = fiscalCode, regNumber, address
			expenses = append(expenses, *e)
		}
	} else {
		amount := decimal.NullDecimal{}
		if v, ok := draft.Amount.Float(); ok {
			amount = lineAmountDecimal(v)
		} else if len(draft.Items) == 1 {
			amount = lineAmountDecimal(ResolvePricing(draft.Items[0]).LineAmount())
		}
		e, err := s.newExpense(userID, source, draft, amount, cats, date)
		if err != nil {
			return nil, err
		}
		e.AIConfidence = draft.Confidence.Ptr()
		e.VendorFiscalCode, e.VendorRegistrationNumber, e.VendorAddress = fiscalCode, regNumber, address
		expenses = append(expenses, *e)
	}

	if err := s.expenses.CreateBatch(ctx, expenses); err != nil {
		return nil, err
	}
	metrics.ExpensesCreated.WithLabelValues(string(source)).Add(float64(len(expenses)))

	return &Materialized{Expenses: expenses, Draft: draft, PurchaseDate: date}, nil
}

func (s *ExpenseService) newExpense(userID uint, source model.Source, payload model.Draft, amount decimal.NullDecimal, cats []model.Category, date time.Time) (*model.Expense, error) {
	vendor := ""
	if payload.Vendor != "" {
		enc, err := s.cipher.EncryptString(payload.Vendor)
		if err != nil {
			return nil, fmt.Errorf("encrypt vendor: %w", err)
		}
		vendor = enc
	}
	data, err := s.cipher.EncryptJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	d := date
	return &model.Expense{
		UserID:       userID,
		CategoryID:   categoryIDByName(cats, payload.Category),
		Source:       source,
		Amount:       amount,
		Currency:     payload.Currency,
		Vendor:       vendor,
		PurchaseDate: &d,
		Payload:      data,
	}, nil
}

// parseDate reads YYYY-MM-DD and falls back to today.
func (s *ExpenseService) parseDate(raw string) time.Time {
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(raw)); err == nil {
		return t
	}
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *ExpenseService) Get(ctx context.Context, userID, id uint) (*ExpenseView, error) {
	e, err := s.expenses.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translate(err)
	}
	names, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := s.view(*e, names)
	return &v, nil
}

// List returns a page of expenses and the number of matches. Vendor search
// and vendor ordering need plaintext, so those queries are filtered, sorted
// and paginated after decryption.
func (s *ExpenseService) List(ctx context.Context, userID uint, q ListQuery) ([]ExpenseView, int64, error) {
	names, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	if search == "" && q.SortBy != "vendor" {
		rows, total, err := s.expenses.List(ctx, userID, q.ExpenseFilter)
		if err != nil {
			return nil, 0, err
		}
		return s.views(rows, names), total, nil
	}

	f := q.ExpenseFilter
	f.Offset, f.Limit = 0, 0
	rows, _, err := s.expenses.List(ctx, userID, f)
	if err != nil {
		return nil, 0, err
	}
	all := s.views(rows, names)
	if search != "" {
		filtered := all[:0]
		for _, v := range all {
			if strings.Contains(strings.ToLower(v.Vendor), search) || strings.Contains(strings.ToLower(v.Details.Notes), search) {
				filtered = append(filtered, v)
			}
		}
		all = filtered
	}
	if q.SortBy == "vendor" {
		asc := strings.EqualFold(q.Order, "asc")
		sort.SliceStable(all, func(i, j int) bool {
			a, b := strings.ToLower(all[i].Vendor), strings.ToLower(all[j].Vendor)
			if asc {
				return a < b
			}
			return a > b
		})
	}

	total := int64(len(all))
	start := min(max(q.Offset, 0), len(all))
	end := len(all)
	if q.Limit > 0 {
		end = min(start+q.Limit, len(all))
	}
	return all[start:end], total, nil
}

func (s *ExpenseService) Recent(ctx context.Context, userID uint, n int) ([]ExpenseView, error) {
	rows, err := s.expenses.Recent(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	names, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(rows, names), nil
}

// All returns every expense of the user, decrypted.
func (s *ExpenseService) All(ctx context.Context, userID uint) ([]ExpenseView, error) {
	rows, err := s.expenses.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	names, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.views(rows, names), nil
}

func (s *ExpenseService) Update(ctx context.Context, userID, id uint, upd ExpenseUpdate) (*ExpenseView, error) {
	e, err := s.expenses.FindByID(ctx, userID, id)
	if err != nil {
		return nil, translate(err)
	}

	var payload model.Draft
	if err := s.cipher.DecryptJSON(e.Payload, &payload); err != nil {
		payload = model.Draft{}
	}

	if upd.Amount != nil {
		e.Amount = lineAmountDecimal(*upd.Amount)
		payload.Amount = model.NumberOf(*upd.Amount)
	}
	if upd.Currency != nil {
		e.Currency = *upd.Currency
		payload.Currency = *upd.Currency
	}
	if upd.Vendor != nil {
		enc, err := s.cipher.EncryptString(*upd.Vendor)
		if err != nil {
			return nil, fmt.Errorf("encrypt vendor: %w", err)
		}
		e.Vendor = enc
		payload.Vendor = *upd.Vendor
	}
	if upd.PurchaseDate != nil {
		t, err := time.Parse("2006-01-02", *upd.PurchaseDate)
		if err != nil {
			return nil, fmt.Errorf("%w: purchase_date must be YYYY-MM-DD", ErrInvalidInput)
		}
		e.PurchaseDate = &t
		payload.PurchaseDate = *upd.PurchaseDate
	}
	if upd.CategoryID != nil {
		cat, err := s.categories.GetByID(ctx, userID, *upd.CategoryID)
		if err != nil {
			if errors.Is(translate(err), ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown category %d", ErrInvalidInput, *upd.CategoryID)
			}
			return nil, err
		}
		e.CategoryID = &cat.ID
		payload.Category = cat.Name
	}
	if upd.Notes != nil {
		payload.Notes = *upd.Notes
	}
	if upd.Items != nil {
		payload.Items = make([]model.DraftItem, 0, len(upd.Items))
		for _, item := range upd.Items {
			payload.Items = append(payload.Items, NormalizedItem(item))
		}
	}

	data, err := s.cipher.EncryptJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("encrypt payload: %w", err)
	}
	e.Payload = data
	if err := s.expenses.Save(ctx, e); err != nil {
		return nil, err
	}

	names, err := s.categoryNames(ctx, userID)
	if err != nil {
		return nil, err
	}
	v := s.view(*e, names)
	return &v, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id uint) error {
	return translate(s.expenses.Delete(ctx, userID, id))
}

var csvHeader = []string{"Date", "Vendor", "Amount", "Currency", "Category", "Source", "Notes", "AI Confidence"}

// ExportCSV writes every expense matching q, ignoring pagination.
func (s *ExpenseService) ExportCSV(ctx context.Context, userID uint, q ListQuery, w io.Writer) error {
	q.Offset, q.Limit = 0, 0
	rows, _, err := s.List(ctx, userID, q)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, v := range rows {
		amount, confidence := "", ""
		if v.Amount != nil {
			amount = fmt.Sprintf("%.2f", *v.Amount)
		}
		if v.AIConfidence != nil {
			confidence = fmt.Sprintf("%.2f", *v.AIConfidence)
		}
		record := []string{v.PurchaseDate, v.Vendor, amount, v.Currency, v.Category, string(v.Source), v.Details.Notes, confidence}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *ExpenseService) categoryNames(ctx context.Context, userID uint) (map[uint]string, error) {
	cats, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	names := make(map[uint]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names, nil
}

func (s *ExpenseService) views(rows []model.Expense, names map[uint]string) []ExpenseView {
	out := make([]ExpenseView, 0, len(rows))
	for _, e := range rows {
		out = append(out, s.view(e, names))
	}
	return out
}

// view opens the encrypted fields. A record that does not decrypt is shown
// with empty vendor and details rather than failing the whole read.
func (s *ExpenseService) view(e model.Expense, names map[uint]string) ExpenseView {
	v := ExpenseView{
		ID:                 e.ID,
		Source:             e.Source,
		Currency:           e.Currency,
		CategoryID:         e.CategoryID,
		FiscalCode:         e.VendorFiscalCode,
		RegistrationNumber: e.VendorRegistrationNumber,
		Address:            e.VendorAddress,
		AIConfidence:       e.AIConfidence,
		CreatedAt:          e.CreatedAt,
		UpdatedAt:          e.UpdatedAt,
	}
	if e.Amount.Valid {
		f, _ := e.Amount.Decimal.Float64()
		v.Amount = &f
	}
	if e.PurchaseDate != nil {
		v.PurchaseDate = e.PurchaseDate.Format("2006-01-02")
	}
	if vendor, err := s.cipher.DecryptString(e.Vendor); err == nil {
		v.Vendor = vendor
	}
	var details model.Draft
	if err := s.cipher.DecryptJSON(e.Payload, &details); err == nil {
		v.Details = details
	}
	if e.CategoryID != nil {
		v.Category = names[*e.CategoryID]
	}
	if v.Category == "" {
		v.Category = v.Details.Category
	}
	return v
}

func categoryIDByName(cats []model.Category, name string) *uint {
	for _, c := range cats {
		if c.Name == name {
			id := c.ID
			return &id
		}
	}
	return nil
}

func lineAmountDecimal(v float64) decimal.NullDecimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(v).Round(2))
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
