package service

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-bot/internal/model"
	"expense-bot/internal/repository"
)

func receiptDraft() model.Draft {
	return model.Draft{
		Amount:       model.NumberOf(40),
		Currency:     "MDL",
		Vendor:       "Linella",
		PurchaseDate: "2024-11-09",
		FiscalCode:   "1003600012345",
		Address:      "str. Ismail 1",
		Items: []model.DraftItem{
			{Name: "Lapte 2.5%", Qty: model.NumberOf(2), Price: model.NumberOf(10)},
			{Name: "Benzina", Total: model.NumberOf(15)},
			{Name: "Detergent", Price: model.NumberFromString("5,00")},
		},
	}
}

func TestMaterializeSplitsItems(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	m, err := env.expenseSvc.Materialize(ctx, user.ID, receiptDraft(), model.SourcePhoto)
	require.NoError(t, err)
	require.Len(t, m.Expenses, 3)

	views, err := env.expenseSvc.All(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)

	sum := 0.0
	byVendor := make(map[string]ExpenseView)
	for _, v := range views {
		require.NotNil(t, v.Amount)
		sum += *v.Amount
		byVendor[v.Vendor] = v
		assert.Equal(t, "2024-11-09", v.PurchaseDate)
		assert.Equal(t, model.SourcePhoto, v.Source)
		require.NotNil(t, v.FiscalCode)
		assert.Equal(t, "1003600012345", *v.FiscalCode)
		assert.Nil(t, v.RegistrationNumber)
		assert.NotNil(t, v.CategoryID)
		require.Len(t, v.Details.Items, 1)
		assert.Equal(t, v.Vendor, v.Details.Items[0].Name)
	}
	assert.InDelta(t, 40.0, sum, 0.001)

	assert.Equal(t, "Mâncare & Restaurante", byVendor["Lapte 2.5%"].Category)
	assert.Equal(t, "Transport", byVendor["Benzina"].Category)
	assert.Equal(t, "Cumpărături", byVendor["Detergent"].Category)

	milk := byVendor["Lapte 2.5%"].Details.Items[0]
	qty, _ := milk.Qty.Float()
	total, _ := milk.Total.Float()
	assert.Equal(t, 2.0, qty)
	assert.Equal(t, 20.0, total)
}

func TestMaterializeNonFiniteNumbers(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	var draft model.Draft
	require.NoError(t, json.Unmarshal([]byte(`{"amount":"NaN","vendor":"Kiosk"}`), &draft))
	require.NotPanics(t, func() {
		_, err := env.expenseSvc.Materialize(ctx, user.ID, draft, model.SourceManual)
		require.NoError(t, err)
	})

	split := model.Draft{Items: []model.DraftItem{
		{Name: "Paine", Price: model.NumberFromString("Inf")},
		{Name: "Apa", Total: model.NumberFromString("-Inf"), Price: model.NumberOf(7)},
	}}
	require.NotPanics(t, func() {
		_, err := env.expenseSvc.Materialize(ctx, user.ID, split, model.SourceManual)
		require.NoError(t, err)
	})

	views, err := env.expenseSvc.All(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	byVendor := make(map[string]ExpenseView)
	for _, v := range views {
		byVendor[v.Vendor] = v
	}
	assert.Nil(t, byVendor["Kiosk"].Amount)
	require.NotNil(t, byVendor["Paine"].Amount)
	assert.Equal(t, 0.0, *byVendor["Paine"].Amount)
	require.NotNil(t, byVendor["Apa"].Amount)
	assert.Equal(t, 7.0, *byVendor["Apa"].Amount)
}

func TestMaterializeEncryptsSensitiveFields(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(12), Vendor: "Tucano Coffee"})

	rows, err := env.expenses.ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.NotContains(t, rows[0].Vendor, "Tucano")
	assert.NotContains(t, rows[0].Payload, "Tucano")
	assert.Equal(t, "MDL", rows[0].Currency)

	vendor, err := env.cipher.DecryptString(rows[0].Vendor)
	require.NoError(t, err)
	assert.Equal(t, "Tucano Coffee", vendor)
}

func TestMaterializeSingleItemUsesLineAmount(t *testing.T) {
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	rows := env.addExpense(t, user.ID, model.Draft{
		Items: []model.DraftItem{{Name: "Cafea", Qty: model.NumberOf(3), Price: model.NumberOf(2.5)}},
	})
	require.Len(t, rows, 1)
	f, _ := rows[0].Amount.Decimal.Float64()
	assert.True(t, rows[0].Amount.Valid)
	assert.Equal(t, 7.5, f)
}

func TestMaterializeBadDateFallsBackToToday(t *testing.T) {
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	env.expenseSvc.now = func() time.Time { return time.Date(2025, 3, 14, 18, 30, 0, 0, time.UTC) }

	rows := env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(5), PurchaseDate: "14/03/2025"})
	require.NotNil(t, rows[0].PurchaseDate)
	assert.Equal(t, "2025-03-14", rows[0].PurchaseDate.Format("2006-01-02"))
}

func TestMaterializeUnknownCategoryKeepsPayloadName(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.bareUser(t)

	rows := env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(99), Category: "Gadgets"})
	assert.Nil(t, rows[0].CategoryID)

	v, err := env.expenseSvc.Get(ctx, user.ID, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Gadgets", v.Category)
}

func TestMaterializeRejectsUnknownSource(t *testing.T) {
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	_, err := env.expenseSvc.Materialize(context.Background(), user.ID, model.Draft{}, model.Source("fax"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListSearchFiltersBeforePaging(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	for i, vendor := range []string{"Linella Botanica", "Nr1", "Linella Centru", "Kaufland", "linella Riscani"} {
		env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(float64(i + 1)), Vendor: vendor})
	}

	page, total, err := env.expenseSvc.List(ctx, user.ID, ListQuery{
		ExpenseFilter: repository.ExpenseFilter{SortBy: "vendor", Order: "asc", Limit: 2},
		Search:        "LINELLA",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "Linella Botanica", page[0].Vendor)
	assert.Equal(t, "Linella Centru", page[1].Vendor)

	page, total, err = env.expenseSvc.List(ctx, user.ID, ListQuery{
		ExpenseFilter: repository.ExpenseFilter{SortBy: "vendor", Order: "asc", Offset: 2, Limit: 2},
		Search:        "linella",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "linella Riscani", page[0].Vendor)

	page, total, err = env.expenseSvc.List(ctx, user.ID, ListQuery{
		ExpenseFilter: repository.ExpenseFilter{SortBy: "amount", Order: "desc", Limit: 2},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	require.Len(t, page, 2)
	assert.Equal(t, 5.0, *page[0].Amount)
}

func TestUpdateExpense(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	rows := env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(10), Vendor: "Old"})
	transport := env.category(t, user.ID, "Transport")

	amount, vendor, notes, date := 12.5, "Bolt", "airport", "2025-01-02"
	v, err := env.expenseSvc.Update(ctx, user.ID, rows[0].ID, ExpenseUpdate{
		Amount:       &amount,
		Vendor:       &vendor,
		Notes:        &notes,
		PurchaseDate: &date,
		CategoryID:   &transport.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 12.5, *v.Amount)
	assert.Equal(t, "Bolt", v.Vendor)
	assert.Equal(t, "Transport", v.Category)
	assert.Equal(t, "Transport", v.Details.Category)
	assert.Equal(t, "airport", v.Details.Notes)
	assert.Equal(t, "2025-01-02", v.PurchaseDate)

	v, err = env.expenseSvc.Update(ctx, user.ID, rows[0].ID, ExpenseUpdate{
		Items: []model.DraftItem{{Name: "Taxi aeroport", Qty: model.NumberOf(1), Price: model.NumberOf(12.5)}},
	})
	require.NoError(t, err)
	require.Len(t, v.Details.Items, 1)
	assert.Equal(t, "Taxi aeroport", v.Details.Items[0].Name)
	assert.Equal(t, "airport", v.Details.Notes)

	missing := uint(9999)
	_, err = env.expenseSvc.Update(ctx, user.ID, rows[0].ID, ExpenseUpdate{CategoryID: &missing})
	assert.ErrorIs(t, err, ErrInvalidInput)

	bad := "02.01.2025"
	_, err = env.expenseSvc.Update(ctx, user.ID, rows[0].ID, ExpenseUpdate{PurchaseDate: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.expenseSvc.Update(ctx, user.ID+1, rows[0].ID, ExpenseUpdate{Amount: &amount})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteExpense(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	rows := env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(10)})

	assert.ErrorIs(t, env.expenseSvc.Delete(ctx, user.ID+1, rows[0].ID), ErrNotFound)
	require.NoError(t, env.expenseSvc.Delete(ctx, user.ID, rows[0].ID))
	_, err := env.expenseSvc.Get(ctx, user.ID, rows[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestViewToleratesUndecryptableRows(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	rows := env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(10), Vendor: "Nr1"})

	rows[0].Vendor = "bm90IGEgY2lwaGVydGV4dA=="
	rows[0].Payload = "garbage"
	require.NoError(t, env.expenses.Save(ctx, &rows[0]))

	views, err := env.expenseSvc.All(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Empty(t, views[0].Vendor)
	assert.Equal(t, 10.0, *views[0].Amount)
}

func TestExportCSV(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(10), Vendor: "Nr1", PurchaseDate: "2025-01-02", Notes: "pâine", Confidence: model.NumberOf(0.9)})
	env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(3), Vendor: "Kaufland, Botanica"})

	var buf bytes.Buffer
	require.NoError(t, env.expenseSvc.ExportCSV(ctx, user.ID, ListQuery{ExpenseFilter: repository.ExpenseFilter{Limit: 1}}, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Date,Vendor,Amount,Currency,Category,Source,Notes,AI Confidence", lines[0])
	assert.Contains(t, buf.String(), "2025-01-02,Nr1,10.00,MDL,")
	assert.Contains(t, buf.String(), `"Kaufland, Botanica",3.00`)
	assert.Contains(t, buf.String(), "manual,pâine,0.90")
}
