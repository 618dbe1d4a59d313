package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expense-bot/internal/model"
)

func TestSummaryWithoutExpenses(t *testing.T) {
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	text, err := env.statsSvc.Summary(context.Background(), user.ID, time.Now())
	require.NoError(t, err)
	assert.Contains(t, text, "Nu ai cheltuieli")
}

func TestSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)
	_, err := env.expenseSvc.Materialize(ctx, user.ID, receiptDraft(), model.SourcePhoto)
	require.NoError(t, err)
	env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(7), Currency: "EUR", Vendor: "Paris"})
	env.addExpense(t, user.ID, model.Draft{Vendor: "No amount"})

	text, err := env.statsSvc.Summary(ctx, user.ID, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Contains(t, text, "Total: 40.00 MDL (4 cheltuieli)")
	assert.Contains(t, text, "Medie/zi: 40.00 MDL")
	assert.Contains(t, text, "Luna: 40.00 MDL (4 chelt.)")
	assert.Contains(t, text, "Mâncare &amp; Restaurante: 20 MDL (50%)")
	assert.Contains(t, text, "Transport: 15 MDL (38%)")
	assert.NotContains(t, text, "No amount")
}

func TestRecentList(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	user := env.seededUser(t, 1)

	text, err := env.statsSvc.RecentList(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "Nu ai cheltuieli")

	env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(12.5), Vendor: "Andy's <Pizza>", PurchaseDate: "2025-02-11"})
	env.addExpense(t, user.ID, model.Draft{Amount: model.NumberOf(3), Vendor: "Nr1"})

	text, err = env.statsSvc.RecentList(ctx, user.ID)
	require.NoError(t, err)
	assert.Contains(t, text, "✍️ <b>12.50 MDL</b> - Andy&#39;s &lt;Pizza&gt;")
	assert.Contains(t, text, "📅 11.02.2025")
	assert.Contains(t, text, "Total (MDL): 15.50")
}

func TestVendorSuffix(t *testing.T) {
	assert.Equal(t, "", vendorSuffix("  ", 15))
	assert.Equal(t, " - Linella", vendorSuffix("Linella", 15))
	assert.Equal(t, " - Supermarketul N", vendorSuffix("Supermarketul Nr1 Botanica", 15))
	assert.Equal(t, " - Supermarketul Nr1 Botanica", vendorSuffix("Supermarketul Nr1 Botanica", 0))
}
