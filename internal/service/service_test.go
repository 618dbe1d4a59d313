package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmkteam/embedlog"

	"expense-bot/internal/ai"
	"expense-bot/internal/cryptox"
	"expense-bot/internal/model"
	"expense-bot/internal/repository"
)

type testEnv struct {
	users      *repository.UserRepository
	categories *repository.CategoryRepository
	expenses   *repository.ExpenseRepository
	cipher     *cryptox.Cipher

	userSvc     *UserService
	expenseSvc  *ExpenseService
	categorySvc *CategoryService
	statsSvc    *StatsService
	extractor   *fakeExtractor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cipher, err := cryptox.New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	env := &testEnv{
		users:      repository.NewUserRepository(db),
		categories: repository.NewCategoryRepository(db),
		expenses:   repository.NewExpenseRepository(db),
		cipher:     cipher,
		extractor:  &fakeExtractor{},
	}
	env.userSvc = NewUserService(env.users, env.categories, 0)
	env.expenseSvc = NewExpenseService(env.expenses, env.categories, cipher, "MDL")
	env.categorySvc = NewCategoryService(env.categories, env.expenses, cipher, env.extractor)
	env.statsSvc = NewStatsService(env.expenseSvc, "MDL")
	return env
}

// seededUser creates a Telegram user with the default categories.
func (e *testEnv) seededUser(t *testing.T, telegramID int64) *model.User {
	t.Helper()
	u, err := e.userSvc.EnsureTelegramUser(context.Background(), telegramID, "Ion", "ion")
	require.NoError(t, err)
	return u
}

// bareUser creates a user without categories.
func (e *testEnv) bareUser(t *testing.T) *model.User {
	t.Helper()
	u := &model.User{DisplayName: "API"}
	require.NoError(t, e.users.Create(context.Background(), u))
	return u
}

func (e *testEnv) category(t *testing.T, userID uint, name string) model.Category {
	t.Helper()
	c, err := e.categories.FindByName(context.Background(), userID, name)
	require.NoError(t, err)
	return *c
}

func (e *testEnv) addExpense(t *testing.T, userID uint, d model.Draft) []model.Expense {
	t.Helper()
	m, err := e.expenseSvc.Materialize(context.Background(), userID, d, model.SourceManual)
	require.NoError(t, err)
	return m.Expenses
}

type fakeExtractor struct {
	mu         sync.Mutex
	draft      model.Draft
	err        error
	suggestion ai.Suggestion
	calls      []string
	categories []string
}

func (f *fakeExtractor) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeExtractor) ParsePhoto(context.Context, []byte, string) (model.Draft, error) {
	f.record("photo")
	return f.draft, f.err
}

func (f *fakeExtractor) ParseVoice(context.Context, []byte, string) (model.Draft, error) {
	f.record("voice")
	return f.draft, f.err
}

func (f *fakeExtractor) ParseText(_ context.Context, _ string, categories []string) (model.Draft, error) {
	f.record("text")
	f.categories = categories
	return f.draft, f.err
}

func (f *fakeExtractor) SuggestCategory(context.Context, string) (ai.Suggestion, error) {
	f.record("suggest")
	return f.suggestion, f.err
}

func testLogger() embedlog.Logger {
	return embedlog.NewLogger(false, false)
}
