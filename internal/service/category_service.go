package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	"expense-bot/internal/ai"
	"expense-bot/internal/cryptox"
	"expense-bot/internal/model"
	"expense-bot/internal/repository"
)

// customCategoryColor is used for categories added from the chat.
const customCategoryColor = "#808080"

type suggestionPreset struct {
	keywords []string
	ai.Suggestion
}

var suggestionPresets = []suggestionPreset{
	{[]string{"food", "dining", "restaurant", "coffee", "drink", "grocer", "mcd"}, ai.Suggestion{Name: "Mâncare & Restaurante", Icon: "🍽️", Color: "#F97316"}},
	{[]string{"travel", "plane", "flight", "vacation", "trip"}, ai.Suggestion{Name: "Călătorii", Icon: "✈️", Color: "#38BDF8"}},
	{[]string{"health", "doctor", "med", "pharma", "gym"}, ai.Suggestion{Name: "Sănătate & Wellness", Icon: "💊", Color: "#34D399"}},
	{[]string{"home", "rent", "utility", "electric", "gas", "mortgage"}, ai.Suggestion{Name: "Utilități & Locuință", Icon: "🏠", Color: "#FACC15"}},
	{[]string{"shopping", "clothes", "fashion", "gift", "store"}, ai.Suggestion{Name: "Cumpărături", Icon: "🛍️", Color: "#F472B6"}},
	{[]string{"transport", "car", "fuel", "taxi", "uber", "bus"}, ai.Suggestion{Name: "Transport", Icon: "🚗", Color: "#60A5FA"}},
	{[]string{"education", "books", "course", "learning"}, ai.Suggestion{Name: "Educație", Icon: "📚", Color: "#A78BFA"}},
	{[]string{"entertainment", "movie", "game", "music", "fun"}, ai.Suggestion{Name: "Distracție & Timp liber", Icon: "🎬", Color: "#FB7185"}},
	{[]string{"pets", "dog", "cat", "animal"}, ai.Suggestion{Name: "Animale & Îngrijire", Icon: "🐾", Color: "#FDBA74"}},
	{[]string{"charity", "donation"}, ai.Suggestion{Name: "Caritate", Icon: "🤝", Color: "#FDE047"}},
}

// CategoryUpdate carries the editable fields; nil means unchanged.
type CategoryUpdate struct {
	Name      *string
	Color     *string
	Icon      *string
	IsDefault *bool
}

// DeletionPlan is the outcome of scanning a user's expenses for references
// to a category.
type DeletionPlan struct {
	Category     model.Category
	Count        int
	Alternatives []model.Category
}

// CategoryService manages user categories, including deletion with
// migration of referencing expenses.
type CategoryService struct {
	categories *repository.CategoryRepository
	expenses   *repository.ExpenseRepository
	cipher     *cryptox.Cipher
	suggester  ai.Extractor
}

func NewCategoryService(categories *repository.CategoryRepository, expenses *repository.ExpenseRepository, cipher *cryptox.Cipher, suggester ai.Extractor) *CategoryService {
	return &CategoryService{categories: categories, expenses: expenses, cipher: cipher, suggester: suggester}
}

func (s *CategoryService) List(ctx context.Context, userID uint) ([]model.Category, error) {
	return s.categories.ListByUser(ctx, userID)
}

func (s *CategoryService) Get(ctx context.Context, userID, id uint) (*model.Category, error) {
	c, err := s.categories.GetByID(ctx, userID, id)
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (s *CategoryService) Create(ctx context.Context, userID uint, c model.Category) (*model.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := s.ensureFree(ctx, userID, c.Name, 0); err != nil {
		return nil, err
	}
	c.ID = 0
	c.UserID = userID
	if err := s.categories.Create(ctx, &c); err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *CategoryService) Update(ctx context.Context, userID, id uint, upd CategoryUpdate) (*model.Category, error) {
	c, err := s.categories.GetByID(ctx, userID, id)
	if err != nil {
		return nil, translate(err)
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
		}
		if err := s.ensureFree(ctx, userID, name, c.ID); err != nil {
			return nil, err
		}
		c.Name = name
	}
	if upd.Color != nil {
		c.Color = *upd.Color
	}
	if upd.Icon != nil {
		c.Icon = *upd.Icon
	}
	if upd.IsDefault != nil {
		c.IsDefault = *upd.IsDefault
	}
	if err := s.categories.Save(ctx, c); err != nil {
		return nil, translate(err)
	}
	return c, nil
}

// AddNamed creates a custom category with an icon not yet used by the user.
func (s *CategoryService) AddNamed(ctx context.Context, userID uint, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	existing, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	used := make(map[string]bool, len(existing))
	for _, c := range existing {
		if strings.EqualFold(c.Name, name) {
			return nil, ErrCategoryExists
		}
		used[c.Icon] = true
	}
	return s.Create(ctx, userID, model.Category{
		Name:  name,
		Icon:  pickIcon(name, used),
		Color: customCategoryColor,
	})
}

// PlanDeletion counts the expenses that refer to the category either by
// foreign key or by the category name inside their encrypted payload.
// Payloads that fail to decrypt are not counted.
func (s *CategoryService) PlanDeletion(ctx context.Context, userID, id uint) (*DeletionPlan, error) {
	target, err := s.categories.GetByID(ctx, userID, id)
	if err != nil {
		return nil, translate(err)
	}
	refs, err := s.references(ctx, userID, *target)
	if err != nil {
		return nil, err
	}
	cats, err := s.categories.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	plan := &DeletionPlan{Category: *target, Count: len(refs)}
	for _, c := range cats {
		if c.ID != target.ID {
			plan.Alternatives = append(plan.Alternatives, c)
		}
	}
	return plan, nil
}

// Delete removes a category. With migrateTo set the referencing expenses are
// moved first. Without it the category goes only when nothing refers to it
// and it is not a default one; otherwise a *CategoryInUseError is returned.
func (s *CategoryService) Delete(ctx context.Context, userID, id uint, migrateTo *uint) error {
	if migrateTo != nil {
		_, err := s.Migrate(ctx, userID, id, *migrateTo)
		return err
	}
	plan, err := s.PlanDeletion(ctx, userID, id)
	if err != nil {
		return err
	}
	if plan.Count > 0 || plan.Category.IsDefault {
		return &CategoryInUseError{
			Count:         plan.Count,
			Default:       plan.Category.IsDefault,
			NoAlternative: len(plan.Alternatives) == 0,
		}
	}
	return translate(s.categories.Delete(ctx, userID, id))
}

// Migrate moves every expense of category from to category to and deletes
// from. It returns the number of moved expenses.
func (s *CategoryService) Migrate(ctx context.Context, userID, from, to uint) (int, error) {
	if from == to {
		return 0, fmt.Errorf("%w: cannot migrate a category into itself", ErrInvalidInput)
	}
	source, err := s.categories.GetByID(ctx, userID, from)
	if err != nil {
		return 0, translate(err)
	}
	target, err := s.categories.GetByID(ctx, userID, to)
	if err != nil {
		if errors.Is(translate(err), ErrNotFound) {
			return 0, fmt.Errorf("%w: unknown target category %d", ErrInvalidInput, to)
		}
		return 0, err
	}

	refs, err := s.references(ctx, userID, *source)
	if err != nil {
		return 0, err
	}
	payloads := make(map[uint]string, len(refs))
	for _, ref := range refs {
		if !ref.decrypted {
			continue
		}
		draft := ref.draft
		draft.Category = target.Name
		draft.CategoryID = nil
		for i := range draft.Items {
			if draft.Items[i].Category == source.Name {
				draft.Items[i].Category = target.Name
			}
		}
		data, err := s.cipher.EncryptJSON(draft)
		if err != nil {
			return 0, fmt.Errorf("encrypt payload: %w", err)
		}
		payloads[ref.id] = data
	}

	if err := s.categories.MigrateAndDelete(ctx, userID, source.ID, target.ID, payloads); err != nil {
		return 0, translate(err)
	}
	return len(refs), nil
}

// Suggest proposes a new category for a free-text description. Model
// failures fall back to keyword presets and then to a random preset.
func (s *CategoryService) Suggest(ctx context.Context, description string) (ai.Suggestion, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return ai.Suggestion{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if s.suggester != nil {
		if sug, err := s.suggester.SuggestCategory(ctx, description); err == nil {
			return sug, nil
		}
	}
	lower := strings.ToLower(description)
	for _, p := range suggestionPresets {
		if containsAnyKeyword(lower, p.keywords) {
			return p.Suggestion, nil
		}
	}
	return suggestionPresets[rand.IntN(len(suggestionPresets))].Suggestion, nil
}

func (s *CategoryService) ensureFree(ctx context.Context, userID uint, name string, self uint) error {
	existing, err := s.categories.FindByName(ctx, userID, name)
	switch {
	case err == nil:
		if existing.ID != self {
			return ErrCategoryExists
		}
		return nil
	case errors.Is(translate(err), ErrNotFound):
		return nil
	default:
		return err
	}
}

type reference struct {
	id        uint
	draft     model.Draft
	decrypted bool
}

func (s *CategoryService) references(ctx context.Context, userID uint, c model.Category) ([]reference, error) {
	rows, err := s.expenses.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var refs []reference
	for _, e := range rows {
		var draft model.Draft
		decrypted := s.cipher.DecryptJSON(e.Payload, &draft) == nil
		byName := decrypted && draft.Category == c.Name
		byID := e.CategoryID != nil && *e.CategoryID == c.ID
		if byName || byID {
			refs = append(refs, reference{id: e.ID, draft: draft, decrypted: decrypted})
		}
	}
	return refs, nil
}
