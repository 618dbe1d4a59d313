package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"expense-bot/internal/model"
	"expense-bot/internal/service"
)

type categoryRequest struct {
	Name      *string `json:"name"`
	Color     *string `json:"color"`
	Icon      *string `json:"icon"`
	IsDefault *bool   `json:"is_default"`
}

type categoryResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Icon      string    `json:"icon"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

type suggestRequest struct {
	Description string `json:"description"`
}

func newCategoryResponse(c model.Category) categoryResponse {
	return categoryResponse{
		ID:        c.ID,
		UserID:    c.UserID,
		Name:      c.Name,
		Color:     c.Color,
		Icon:      c.Icon,
		IsDefault: c.IsDefault,
		CreatedAt: c.CreatedAt,
	}
}

func (s *Server) listCategories(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	list, err := s.svc.Categories.List(c.Request().Context(), userID)
	if err != nil {
		return s.httpError(c, err)
	}
	resp := make([]categoryResponse, 0, len(list))
	for _, cat := range list {
		resp = append(resp, newCategoryResponse(cat))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) createCategory(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cat := model.Category{}
	if req.Name != nil {
		cat.Name = *req.Name
	}
	if req.Color != nil {
		cat.Color = *req.Color
	}
	if req.Icon != nil {
		cat.Icon = *req.Icon
	}
	if req.IsDefault != nil {
		cat.IsDefault = *req.IsDefault
	}
	created, err := s.svc.Categories.Create(c.Request().Context(), userID, cat)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, newCategoryResponse(*created))
}

func (s *Server) getCategory(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	cat, err := s.svc.Categories.Get(c.Request().Context(), userID, id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, newCategoryResponse(*cat))
}

func (s *Server) updateCategory(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req categoryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cat, err := s.svc.Categories.Update(c.Request().Context(), userID, id, service.CategoryUpdate{
		Name:      req.Name,
		Color:     req.Color,
		Icon:      req.Icon,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, newCategoryResponse(*cat))
}

// deleteCategory removes a category. Expenses that still refer to it block
// the deletion with 409 unless migrate_to names the category to move them to.
func (s *Server) deleteCategory(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var migrateTo *uint
	if v := c.QueryParam("migrate_to"); v != "" {
		to, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid migrate_to")
		}
		target := uint(to)
		migrateTo = &target
	}

	if err := s.svc.Categories.Delete(c.Request().Context(), userID, id, migrateTo); err != nil {
		return s.httpError(c, err)
	}
	msg := "Category deleted"
	if migrateTo != nil {
		msg = "Category deleted, expenses migrated"
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: msg})
}

func (s *Server) suggestCategory(c echo.Context) error {
	var req suggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sug, err := s.svc.Categories.Suggest(c.Request().Context(), req.Description)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, sug)
}
