// Package api exposes the expense services over HTTP.
//
// The API is unauthenticated and acts on behalf of the active user
// (DEFAULT_USER_ID or the oldest user). It also carries the Telegram webhook
// endpoint and the operational /status and /metrics handlers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vmkteam/embedlog"
	"gorm.io/gorm"

	"expense-bot/internal/metrics"
	"expense-bot/internal/pending"
	"expense-bot/internal/repository"
	"expense-bot/internal/service"
)

// maxUploadSize bounds photo and voice uploads.
const maxUploadSize = 20 << 20

// UpdateHandler processes a Telegram update delivered to the webhook.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
}

// Services are the use cases served by the API.
type Services struct {
	Users      *service.UserService
	Intake     *service.IntakeService
	Expenses   *service.ExpenseService
	Categories *service.CategoryService
}

type Server struct {
	embedlog.Logger
	echo    *echo.Echo
	db      *gorm.DB
	svc     Services
	pending pending.Store
	updates UpdateHandler
}

// New builds the HTTP server. updates may be nil when the bot is disabled;
// the webhook route then answers 404.
func New(logger embedlog.Logger, db *gorm.DB, svc Services, store pending.Store, updates UpdateHandler) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		Logger:  logger,
		echo:    e,
		db:      db,
		svc:     svc,
		pending: store,
		updates: updates,
	}
	s.registerMetrics()
	s.registerHandlers()
	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		s.Print(ctx, "starting http listener", "addr", addr)
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		return s.Shutdown(5 * time.Second)
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

func (s *Server) registerMetrics() {
	s.echo.Use(httpMetrics)
	s.echo.Any("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) registerHandlers() {
	s.echo.GET("/status", s.statusHandler)
	s.echo.POST("/telegram/webhook", s.webhookHandler)

	g := s.echo.Group("/api")

	g.POST("/expenses/photo", s.uploadPhoto)
	g.POST("/expenses/voice", s.uploadVoice)
	g.POST("/expenses/manual", s.createManual)
	g.POST("/expenses/manual/preview", s.previewManual)
	g.POST("/expenses/manual/confirm", s.confirmManual)
	g.GET("/expenses", s.listExpenses)
	g.GET("/expenses/export/csv", s.exportCSV)
	g.GET("/expenses/:id", s.getExpense)
	g.PUT("/expenses/:id", s.updateExpense)
	g.DELETE("/expenses/:id", s.deleteExpense)

	g.GET("/categories", s.listCategories)
	g.POST("/categories", s.createCategory)
	g.POST("/categories/suggest", s.suggestCategory)
	g.GET("/categories/:id", s.getCategory)
	g.PUT("/categories/:id", s.updateCategory)
	g.DELETE("/categories/:id", s.deleteCategory)
}

// httpMetrics records request counts and latency per route template.
func httpMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		code := c.Response().Status
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
		} else if err != nil {
			code = http.StatusInternalServerError
		}
		route := c.Path()
		if route == "" {
			route = "unknown"
		}
		method := c.Request().Method
		metrics.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
		metrics.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return err
	}
}

func (s *Server) statusHandler(c echo.Context) error {
	ctx := c.Request().Context()
	if err := repository.Ping(ctx, s.db); err != nil {
		s.Error(ctx, "failed to check db connection", "err", err)
		return c.String(http.StatusInternalServerError, "DB error")
	}
	return c.String(http.StatusOK, "OK")
}

// webhookHandler always acknowledges a decodable update so Telegram does not
// redeliver it; handling errors are logged.
func (s *Server) webhookHandler(c echo.Context) error {
	if s.updates == nil {
		return echo.ErrNotFound
	}
	var update tgbotapi.Update
	if err := c.Bind(&update); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid update")
	}
	ctx := c.Request().Context()
	if err := s.updates.HandleUpdate(ctx, update); err != nil {
		s.Error(ctx, "failed to handle webhook update", "err", err, "update_id", update.UpdateID)
	}
	return c.NoContent(http.StatusOK)
}

// activeUserID resolves the user the API acts for.
func (s *Server) activeUserID(c echo.Context) (uint, error) {
	u, err := s.svc.Users.ActiveUser(c.Request().Context())
	if err != nil {
		return 0, s.httpError(c, err)
	}
	return u.ID, nil
}

// httpError maps service errors onto HTTP errors.
func (s *Server) httpError(c echo.Context, err error) error {
	var inUse *service.CategoryInUseError
	switch {
	case errors.As(err, &inUse):
		return c.JSON(http.StatusConflict, map[string]any{
			"message":        inUse.Error(),
			"count":          inUse.Count,
			"is_default":     inUse.Default,
			"no_alternative": inUse.NoAlternative,
		})
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrCategoryExists):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoActiveUser):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no user configured")
	}
	ctx := c.Request().Context()
	s.Error(ctx, "request failed", "err", err, "path", c.Path())
	return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return uint(id), nil
}
