package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"expense-bot/internal/model"
	"expense-bot/internal/pending"
	"expense-bot/internal/service"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type textRequest struct {
	Text string `json:"text"`
}

type confirmRequest struct {
	ConfirmationID string       `json:"confirmation_id"`
	ParsedData     *model.Draft `json:"parsed_data"`
	Source         model.Source `json:"source"`
}

type updateRequest struct {
	Amount       *float64          `json:"amount"`
	Currency     *string           `json:"currency"`
	Vendor       *string           `json:"vendor"`
	PurchaseDate *string           `json:"purchase_date"`
	CategoryID   *uint             `json:"category_id"`
	Notes        *string           `json:"notes"`
	Items        []model.DraftItem `json:"items"`
}

type createdResponse struct {
	Status     string      `json:"status"`
	ExpenseID  uint        `json:"expense_id"`
	ExpenseIDs []uint      `json:"expense_ids"`
	FromPortal bool        `json:"from_portal"`
	Data       model.Draft `json:"data"`
}

type previewResponse struct {
	Status         string      `json:"status"`
	ConfirmationID string      `json:"confirmation_id"`
	ExpiresIn      int         `json:"expires_in"`
	Data           model.Draft `json:"data"`
}

type listResponse struct {
	Expenses []service.ExpenseView `json:"expenses"`
	Total    int64                 `json:"total"`
	Skip     int                   `json:"skip"`
	Limit    int                   `json:"limit"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (s *Server) uploadPhoto(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	data, contentType, _, err := readUpload(c)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return echo.NewHTTPError(http.StatusBadRequest, "file must be an image")
	}

	in, err := s.svc.Intake.FromPhoto(c.Request().Context(), userID, data, contentType)
	if err != nil {
		return s.intakeError(c, err)
	}
	return s.materialize(c, userID, in.Draft, in.Source, in.FromPortal)
}

func (s *Server) uploadVoice(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	data, contentType, filename, err := readUpload(c)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(contentType, "audio/") && !strings.HasPrefix(contentType, "video/") {
		return echo.NewHTTPError(http.StatusBadRequest, "file must be audio or video")
	}

	in, err := s.svc.Intake.FromVoice(c.Request().Context(), userID, data, filename)
	if err != nil {
		return s.intakeError(c, err)
	}
	return s.materialize(c, userID, in.Draft, in.Source, false)
}

func (s *Server) createManual(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	text, err := bindText(c)
	if err != nil {
		return err
	}

	in, err := s.svc.Intake.FromText(c.Request().Context(), userID, text)
	if err != nil {
		return s.intakeError(c, err)
	}
	return s.materialize(c, userID, in.Draft, in.Source, in.FromPortal)
}

// previewManual parses text and parks the draft until it is confirmed.
func (s *Server) previewManual(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	text, err := bindText(c)
	if err != nil {
		return err
	}

	in, err := s.svc.Intake.FromText(c.Request().Context(), userID, text)
	if err != nil {
		return s.intakeError(c, err)
	}
	id, err := s.pending.Put(pending.Entry{UserID: userID, Source: in.Source, Draft: in.Draft})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, previewResponse{
		Status:         "preview",
		ConfirmationID: id,
		ExpiresIn:      int(pending.TTL.Seconds()),
		Data:           in.Draft,
	})
}

// confirmManual saves either a parked draft or a draft edited by the client.
func (s *Server) confirmManual(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	switch {
	case req.ConfirmationID != "":
		ctx := c.Request().Context()
		entry, err := s.pending.Take(req.ConfirmationID, userID)
		switch {
		case errors.Is(err, pending.ErrNotOwner):
			return echo.NewHTTPError(http.StatusNotFound, "confirmation not found")
		case errors.Is(err, pending.ErrExpired):
			return echo.NewHTTPError(http.StatusGone, "confirmation expired")
		case err != nil:
			return s.httpError(c, err)
		}
		draft := entry.Draft
		if req.ParsedData != nil {
			draft = *req.ParsedData
		}
		m, err := s.svc.Expenses.Materialize(ctx, userID, draft, entry.Source)
		if err != nil {
			if rerr := s.pending.Restore(req.ConfirmationID, entry); rerr != nil {
				s.Error(ctx, "failed to restore pending draft", "err", rerr, "confirmation_id", req.ConfirmationID)
			}
			return s.httpError(c, err)
		}
		return c.JSON(http.StatusCreated, created(m, false))
	case req.ParsedData != nil:
		source := req.Source
		if source == "" {
			source = model.SourceManual
		}
		return s.materialize(c, userID, *req.ParsedData, source, false)
	}
	return echo.NewHTTPError(http.StatusBadRequest, "confirmation_id or parsed_data is required")
}

func (s *Server) materialize(c echo.Context, userID uint, draft model.Draft, source model.Source, fromPortal bool) error {
	m, err := s.svc.Expenses.Materialize(c.Request().Context(), userID, draft, source)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusCreated, created(m, fromPortal))
}

func created(m *service.Materialized, fromPortal bool) createdResponse {
	resp := createdResponse{
		Status:     "success",
		ExpenseIDs: make([]uint, 0, len(m.Expenses)),
		FromPortal: fromPortal,
		Data:       m.Draft,
	}
	for _, e := range m.Expenses {
		resp.ExpenseIDs = append(resp.ExpenseIDs, e.ID)
	}
	if len(resp.ExpenseIDs) > 0 {
		resp.ExpenseID = resp.ExpenseIDs[0]
	}
	return resp
}

// intakeError reports extraction failures as 422; other errors go through
// the common mapping.
func (s *Server) intakeError(c echo.Context, err error) error {
	mapped := s.httpError(c, err)
	if isStatus(mapped, http.StatusInternalServerError) {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "could not extract an expense")
	}
	return mapped
}

func (s *Server) listExpenses(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	q, err := listQuery(c)
	if err != nil {
		return err
	}

	items, total, err := s.svc.Expenses.List(c.Request().Context(), userID, q)
	if err != nil {
		return s.httpError(c, err)
	}
	if items == nil {
		items = []service.ExpenseView{}
	}
	return c.JSON(http.StatusOK, listResponse{Expenses: items, Total: total, Skip: q.Offset, Limit: q.Limit})
}

func (s *Server) exportCSV(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	q, err := listQuery(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.svc.Expenses.ExportCSV(c.Request().Context(), userID, q, &buf); err != nil {
		return s.httpError(c, err)
	}
	filename := fmt.Sprintf("expenses_%s.csv", time.Now().Format("20060102"))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) getExpense(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	v, err := s.svc.Expenses.Get(c.Request().Context(), userID, id)
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) updateExpense(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	v, err := s.svc.Expenses.Update(c.Request().Context(), userID, id, service.ExpenseUpdate{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Vendor:       req.Vendor,
		PurchaseDate: req.PurchaseDate,
		CategoryID:   req.CategoryID,
		Notes:        req.Notes,
		Items:        req.Items,
	})
	if err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}

func (s *Server) deleteExpense(c echo.Context) error {
	userID, err := s.activeUserID(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := s.svc.Expenses.Delete(c.Request().Context(), userID, id); err != nil {
		return s.httpError(c, err)
	}
	return c.JSON(http.StatusOK, statusResponse{Status: "success", Message: "Expense deleted"})
}

// listQuery reads filters, sorting and paging from the query string.
// Malformed dates are ignored.
func listQuery(c echo.Context) (service.ListQuery, error) {
	var q service.ListQuery

	q.DateFrom = queryDate(c, "date_from")
	q.DateTo = queryDate(c, "date_to")
	if v := c.QueryParam("category_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return q, echo.NewHTTPError(http.StatusBadRequest, "invalid category_id")
		}
		cid := uint(id)
		q.CategoryID = &cid
	}
	var err error
	if q.MinAmount, err = queryFloat(c, "min_amount"); err != nil {
		return q, err
	}
	if q.MaxAmount, err = queryFloat(c, "max_amount"); err != nil {
		return q, err
	}
	if v := c.QueryParam("source"); v != "" {
		q.Source = model.Source(v)
		if !q.Source.Valid() {
			return q, echo.NewHTTPError(http.StatusBadRequest, "invalid source")
		}
	}
	q.Search = c.QueryParam("search")
	q.SortBy = c.QueryParam("sort_by")
	q.Order = c.QueryParam("order")

	if q.Offset, err = queryInt(c, "skip", 0); err != nil {
		return q, err
	}
	if q.Limit, err = queryInt(c, "limit", defaultListLimit); err != nil {
		return q, err
	}
	q.Offset = max(q.Offset, 0)
	if q.Limit <= 0 {
		q.Limit = defaultListLimit
	}
	q.Limit = min(q.Limit, maxListLimit)
	return q, nil
}

func queryDate(c echo.Context, name string) *time.Time {
	t, err := time.Parse("2006-01-02", c.QueryParam(name))
	if err != nil {
		return nil
	}
	return &t
}

func queryFloat(c echo.Context, name string) (*float64, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &f, nil
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return n, nil
}

func bindText(c echo.Context) (string, error) {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}
	return text, nil
}

// readUpload returns the bytes, content type and name of the "file" part.
func readUpload(c echo.Context) ([]byte, string, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", "", echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	if fh.Size > maxUploadSize {
		return nil, "", "", echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file is too large")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", "", echo.NewHTTPError(http.StatusBadRequest, "cannot read file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		return nil, "", "", echo.NewHTTPError(http.StatusBadRequest, "cannot read file")
	}
	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" || contentType == echo.MIMEOctetStream {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, fh.Filename, nil
}

func isStatus(err error, code int) bool {
	he, ok := err.(*echo.HTTPError)
	return ok && he.Code == code
}
