package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/ledgerline-backend/internal/application/service"
	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
	"github.com/ledgerline/ledgerline-backend/internal/domain/matcher"
	"github.com/ledgerline/ledgerline-backend/internal/domain/pattern"
	"github.com/ledgerline/ledgerline-backend/internal/infrastructure/storage"
)

const dayFormat = "2006-01-02"

// importRowRequest is one row in an import batch request.
type importRowRequest struct {
	Date        string `json:"date" binding:"required"`
	Description string `json:"description"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency"`
	Kind        string `json:"kind" binding:"required"`
	AccountID   string `json:"account_id" binding:"required"`
}

type importRequest struct {
	Rows []importRowRequest `json:"rows" binding:"required"`
}

type linkRequest struct {
	TransactionID string `json:"transaction_id" binding:"required"`
	SeriesID      string `json:"series_id" binding:"required"`
	ScheduledDate string `json:"scheduled_date" binding:"required"`
}

type patternRequest struct {
	SeriesID string `json:"series_id" binding:"required"`
	Pattern  string `json:"pattern" binding:"required"`
}

// matchResponse is the JSON shape of a reconciliation match.
type matchResponse struct {
	ID            string   `json:"id"`
	TransactionID string   `json:"transaction_id"`
	SeriesID      string   `json:"series_id"`
	ScheduledDate string   `json:"scheduled_date"`
	Source        string   `json:"source"`
	Status        string   `json:"status"`
	Confidence    *float64 `json:"confidence,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func toMatchResponse(m *ledger.ReconciliationMatch) matchResponse {
	return matchResponse{
		ID:            m.ID,
		TransactionID: m.TransactionID,
		SeriesID:      m.SeriesID,
		ScheduledDate: m.ScheduledDate.Format(dayFormat),
		Source:        string(m.Source),
		Status:        string(m.Status),
		Confidence:    m.Confidence,
		CreatedAt:     m.CreatedAt.Format(time.RFC3339),
	}
}

func (s *Server) importBatch(c *gin.Context) {
	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rows := make([]ledger.ParsedRow, 0, len(req.Rows))
	for i, r := range req.Rows {
		row, err := parseRowRequest(r)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "row " + strconv.Itoa(i) + ": " + err.Error()})
			return
		}
		rows = append(rows, row)
	}

	report, err := s.importSvc.ImportRows(c.Request.Context(), rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func parseRowRequest(r importRowRequest) (ledger.ParsedRow, error) {
	var row ledger.ParsedRow

	date, err := time.Parse(dayFormat, r.Date)
	if err != nil {
		return row, err
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return row, err
	}
	kind, err := ledger.ParseKind(r.Kind)
	if err != nil {
		return row, err
	}

	currency := r.Currency
	if currency == "" {
		currency = "USD"
	}
	return ledger.ParsedRow{
		Date:        ledger.Day(date),
		Description: r.Description,
		Amount:      amount,
		Currency:    currency,
		Kind:        kind,
		AccountID:   r.AccountID,
	}, nil
}

func (s *Server) listTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txs, err := s.repo.ListTransactions(c.Param("accountID"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (s *Server) reconcile(c *gin.Context) {
	match, err := s.reconSvc.Evaluate(c.Request.Context(), c.Param("id"))
	if err != nil {
		var ambErr *matcher.AmbiguityError
		if errors.As(err, &ambErr) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "ambiguous match",
				"report": matcher.Report(ambErr.TransactionID, ambErr.Candidates),
			})
			return
		}
		s.writeServiceError(c, err)
		return
	}
	if match == nil {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "match": toMatchResponse(match)})
}

func (s *Server) matchByTransaction(c *gin.Context) {
	match, err := s.repo.ActiveMatchByTransaction(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active match"})
		return
	}
	c.JSON(http.StatusOK, toMatchResponse(match))
}

// instanceRequest is one projected occurrence pushed by the
// recurrence-expansion collaborator.
type instanceRequest struct {
	SeriesID            string `json:"series_id" binding:"required"`
	ScheduledDate       string `json:"scheduled_date" binding:"required"`
	ExpectedDescription string `json:"expected_description"`
	ExpectedAmount      string `json:"expected_amount" binding:"required"`
}

func (s *Server) upsertInstances(c *gin.Context) {
	var req struct {
		Instances []instanceRequest `json:"instances" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for i, in := range req.Instances {
		date, err := time.Parse(dayFormat, in.ScheduledDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "instance " + strconv.Itoa(i) + ": invalid scheduled_date"})
			return
		}
		amount, err := decimal.NewFromString(in.ExpectedAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "instance " + strconv.Itoa(i) + ": invalid expected_amount"})
			return
		}
		inst := ledger.RecurringInstance{
			SeriesID:            in.SeriesID,
			ScheduledDate:       ledger.Day(date),
			ExpectedDescription: in.ExpectedDescription,
			ExpectedAmount:      amount,
		}
		if err := s.repo.UpsertInstance(inst); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"upserted": len(req.Instances)})
}

func (s *Server) matchByInstance(c *gin.Context) {
	seriesID := c.Query("series_id")
	dateStr := c.Query("scheduled_date")
	date, err := time.Parse(dayFormat, dateStr)
	if seriesID == "" || err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "series_id and scheduled_date (YYYY-MM-DD) are required"})
		return
	}

	match, lookupErr := s.repo.ActiveMatchByInstance(seriesID, date)
	if lookupErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": lookupErr.Error()})
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active match"})
		return
	}
	c.JSON(http.StatusOK, toMatchResponse(match))
}

func (s *Server) ambiguity(c *gin.Context) {
	report, err := s.reconSvc.AmbiguityReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) createLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(dayFormat, req.ScheduledDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scheduled_date: " + err.Error()})
		return
	}

	match, err := s.reconSvc.Link(c.Request.Context(), req.TransactionID, req.SeriesID, date)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toMatchResponse(match))
}

func (s *Server) deleteLink(c *gin.Context) {
	if err := s.reconSvc.Unlink(c.Request.Context(), c.Param("id")); err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
}

func (s *Server) listPatterns(c *gin.Context) {
	patterns, err := s.repo.ListPatterns()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

func (s *Server) createPattern(c *gin.Context) {
	var req patternRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := s.reconSvc.AddPattern(c.Request.Context(), req.SeriesID, req.Pattern)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) deletePattern(c *gin.Context) {
	if err := s.repo.DeletePattern(c.Param("id")); err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// writeServiceError maps domain errors to HTTP statuses.
func (s *Server) writeServiceError(c *gin.Context, err error) {
	var linkErr *service.InvalidLinkError
	var cfgErr *pattern.ConfigError

	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &linkErr):
		c.JSON(http.StatusConflict, gin.H{"error": linkErr.Error()})
	case errors.As(err, &cfgErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": cfgErr.Error()})
	default:
		s.logger.Error("request failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
