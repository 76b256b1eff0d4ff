package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/formeye/internal/condition"
	"github.com/formeye/internal/fieldmap"
	"github.com/formeye/internal/history"
	"github.com/formeye/internal/models"
	"github.com/formeye/internal/rule"
	"github.com/formeye/internal/submission"
	"github.com/formeye/internal/template"
	"github.com/formeye/internal/trigger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	rules      *rule.Store
	subs       *submission.Store
	ledger     *history.Ledger
	dispatcher *trigger.Dispatcher
	router     *gin.Engine
}

func NewServer(rules *rule.Store, subs *submission.Store, ledger *history.Ledger, dispatcher *trigger.Dispatcher) *Server {
	server := &Server{
		rules:      rules,
		subs:       subs,
		ledger:     ledger,
		dispatcher: dispatcher,
		router:     gin.Default(),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Write-path hook: the form surface posts submissions here
	api.POST("/submissions", s.createSubmission)
	api.GET("/submissions/:id", s.getSubmission)

	rules := api.Group("/rules")
	{
		rules.GET("", s.listRules)
		rules.GET("/:id", s.getRule)
		rules.POST("", s.createRule)
		rules.PUT("/:id", s.updateRule)
		rules.DELETE("/:id", s.deleteRule)
		rules.PUT("/:id/enable", s.enableRule)
		rules.PUT("/:id/disable", s.disableRule)
		rules.POST("/:id/test", s.testRule)
	}

	api.GET("/history", s.queryHistory)
	api.GET("/stats", s.getStats)
}

func (s *Server) Start(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) createSubmission(c *gin.Context) {
	var req struct {
		FormID          string           `json:"form_id" binding:"required"`
		SubFormID       string           `json:"sub_form_id"`
		Fields          models.FieldList `json:"fields"`
		SubFields       models.FieldList `json:"sub_fields"`
		ChangedFieldIDs []string         `json:"changed_field_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &models.Submission{
		FormID:    req.FormID,
		SubFormID: req.SubFormID,
		Fields:    req.Fields,
		SubFields: req.SubFields,
	}
	if err := s.subs.Create(sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// When the caller doesn't say what changed, treat every field as
	// changed (a fresh submission).
	changed := req.ChangedFieldIDs
	if len(changed) == 0 {
		for _, f := range req.Fields {
			changed = append(changed, f.ID)
		}
		for _, f := range req.SubFields {
			changed = append(changed, f.ID)
		}
	}
	s.dispatcher.OnFieldUpdate(req.FormID, req.SubFormID, changed, sub)

	c.JSON(http.StatusCreated, sub)
}

func (s *Server) getSubmission(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sub, err := s.subs.Get(id)
	if errors.Is(err, submission.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (s *Server) listRules(c *gin.Context) {
	var enabled *bool
	if v := c.Query("enabled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid enabled filter"})
			return
		}
		enabled = &b
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	rules, total, err := s.rules.List(c.Query("form_id"), enabled, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": total, "page": page})
}

func (s *Server) getRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := s.rules.Get(id)
	if errors.Is(err, rule.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// The management surface shows the latest failure reason per rule.
	failure, err := s.ledger.LatestFailure(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rule": r, "latest_failure": failure})
}

func (s *Server) createRule(c *gin.Context) {
	var r models.Rule
	if err := c.BindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.rules.Create(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) updateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	existing, err := s.rules.Get(id)
	if errors.Is(err, rule.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var r models.Rule
	if err := c.BindJSON(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	r.ID = existing.ID
	r.CreatedAt = existing.CreatedAt
	r.LastFiredAt = existing.LastFiredAt
	r.FireCount = existing.FireCount
	if err := s.rules.Update(&r); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, r)
}

func (s *Server) deleteRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := s.rules.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) enableRule(c *gin.Context) {
	s.setEnabled(c, true)
}

func (s *Server) disableRule(c *gin.Context) {
	s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *gin.Context, enabled bool) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	err := s.rules.SetEnabled(id, enabled)
	if errors.Is(err, rule.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// testRule evaluates a rule against a supplied or latest record without
// sending anything.
func (s *Server) testRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	r, err := s.rules.Get(id)
	if errors.Is(err, rule.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "rule not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		SubmissionID uint               `json:"submission_id"`
		Submission   *models.Submission `json:"submission"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sub := req.Submission
	if sub == nil && req.SubmissionID != 0 {
		sub, err = s.subs.Get(req.SubmissionID)
		if errors.Is(err, submission.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	if sub == nil {
		sub, err = s.subs.Latest(r.FormID)
		if errors.Is(err, submission.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "form has no submissions yet"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	fm := fieldmap.Build(sub)
	conditionMet, evalErr := condition.Evaluate(r.ConditionFormula, fm)

	wouldSend := conditionMet && r.IsEnabled && evalErr == nil
	if wouldSend && r.SendOnce {
		sent, err := s.ledger.HasSent(r.ID, sub.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		wouldSend = !sent
	}

	resp := gin.H{
		"conditionMet":    conditionMet,
		"wouldSend":       wouldSend,
		"renderedMessage": template.Render(r.MessageTemplate, fm),
	}
	if evalErr != nil {
		resp["error"] = evalErr.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) queryHistory(c *gin.Context) {
	filter := history.QueryFilter{
		Status: models.DeliveryStatus(c.Query("status")),
	}
	if v := c.Query("rule_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule_id"})
			return
		}
		filter.RuleID = uint(id)
	}
	if v := c.Query("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start time"})
			return
		}
		filter.From = &t
	}
	if v := c.Query("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end time"})
			return
		}
		filter.To = &t
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "50"))

	records, total, err := s.ledger.Query(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total, "page": filter.Page})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.ledger.Stats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}
