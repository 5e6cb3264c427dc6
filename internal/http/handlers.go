package http

import (
	"errors"
	"net/http"
	"strings"

	"treso/internal/core"
	"treso/internal/log"
)

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.ListProjects(r.Context(), r.PathValue("org"))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	out := make([]projectView, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectToView(p))
	}
	NewJSONResponse().Payload(map[string]any{"projects": out}).Write(w)
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	org, err := parseOrganization(p)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	created, err := s.svc.CreateOrganization(r.Context(), org)
	if err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", r.URL.Path+"/"+created.ID+"/projects").
		Payload(organizationView{
			ID:                   created.ID,
			Name:                 created.Name,
			Currency:             created.Currency,
			BudgetAlertThreshold: created.BudgetAlertThreshold,
		}).
		Write(w)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	proj, err := parseProject(p)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	proj.OrganizationID = r.PathValue("org")
	created, err := s.svc.CreateProject(r.Context(), proj)
	if err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", r.URL.Path+"/"+created.ID).
		Payload(projectToView(created)).
		Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	p, ok := parseBody(w, r)
	if !ok {
		return
	}
	budget, err := parseBudget(p)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	org, project := r.PathValue("org"), r.PathValue("project")
	updated, err := s.svc.UpdateCategoryBudget(r.Context(), org, project, r.PathValue("id"), core.Money{Cents: budget})
	if err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	s.invalidateReport(org, project)
	NewJSONResponse().Payload(categoryToView(updated)).Write(w)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	report, err := s.report(r.Context(), r.PathValue("org"), r.PathValue("project"))
	if err != nil {
		writeServiceError(w, r, err, log.OpReport)
		return
	}
	NewJSONResponse().Payload(reportToView(report)).Write(w)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	report, err := s.report(r.Context(), r.PathValue("org"), r.PathValue("project"))
	if err != nil {
		writeServiceError(w, r, err, log.OpReport)
		return
	}
	NewJSONResponse().Payload(breakdownToView(report)).Write(w)
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.svc.ListCategories(r.Context(), r.PathValue("org"), r.PathValue("project"))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	typ := core.TransactionType(r.URL.Query().Get("type"))
	out := make([]categoryView, 0, len(categories))
	for _, c := range categories {
		if typ != "" && c.Type != typ {
			continue
		}
		out = append(out, categoryToView(c))
	}
	NewJSONResponse().Payload(map[string]any{"categories": out}).Write(w)
}

// handleListTransactions supports the type, certainty and category_id
// query filters.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := s.svc.ListTransactions(r.Context(), r.PathValue("org"), r.PathValue("project"))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	q := r.URL.Query()
	typ := core.TransactionType(q.Get("type"))
	certainty := core.Certainty(q.Get("certainty"))
	category := q.Get("category_id")

	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		if typ != "" && tx.Type != typ {
			continue
		}
		if certainty != "" && tx.Certainty != certainty {
			continue
		}
		if category != "" && tx.CategoryID != category {
			continue
		}
		out = append(out, transactionToView(tx))
	}
	NewJSONResponse().Payload(map[string]any{"transactions": out}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.svc.GetTransaction(r.Context(), r.PathValue("org"), r.PathValue("project"), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err, log.OpList)
		return
	}
	NewJSONResponse().Payload(transactionToView(tx)).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.decodeTransaction(w, r)
	if !ok {
		return
	}
	created, err := s.svc.CreateTransaction(r.Context(), tx)
	if err != nil {
		writeServiceError(w, r, err, log.OpCreate)
		return
	}
	s.invalidateReport(created.OrganizationID, created.ProjectID)
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", r.URL.Path+"/"+created.ID).
		Payload(transactionToView(created)).
		Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	tx, ok := s.decodeTransaction(w, r)
	if !ok {
		return
	}
	tx.ID = r.PathValue("id")
	updated, err := s.svc.UpdateTransaction(r.Context(), tx)
	if err != nil {
		writeServiceError(w, r, err, log.OpUpdate)
		return
	}
	s.invalidateReport(updated.OrganizationID, updated.ProjectID)
	NewJSONResponse().Payload(transactionToView(updated)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	org, project := r.PathValue("org"), r.PathValue("project")
	if err := s.svc.DeleteTransaction(r.Context(), org, project, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err, log.OpDelete)
		return
	}
	s.invalidateReport(org, project)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// decodeTransaction parses the body into a transaction scoped to the path's
// organization and project. It writes the error response itself.
func (s *Server) decodeTransaction(w http.ResponseWriter, r *http.Request) (core.Transaction, bool) {
	p, ok := parseBody(w, r)
	if !ok {
		return core.Transaction{}, false
	}
	tx, err := parseTransaction(p)
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return core.Transaction{}, false
	}
	tx.OrganizationID = r.PathValue("org")
	tx.ProjectID = strings.TrimSpace(r.PathValue("project"))
	return tx, true
}

// parseBody parses a JSON or form body, answering 400 when it cannot.
func parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		msg := "invalid request body"
		if errors.Is(err, errEmptyBody) {
			msg = err.Error()
		}
		BadRequestError(msg).Write(w)
		return nil, false
	}
	return p, true
}
