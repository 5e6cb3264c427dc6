package http

import (
	"time"

	"treso/internal/core"
	"treso/internal/services"
	"treso/internal/stats"
)

const dayLayout = "2006-01-02"

type moneyView struct {
	Cents     int64  `json:"cents"`
	Formatted string `json:"formatted"`
}

func money(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Formatted: m.String()}
}

type counterpartyView struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	SIRET string `json:"siret,omitempty"`
}

type transactionView struct {
	ID              string           `json:"id"`
	OrganizationID  string           `json:"organization_id"`
	ProjectID       string           `json:"project_id"`
	Type            string           `json:"type"`
	TypeLabel       string           `json:"type_label"`
	Amount          moneyView        `json:"amount"`
	VAT             *moneyView       `json:"vat,omitempty"`
	AmountTTC       *moneyView       `json:"amount_ttc,omitempty"`
	Description     string           `json:"description"`
	CategoryID      string           `json:"category_id"`
	Status          string           `json:"status"`
	StatusLabel     string           `json:"status_label"`
	StatusColor     string           `json:"status_color,omitempty"`
	Certainty       string           `json:"certainty"`
	CertaintyLabel  string           `json:"certainty_label"`
	TransactionDate string           `json:"transaction_date"`
	DueDate         string           `json:"due_date,omitempty"`
	Counterparty    counterpartyView `json:"counterparty"`
	Tags            []string         `json:"tags"`
	Notes           string           `json:"notes,omitempty"`
	InvoiceNumber   string           `json:"invoice_number,omitempty"`
	PaymentMethod   string           `json:"payment_method,omitempty"`
	VATRate         float64          `json:"vat_rate"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func transactionToView(t core.Transaction) transactionView {
	v := transactionView{
		ID:              t.ID,
		OrganizationID:  t.OrganizationID,
		ProjectID:       t.ProjectID,
		Type:            string(t.Type),
		TypeLabel:       t.Type.Label(),
		Amount:          money(t.Amount),
		Description:     t.Description,
		CategoryID:      t.CategoryID,
		Status:          string(t.Status),
		StatusLabel:     t.Status.Label(),
		StatusColor:     t.Status.Color(),
		Certainty:       string(t.Certainty),
		CertaintyLabel:  t.Certainty.Label(),
		TransactionDate: t.TransactionDate.Format(dayLayout),
		Counterparty: counterpartyView{
			Name:  t.Counterparty.Name,
			Type:  t.Counterparty.Type,
			Email: t.Counterparty.Email,
			Phone: t.Counterparty.Phone,
			SIRET: t.Counterparty.SIRET,
		},
		Tags:          t.Tags,
		Notes:         t.Notes,
		InvoiceNumber: t.InvoiceNumber,
		PaymentMethod: t.PaymentMethod,
		VATRate:       t.VATRate,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if v.Tags == nil {
		v.Tags = []string{}
	}
	if !t.DueDate.IsZero() {
		v.DueDate = t.DueDate.Format(dayLayout)
	}
	if t.VATRate > 0 {
		vat, ttc := money(core.VAT(t.Amount, t.VATRate)), money(core.AmountTTC(t.Amount, t.VATRate))
		v.VAT, v.AmountTTC = &vat, &ttc
	}
	return v
}

type categoryView struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	AccountingCode string    `json:"accounting_code,omitempty"`
	BudgetedAmount moneyView `json:"budgeted_amount"`
	Color          string    `json:"color,omitempty"`
}

func categoryToView(c core.BudgetCategory) categoryView {
	return categoryView{
		ID:             c.ID,
		ProjectID:      c.ProjectID,
		Name:           c.Name,
		Type:           string(c.Type),
		AccountingCode: c.AccountingCode,
		BudgetedAmount: money(c.BudgetedAmount),
		Color:          c.Color,
	}
}

type projectView struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	FiscalYear     int    `json:"fiscal_year"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	Status         string `json:"status,omitempty"`
}

func projectToView(p core.Project) projectView {
	return projectView{
		ID:             p.ID,
		OrganizationID: p.OrganizationID,
		Name:           p.Name,
		Description:    p.Description,
		FiscalYear:     p.FiscalYear,
		StartDate:      p.StartDate.Format(dayLayout),
		EndDate:        p.EndDate.Format(dayLayout),
		Status:         p.Status,
	}
}

type organizationView struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Currency             string  `json:"currency"`
	BudgetAlertThreshold float64 `json:"budget_alert_threshold"`
}

type tierView struct {
	Revenues moneyView `json:"revenues"`
	Expenses moneyView `json:"expenses"`
	Balance  moneyView `json:"balance"`
}

func tier(t stats.TierTotals) tierView {
	return tierView{Revenues: money(t.Revenues), Expenses: money(t.Expenses), Balance: money(t.Balance)}
}

type statisticsView struct {
	Total         int       `json:"total"`
	TotalRevenues moneyView `json:"total_revenues"`
	TotalExpenses moneyView `json:"total_expenses"`
	Balance       moneyView `json:"balance"`
	Confirmed     tierView  `json:"confirmed"`
	Probable      tierView  `json:"probable"`
	Potential     tierView  `json:"potential"`
}

type breakdownRowView struct {
	CategoryID   string    `json:"category_id"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Color        string    `json:"color,omitempty"`
	Total        moneyView `json:"total"`
	Count        int       `json:"count"`
	Budgeted     moneyView `json:"budgeted"`
	UsedPercent  float64   `json:"used_percent"`
	Usage        string    `json:"usage"`
	IsOverBudget bool      `json:"is_over_budget"`
}

type spendingView struct {
	CategoryID string    `json:"category_id"`
	Spent      moneyView `json:"spent"`
	Budgeted   moneyView `json:"budgeted"`
	Remaining  moneyView `json:"remaining"`
	Percentage float64   `json:"percentage"`
}

type rollupView struct {
	TotalBudget       moneyView `json:"total_budget"`
	TotalExpenses     moneyView `json:"total_expenses"`
	BudgetRemaining   moneyView `json:"budget_remaining"`
	BudgetUsedPercent float64   `json:"budget_used_percent"`
	Usage             string    `json:"usage"`
}

type mixView struct {
	Confirmed float64 `json:"confirmed"`
	Probable  float64 `json:"probable"`
	Potential float64 `json:"potential"`
}

type alertView struct {
	CategoryID   string    `json:"category_id,omitempty"`
	CategoryName string    `json:"category_name,omitempty"`
	UsedPercent  float64   `json:"used_percent"`
	Overrun      moneyView `json:"overrun"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
}

type breakdownView struct {
	CategoryBreakdown []breakdownRowView `json:"category_breakdown"`
	CategorySpending  []spendingView     `json:"category_spending"`
	BudgetRollup      rollupView         `json:"budget_rollup"`
}

type reportView struct {
	OrganizationID string         `json:"organization_id"`
	ProjectID      string         `json:"project_id"`
	GeneratedAt    time.Time      `json:"generated_at"`
	Statistics     statisticsView `json:"statistics"`
	breakdownView
	CertaintyMix mixView     `json:"certainty_mix"`
	Alerts       []alertView `json:"alerts"`
}

func breakdownToView(r services.ProjectReport) breakdownView {
	v := breakdownView{
		CategoryBreakdown: make([]breakdownRowView, 0, len(r.CategoryBreakdown)),
		CategorySpending:  make([]spendingView, 0, len(r.CategorySpending)),
		BudgetRollup: rollupView{
			TotalBudget:       money(r.BudgetRollup.TotalBudget),
			TotalExpenses:     money(r.BudgetRollup.TotalExpenses),
			BudgetRemaining:   money(r.BudgetRollup.BudgetRemaining),
			BudgetUsedPercent: r.BudgetRollup.BudgetUsedPercent,
			Usage:             string(stats.UsageLevel(r.BudgetRollup.BudgetUsedPercent)),
		},
	}
	for _, row := range r.CategoryBreakdown {
		v.CategoryBreakdown = append(v.CategoryBreakdown, breakdownRowView{
			CategoryID:   row.Category.ID,
			Name:         row.Category.Name,
			Type:         string(row.Category.Type),
			Color:        row.Category.Color,
			Total:        money(row.Total),
			Count:        row.Count,
			Budgeted:     money(row.Budgeted),
			UsedPercent:  row.UsedPercent,
			Usage:        string(stats.UsageLevel(row.UsedPercent)),
			IsOverBudget: row.IsOverBudget,
		})
	}
	for _, s := range r.CategorySpending {
		v.CategorySpending = append(v.CategorySpending, spendingView{
			CategoryID: s.CategoryID,
			Spent:      money(s.Spent),
			Budgeted:   money(s.Budgeted),
			Remaining:  money(s.Remaining),
			Percentage: s.Percentage,
		})
	}
	return v
}

func reportToView(r services.ProjectReport) reportView {
	s := r.Statistics
	v := reportView{
		OrganizationID: r.OrganizationID,
		ProjectID:      r.ProjectID,
		GeneratedAt:    r.GeneratedAt,
		Statistics: statisticsView{
			Total:         s.Total,
			TotalRevenues: money(s.TotalRevenues),
			TotalExpenses: money(s.TotalExpenses),
			Balance:       money(s.Balance),
			Confirmed:     tier(s.Confirmed),
			Probable:      tier(s.Probable),
			Potential:     tier(s.Potential),
		},
		breakdownView: breakdownToView(r),
		CertaintyMix: mixView{
			Confirmed: r.CertaintyMix.Confirmed,
			Probable:  r.CertaintyMix.Probable,
			Potential: r.CertaintyMix.Potential,
		},
		Alerts: make([]alertView, 0, len(r.Alerts)),
	}
	for _, a := range r.Alerts {
		v.Alerts = append(v.Alerts, alertView{
			CategoryID:   a.CategoryID,
			CategoryName: a.CategoryName,
			UsedPercent:  a.UsedPercent,
			Overrun:      money(a.Overrun),
			Severity:     a.Severity,
			Message:      a.String(),
		})
	}
	return v
}
