// Package http provides HTTP server and handler implementations.
//
// This file parses transaction payloads sent either as JSON or as
// form-encoded bodies.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"treso/internal/core"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

var errEmptyBody = errors.New("empty request body")

// RequestBodyParser reads a JSON object or a form-encoded body once and
// exposes its fields as strings.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{contentType: r.Header.Get("Content-Type")}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = fmt.Errorf("request body larger than %d bytes", maxBodyBytes)
	}
	return p
}

// Parse decodes the body. Bodies starting with '{' are JSON, anything else
// is treated as a form.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true
	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.err = errEmptyBody
		return p.err
	}
	if trimmed[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("invalid JSON: %w", err)
		}
		return p.err
	}
	if trimmed[0] == '[' {
		p.err = errors.New("expected a JSON object")
		return p.err
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Get returns the sanitized value of key, or "" when absent.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	return p.formData != nil && p.formData.Has(key)
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue flattens JSON scalars, and arrays of scalars joined by commas.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return ""
	}
}

// sanitizeInput trims and drops control characters other than tab and
// newlines.
func sanitizeInput(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s))
}

// parseTransaction builds a transaction from a parsed body. Missing
// certainty means confirmed; missing status is left for the service to
// default. Field errors wrap the matching core sentinel.
func parseTransaction(p *RequestBodyParser) (core.Transaction, error) {
	tx := core.Transaction{
		Type:          core.TransactionType(strings.ToLower(p.Get("type"))),
		Description:   p.Get("description"),
		CategoryID:    p.Get("category_id"),
		Status:        core.TransactionStatus(p.Get("status")),
		Certainty:     core.Certainty(strings.ToLower(p.Get("certainty"))),
		Notes:         p.Get("notes"),
		InvoiceNumber: p.Get("invoice_number"),
		PaymentMethod: p.Get("payment_method"),
		Counterparty: core.Counterparty{
			Name:  p.Get("counterparty_name"),
			Type:  p.Get("counterparty_type"),
			Email: p.Get("counterparty_email"),
			Phone: p.Get("counterparty_phone"),
			SIRET: p.Get("counterparty_siret"),
		},
		Tags: splitTags(p.Get("tags")),
	}
	if tx.Certainty == "" {
		tx.Certainty = core.Confirmed
	}

	cents, err := parseAmount(p)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.Amount = core.Money{Cents: cents}

	if tx.TransactionDate, err = parseDay(p.Get("transaction_date")); err != nil {
		return core.Transaction{}, fmt.Errorf("transaction_date: %w", err)
	}
	if v := p.Get("due_date"); v != "" {
		if tx.DueDate, err = parseDay(v); err != nil {
			return core.Transaction{}, fmt.Errorf("due_date: %w", err)
		}
	}

	if v := p.Get("vat_rate"); v != "" {
		rate, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return core.Transaction{}, core.ErrInvalidVATRate
		}
		tx.VATRate = rate
	}
	return tx, nil
}

// parseAmount prefers amount_cents, then a decimal amount such as "12,50".
func parseAmount(p *RequestBodyParser) (int64, error) {
	if p.Has("amount_cents") {
		cents, err := strconv.ParseInt(p.Get("amount_cents"), 10, 64)
		if err != nil || cents <= 0 {
			return 0, core.ErrInvalidAmount
		}
		return cents, nil
	}
	return core.ParseDecimalToCents(p.Get("amount"))
}

// parseBudget prefers budgeted_amount_cents, then a decimal
// budgeted_amount. Zero is a valid budget.
func parseBudget(p *RequestBodyParser) (int64, error) {
	if p.Has("budgeted_amount_cents") {
		cents, err := strconv.ParseInt(p.Get("budgeted_amount_cents"), 10, 64)
		if err != nil {
			return 0, core.ErrInvalidAmount
		}
		if cents < 0 {
			return 0, core.ErrNegativeBudget
		}
		return cents, nil
	}
	return core.ParseBudgetToCents(p.Get("budgeted_amount"))
}

func parseOrganization(p *RequestBodyParser) (core.Organization, error) {
	org := core.Organization{
		Name:     p.Get("name"),
		Currency: strings.ToUpper(p.Get("currency")),
	}
	if v := p.Get("budget_alert_threshold"); v != "" {
		threshold, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", "."), 64)
		if err != nil {
			return core.Organization{}, core.ErrInvalidThreshold
		}
		org.BudgetAlertThreshold = threshold
	}
	return org, nil
}

// parseProject reads a project. A missing fiscal year is taken from the
// start date.
func parseProject(p *RequestBodyParser) (core.Project, error) {
	proj := core.Project{
		Name:        p.Get("name"),
		Description: p.Get("description"),
		Status:      strings.ToLower(p.Get("status")),
	}
	var err error
	if proj.StartDate, err = parseDay(p.Get("start_date")); err != nil {
		return core.Project{}, fmt.Errorf("start_date: %w", err)
	}
	if proj.EndDate, err = parseDay(p.Get("end_date")); err != nil {
		return core.Project{}, fmt.Errorf("end_date: %w", err)
	}
	proj.FiscalYear = proj.StartDate.Year()
	if v := p.Get("fiscal_year"); v != "" {
		if proj.FiscalYear, err = strconv.Atoi(v); err != nil {
			return core.Project{}, core.ErrInvalidFiscalYear
		}
	}
	return proj, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, core.ErrInvalidDate
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, core.ErrInvalidDate
	}
	return t, nil
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
