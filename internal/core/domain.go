package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Revenue TransactionType = "revenue"
)

const (
	Confirmed Certainty = "confirmed"
	Probable  Certainty = "probable"
	Potential Certainty = "potential"
)

// Certainties lists the tiers from most to least certain.
var Certainties = []Certainty{Confirmed, Probable, Potential}

type (
	TransactionType string

	// Certainty is the confidence tier of a transaction.
	Certainty string

	Counterparty struct {
		Name  string
		Type  string // supplier, sponsor, grant, individual, other
		Email string
		Phone string
		SIRET string
	}

	Transaction struct {
		ID              string
		OrganizationID  string
		ProjectID       string
		Type            TransactionType
		Amount          Money
		Description     string
		CategoryID      string
		Status          TransactionStatus
		Certainty       Certainty
		TransactionDate time.Time
		DueDate         time.Time
		Counterparty    Counterparty
		Tags            []string
		Notes           string
		InvoiceNumber   string
		PaymentMethod   string
		VATRate         float64
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	BudgetCategory struct {
		ID             string
		ProjectID      string
		Name           string
		Type           TransactionType
		AccountingCode string
		BudgetedAmount Money
		Color          string
	}

	Project struct {
		ID             string
		OrganizationID string
		Name           string
		Description    string
		FiscalYear     int
		StartDate      time.Time
		EndDate        time.Time
		Status         string // draft, active, closed, archived
	}

	Organization struct {
		ID                   string
		Name                 string
		Currency             string
		BudgetAlertThreshold float64 // percentage, e.g. 80
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidType          = errors.New("invalid transaction type")
	ErrInvalidCertainty     = errors.New("invalid certainty")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrShortDescription     = errors.New("description must be at least 3 characters")
	ErrEmptyCategory        = errors.New("empty category")
	ErrEmptyProject         = errors.New("empty project")
	ErrShortCounterparty    = errors.New("counterparty name must be at least 2 characters")
	ErrInvalidEmail         = errors.New("invalid email")
	ErrInvalidVATRate       = errors.New("vat rate must be between 0 and 100")
	ErrInvalidDate          = errors.New("invalid date")
	ErrInvalidFiscalYear    = errors.New("fiscal year must be between 2000 and 2100")
	ErrShortName            = errors.New("name must be at least 2 characters")
	ErrNegativeBudget       = errors.New("budgeted amount cannot be negative")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidThreshold     = errors.New("alert threshold must be between 0 and 100")
	ErrInvalidCurrency      = errors.New("currency must be a 3-letter ISO code")
)

var (
	counterpartyTypes = map[string]bool{"supplier": true, "sponsor": true, "grant": true, "individual": true, "other": true}
	paymentMethods    = map[string]bool{"bank_transfer": true, "check": true, "cash": true, "card": true, "other": true}
	projectStatuses   = map[string]bool{"draft": true, "active": true, "closed": true, "archived": true}
)

func (t TransactionType) IsValid() bool {
	return t == Expense || t == Revenue
}

// Label returns the French label used on statements.
func (t TransactionType) Label() string {
	if t == Revenue {
		return "Recette"
	}
	return "Dépense"
}

func (c Certainty) IsValid() bool {
	switch c {
	case Confirmed, Probable, Potential:
		return true
	}
	return false
}

// Label returns the display label of the tier.
func (c Certainty) Label() string {
	switch c {
	case Confirmed:
		return "Certain"
	case Probable:
		return "Probable"
	case Potential:
		return "Hypothétique"
	}
	return string(c)
}

// Validate mirrors the transaction form schema. Optional fields are only
// checked when set.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ProjectID) == "" {
		return ErrEmptyProject
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if t.Amount.Cents <= 0 {
		return ErrInvalidAmount
	}
	if len([]rune(strings.TrimSpace(t.Description))) < 3 {
		return ErrShortDescription
	}
	if len(t.Description) > 500 {
		return errors.New("description too long (max 500 characters)")
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !t.Certainty.IsValid() {
		return ErrInvalidCertainty
	}
	if t.Status != "" && !t.Status.AllowedFor(t.Type) {
		return fmt.Errorf("%w: %q for %s", ErrInvalidStatus, t.Status, t.Type)
	}
	if t.TransactionDate.IsZero() {
		return ErrInvalidDate
	}
	if err := t.Counterparty.Validate(); err != nil {
		return err
	}
	if t.PaymentMethod != "" && !paymentMethods[t.PaymentMethod] {
		return ErrInvalidPaymentMethod
	}
	if t.VATRate < 0 || t.VATRate > 100 {
		return ErrInvalidVATRate
	}
	return nil
}

func (c Counterparty) Validate() error {
	if len([]rune(strings.TrimSpace(c.Name))) < 2 {
		return ErrShortCounterparty
	}
	if c.Type != "" && !counterpartyTypes[c.Type] {
		return fmt.Errorf("invalid counterparty type %q", c.Type)
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return ErrInvalidEmail
		}
	}
	if c.SIRET != "" && len(c.SIRET) != 14 {
		return errors.New("siret must contain 14 digits")
	}
	return nil
}

func (c BudgetCategory) Validate() error {
	if len([]rune(strings.TrimSpace(c.Name))) < 2 {
		return ErrShortName
	}
	if !c.Type.IsValid() {
		return ErrInvalidType
	}
	if c.BudgetedAmount.Cents < 0 {
		return ErrNegativeBudget
	}
	return nil
}

func (o Organization) Validate() error {
	if len([]rune(strings.TrimSpace(o.Name))) < 2 {
		return ErrShortName
	}
	if len(o.Currency) != 3 || strings.ToUpper(o.Currency) != o.Currency {
		return ErrInvalidCurrency
	}
	if o.BudgetAlertThreshold < 0 || o.BudgetAlertThreshold > 100 {
		return ErrInvalidThreshold
	}
	return nil
}

func (p Project) Validate() error {
	if len([]rune(strings.TrimSpace(p.Name))) < 2 {
		return ErrShortName
	}
	if p.FiscalYear < 2000 || p.FiscalYear > 2100 {
		return ErrInvalidFiscalYear
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return ErrInvalidDate
	}
	if p.EndDate.Before(p.StartDate) {
		return errors.New("end date must be after start date")
	}
	if p.Status != "" && !projectStatuses[p.Status] {
		return fmt.Errorf("invalid project status %q", p.Status)
	}
	return nil
}
