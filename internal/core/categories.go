package core

import (
	"strings"

	"github.com/google/uuid"
)

var categoryNamespace = uuid.MustParse("6f1c9a52-3b8e-4d8a-9f3e-2a7c4b1d0e55")

// CategoryID derives a stable id from a project and a category name, so a
// budget import lands on the seeded category of the same name.
func CategoryID(projectID, name string) string {
	key := projectID + "\x00" + strings.ToLower(strings.TrimSpace(name))
	return uuid.NewSHA1(categoryNamespace, []byte(key)).String()
}

// CategoryTemplate describes a default budget line of the association chart
// of accounts. A project copies these with its own ids and budgets.
type CategoryTemplate struct {
	Name           string
	Type           TransactionType
	AccountingCode string
	Color          string
}

var DefaultExpenseCategories = []CategoryTemplate{
	{"Publicité, publications, relations publiques", Expense, "6234", "#ef4444"},
	{"Transports sur achats", Expense, "6241", "#f59e0b"},
	{"Réceptions", Expense, "6257", "#f97316"},
	{"Achats de marchandises", Expense, "607", "#eab308"},
	{"Fournitures administratives", Expense, "6064", "#84cc16"},
	{"Location immobilière", Expense, "6132", "#22c55e"},
	{"Location mobilière", Expense, "6135", "#10b981"},
	{"Maintenance et entretien", Expense, "615", "#14b8a6"},
	{"Assurances", Expense, "616", "#06b6d4"},
	{"Honoraires", Expense, "622", "#0ea5e9"},
	{"Frais postaux et télécommunications", Expense, "626", "#3b82f6"},
	{"Services bancaires", Expense, "627", "#6366f1"},
	{"Cotisations professionnelles", Expense, "6281", "#8b5cf6"},
	{"Salaires et traitements", Expense, "641", "#a855f7"},
	{"Charges sociales", Expense, "645", "#c026d3"},
	{"Autres charges de gestion courante", Expense, "658", "#d946ef"},
}

var DefaultRevenueCategories = []CategoryTemplate{
	{"Cotisations membres", Revenue, "706", "#10b981"},
	{"Dons et mécénat", Revenue, "708", "#14b8a6"},
	{"Subventions d'exploitation - État", Revenue, "7411", "#06b6d4"},
	{"Subventions d'exploitation - Région", Revenue, "7412", "#0ea5e9"},
	{"Subventions d'exploitation - Département", Revenue, "7413", "#3b82f6"},
	{"Subventions d'exploitation - Commune", Revenue, "7414", "#6366f1"},
	{"Subventions d'exploitation - Organismes internationaux", Revenue, "7415", "#8b5cf6"},
	{"Subventions d'exploitation - Autres", Revenue, "7417", "#a855f7"},
	{"Ventes de prestations de services", Revenue, "706", "#22c55e"},
	{"Ventes de marchandises", Revenue, "707", "#84cc16"},
	{"Produits financiers", Revenue, "76", "#eab308"},
	{"Autres produits de gestion courante", Revenue, "758", "#f59e0b"},
}

// DefaultCategories returns expense then revenue templates.
func DefaultCategories() []CategoryTemplate {
	out := make([]CategoryTemplate, 0, len(DefaultExpenseCategories)+len(DefaultRevenueCategories))
	out = append(out, DefaultExpenseCategories...)
	return append(out, DefaultRevenueCategories...)
}

// NewCategory instantiates a template for a project with no budget set.
func (t CategoryTemplate) NewCategory(projectID string) BudgetCategory {
	return BudgetCategory{
		ID:             CategoryID(projectID, t.Name),
		ProjectID:      projectID,
		Name:           t.Name,
		Type:           t.Type,
		AccountingCode: t.AccountingCode,
		Color:          t.Color,
	}
}
