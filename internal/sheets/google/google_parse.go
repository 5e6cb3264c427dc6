package google

import (
	"fmt"
	"strings"

	"treso/internal/core"
)

var headerAliases = map[string][]string{
	"project":  {"project", "projet"},
	"category": {"category", "catégorie", "categorie"},
	"type":     {"type"},
	"code":     {"code", "code comptable", "accounting code"},
	"budget":   {"budget", "budget prévu", "budgeted"},
}

// parseBudgetSheet converts a values matrix whose first row holds the
// Project, Category, Type, Code and Budget headers (in any order, English or
// French) into budget categories. It returns the number of data rows that
// were skipped. A later row for the same project and category replaces the
// earlier one in place.
func parseBudgetSheet(values [][]interface{}) ([]core.BudgetCategory, int, error) {
	if len(values) == 0 {
		return nil, 0, nil
	}
	headers := toStrings(values[0])
	col := make(map[string]int, len(headerAliases))
	var missing []string
	for _, key := range []string{"project", "category", "type", "code", "budget"} {
		col[key] = indexOfAny(headers, headerAliases[key])
		if col[key] == -1 && key != "code" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("unexpected budget header: missing %s; got headers=%v", strings.Join(missing, ","), headers)
	}

	var out []core.BudgetCategory
	index := make(map[string]int)
	skipped := 0
	for i := 1; i < len(values); i++ {
		row := toStrings(values[i])
		project := safeGet(row, col["project"])
		name := safeGet(row, col["category"])
		if project == "" && name == "" {
			continue
		}
		typ, ok := parseType(safeGet(row, col["type"]))
		cents, err := parseBudgetCell(safeGet(row, col["budget"]))
		if project == "" || len([]rune(name)) < 2 || !ok || err != nil {
			skipped++
			continue
		}
		c := core.BudgetCategory{
			ID:             core.CategoryID(project, name),
			ProjectID:      project,
			Name:           name,
			Type:           typ,
			AccountingCode: safeGet(row, col["code"]),
			BudgetedAmount: core.Money{Cents: cents},
			Color:          defaultColor(name),
		}
		if j, dup := index[c.ID]; dup {
			out[j] = c
			continue
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	return out, skipped, nil
}

func parseType(s string) (core.TransactionType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "dépense", "depense", "charge", "charges":
		return core.Expense, true
	case "revenue", "recette", "produit", "produits":
		return core.Revenue, true
	}
	return "", false
}

// parseBudgetCell accepts "1234.56", "1 234,56 €", "1.234,56" and "1,234.56".
// An empty cell is a zero budget.
func parseBudgetCell(s string) (int64, error) {
	s = strings.NewReplacer("€", "", " ", "", "\u00a0", "", "\u202f", "").Replace(s)
	if s == "" {
		return 0, nil
	}
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		s = strings.ReplaceAll(s, ".", "")
	case dot >= 0 && comma >= 0:
		s = strings.ReplaceAll(s, ",", "")
	}
	return core.ParseBudgetToCents(s)
}

func defaultColor(name string) string {
	for _, t := range core.DefaultCategories() {
		if strings.EqualFold(t.Name, name) {
			return t.Color
		}
	}
	return ""
}

func indexOfAny(headers []string, names []string) int {
	for i, h := range headers {
		for _, n := range names {
			if strings.EqualFold(strings.TrimSpace(h), n) {
				return i
			}
		}
	}
	return -1
}
