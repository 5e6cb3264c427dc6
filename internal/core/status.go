package core

// TransactionStatus tracks where a transaction is in its lifecycle. Expense
// and revenue statuses are disjoint; Cancelled applies to both.
type TransactionStatus string

const (
	RevenueVerbalPromise   TransactionStatus = "revenue_verbal_promise"
	RevenueApplicationSent TransactionStatus = "revenue_application_sent"
	RevenueConfirmed       TransactionStatus = "revenue_confirmed"
	RevenueReceived        TransactionStatus = "revenue_received"

	ExpenseQuoteRequested    TransactionStatus = "expense_quote_requested"
	ExpenseQuoteReceived     TransactionStatus = "expense_quote_received"
	ExpensePurchaseOrderSent TransactionStatus = "expense_purchase_order_sent"
	ExpenseInvoiceReceived   TransactionStatus = "expense_invoice_received"
	ExpensePaid              TransactionStatus = "expense_paid"

	Cancelled TransactionStatus = "cancelled"
)

type statusInfo struct {
	label string
	color string
}

var (
	expenseStatuses = []TransactionStatus{
		ExpenseQuoteRequested, ExpenseQuoteReceived, ExpensePurchaseOrderSent, ExpenseInvoiceReceived, ExpensePaid,
	}
	revenueStatuses = []TransactionStatus{
		RevenueVerbalPromise, RevenueApplicationSent, RevenueConfirmed, RevenueReceived,
	}

	statusInfos = map[TransactionStatus]statusInfo{
		ExpenseQuoteRequested:    {"Devis demandé", "#6b7280"},
		ExpenseQuoteReceived:     {"Devis reçu", "#f59e0b"},
		ExpensePurchaseOrderSent: {"Bon de commande envoyé", "#3b82f6"},
		ExpenseInvoiceReceived:   {"Facture reçue", "#8b5cf6"},
		ExpensePaid:              {"Payé", "#10b981"},
		RevenueVerbalPromise:     {"Promesse verbale", "#6b7280"},
		RevenueApplicationSent:   {"Demande envoyée", "#f59e0b"},
		RevenueConfirmed:         {"Confirmé", "#3b82f6"},
		RevenueReceived:          {"Encaissé", "#10b981"},
		Cancelled:                {"Annulé", "#ef4444"},
	}
)

// StatusesFor returns the lifecycle of the given type in order.
func StatusesFor(t TransactionType) []TransactionStatus {
	switch t {
	case Expense:
		return append([]TransactionStatus(nil), expenseStatuses...)
	case Revenue:
		return append([]TransactionStatus(nil), revenueStatuses...)
	}
	return nil
}

// AllowedFor reports whether s can be used on a transaction of type t.
func (s TransactionStatus) AllowedFor(t TransactionType) bool {
	if s == Cancelled {
		return t.IsValid()
	}
	for _, v := range StatusesFor(t) {
		if v == s {
			return true
		}
	}
	return false
}

// DefaultStatus is the first step of the lifecycle for t.
func DefaultStatus(t TransactionType) TransactionStatus {
	if t == Revenue {
		return RevenueVerbalPromise
	}
	return ExpenseQuoteRequested
}

func (s TransactionStatus) Label() string {
	if info, ok := statusInfos[s]; ok {
		return info.label
	}
	return string(s)
}

func (s TransactionStatus) Color() string {
	if info, ok := statusInfos[s]; ok {
		return info.color
	}
	return "#6b7280"
}
