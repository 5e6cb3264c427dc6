package http

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"treso/internal/core"
)

func parserFor(body, contentType string) *RequestBodyParser {
	req := httptest.NewRequest("POST", "/", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return NewRequestBodyParser(req)
}

func TestRequestBodyParserJSON(t *testing.T) {
	p := parserFor(`{"description":"  Location\u0000 salle ","amount":12.5,"tags":["a","b"],"urgent":true}`, "application/json")
	if err := p.Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !p.IsJSON() {
		t.Fatalf("expected JSON body")
	}
	if got := p.Get("description"); got != "Location salle" {
		t.Fatalf("description=%q", got)
	}
	if got := p.Get("amount"); got != "12.5" {
		t.Fatalf("amount=%q", got)
	}
	if got := p.Get("tags"); got != "a,b" {
		t.Fatalf("tags=%q", got)
	}
	if got := p.Get("urgent"); got != "true" {
		t.Fatalf("urgent=%q", got)
	}
	if p.Has("missing") || p.Get("missing") != "" {
		t.Fatalf("missing key reported present")
	}
}

func TestRequestBodyParserForm(t *testing.T) {
	p := parserFor("description=Affiches&amount=30%2C00", "application/x-www-form-urlencoded")
	if err := p.Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.IsJSON() {
		t.Fatalf("form parsed as JSON")
	}
	if got := p.Get("amount"); got != "30,00" {
		t.Fatalf("amount=%q", got)
	}
	if !p.Has("description") {
		t.Fatalf("description missing")
	}
}

func TestRequestBodyParserRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "   "},
		{"array", `[1,2]`},
		{"broken json", `{"a":`},
		{"too large", `{"a":"` + strings.Repeat("x", maxBodyBytes) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := parserFor(tt.body, "application/json").Parse(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
	if err := parserFor("", "").Parse(); !errors.Is(err, errEmptyBody) {
		t.Fatalf("empty body err=%v", err)
	}
}

func TestParseTransaction(t *testing.T) {
	p := parserFor(`{
		"type":"Expense","amount":"1 250,00","description":"Sono",
		"category_id":"cat","transaction_date":"2025-07-14","due_date":"2025-08-01",
		"counterparty_name":"Son & Lumière","vat_rate":"5,5","tags":"fête, , son"
	}`, "application/json")
	if err := p.Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, err := parseTransaction(p)
	if !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("spaces in amount should be rejected, got %v", err)
	}

	p = parserFor(`{
		"type":"Expense","amount":"1250,00","description":"Sono",
		"category_id":"cat","transaction_date":"2025-07-14","due_date":"2025-08-01",
		"counterparty_name":"Son & Lumière","vat_rate":"5,5","tags":"fête, , son"
	}`, "application/json")
	if err := p.Parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}
	tx, err := parseTransaction(p)
	if err != nil {
		t.Fatalf("parseTransaction: %v", err)
	}
	if tx.Type != core.Expense || tx.Amount.Cents != 125000 {
		t.Fatalf("type=%s amount=%d", tx.Type, tx.Amount.Cents)
	}
	if tx.Certainty != core.Confirmed {
		t.Fatalf("certainty=%s", tx.Certainty)
	}
	if tx.VATRate != 5.5 {
		t.Fatalf("vat=%v", tx.VATRate)
	}
	if tx.DueDate.Day() != 1 || tx.TransactionDate.Month() != 7 {
		t.Fatalf("dates=%v %v", tx.TransactionDate, tx.DueDate)
	}
	if len(tx.Tags) != 2 || tx.Tags[1] != "son" {
		t.Fatalf("tags=%v", tx.Tags)
	}
}

func TestParseTransactionFieldErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing date", `{"amount":"10"}`, core.ErrInvalidDate},
		{"bad due date", `{"amount":"10","transaction_date":"2025-01-01","due_date":"tomorrow"}`, core.ErrInvalidDate},
		{"bad vat", `{"amount":"10","transaction_date":"2025-01-01","vat_rate":"abc"}`, core.ErrInvalidVATRate},
		{"negative cents", `{"amount_cents":"-5"}`, core.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := parserFor(tt.body, "application/json")
			if err := p.Parse(); err != nil {
				t.Fatalf("parse: %v", err)
			}
			if _, err := parseTransaction(p); !errors.Is(err, tt.want) {
				t.Fatalf("err=%v want %v", err, tt.want)
			}
		})
	}
}
