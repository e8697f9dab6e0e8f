package scan

import (
	"errors"
	"testing"

	"github.com/welthhq/welth/internal/domain"
)

func TestDecodeReceiptJSON(t *testing.T) {
	valid := `{"amount": 42.50, "date": "2024-06-10", "description": "Lunch", "merchantName": "Cafe Roma", "category": "food"}`

	t.Run("plain JSON", func(t *testing.T) {
		r, err := decodeReceiptJSON(valid)
		if err != nil {
			t.Fatal(err)
		}
		if r.Amount.StringFixed(2) != "42.50" {
			t.Errorf("amount = %s", r.Amount)
		}
		if r.MerchantName != "Cafe Roma" {
			t.Errorf("merchant = %q", r.MerchantName)
		}
		if r.Date.Year() != 2024 {
			t.Errorf("date = %v", r.Date)
		}
	})

	t.Run("fenced JSON", func(t *testing.T) {
		r, err := decodeReceiptJSON("```json\n" + valid + "\n```")
		if err != nil {
			t.Fatal(err)
		}
		if r.Category != "food" {
			t.Errorf("category = %q", r.Category)
		}
	})

	t.Run("JSON surrounded by prose", func(t *testing.T) {
		if _, err := decodeReceiptJSON("Here is the data:\n" + valid + "\nHope this helps!"); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("RFC3339 date", func(t *testing.T) {
		r, err := decodeReceiptJSON(`{"amount": 10, "date": "2024-06-10T14:30:00Z"}`)
		if err != nil {
			t.Fatal(err)
		}
		if r.Date.Hour() != 14 {
			t.Errorf("date = %v", r.Date)
		}
	})

	tests := []struct {
		name string
		raw  string
	}{
		{"not a receipt returns empty object", `{}`},
		{"missing amount", `{"date": "2024-06-10"}`},
		{"missing date", `{"amount": 10}`},
		{"negative amount", `{"amount": -5, "date": "2024-06-10"}`},
		{"unparsable date", `{"amount": 10, "date": "June tenth"}`},
		{"malformed JSON", `{"amount": 10,`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeReceiptJSON(tt.raw)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestDecodeInsightsJSON(t *testing.T) {
	t.Run("valid array", func(t *testing.T) {
		got := decodeInsightsJSON(`["a", "b", "c"]`)
		if len(got) != 3 || got[0] != "a" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("fenced array", func(t *testing.T) {
		got := decodeInsightsJSON("```json\n[\"x\"]\n```")
		if len(got) != 1 || got[0] != "x" {
			t.Errorf("got %v", got)
		}
	})

	t.Run("garbage falls back", func(t *testing.T) {
		got := decodeInsightsJSON("I could not produce insights today.")
		if len(got) != len(defaultInsights) {
			t.Errorf("expected fallback insights, got %v", got)
		}
	})

	t.Run("empty array falls back", func(t *testing.T) {
		got := decodeInsightsJSON(`[]`)
		if len(got) != len(defaultInsights) {
			t.Errorf("expected fallback insights, got %v", got)
		}
	})
}
