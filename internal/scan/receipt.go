// Package scan wraps the Gemini API for the two generative features:
// receipt extraction and monthly-report insights. Model output is free
// text, so every decode is defensive: insights degrade to fixed fallback
// strings, receipts fail with a Validation error when the extracted data
// is unusable (no amount or date).
package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/welthhq/welth/internal/domain"
)

// Receipt is the structured result of scanning a receipt image.
type Receipt struct {
	Amount       decimal.Decimal
	Date         time.Time
	Description  string
	MerchantName string
	Category     string
}

// ReceiptScanner extracts receipt data from an image.
type ReceiptScanner interface {
	ScanReceipt(ctx context.Context, image []byte, mimeType string) (*Receipt, error)
}

// GeminiScanner is the Gemini-backed ReceiptScanner and InsightGenerator.
// The client reads GEMINI_API_KEY from the environment.
type GeminiScanner struct {
	model string
}

// NewGeminiScanner creates a scanner using the given model name.
func NewGeminiScanner(model string) *GeminiScanner {
	return &GeminiScanner{model: model}
}

var _ ReceiptScanner = (*GeminiScanner)(nil)

const receiptPrompt = `Analyze this receipt image and extract the following information in JSON format:
- Total amount (just the number)
- Date (in ISO format)
- Description or items purchased (brief summary)
- Merchant/store name
- Suggested category (one of: housing,transportation,groceries,utilities,entertainment,food,shopping,healthcare,education,personal,travel,insurance,gifts,bills,other-expense)

Only respond with valid JSON in this exact format:
{
  "amount": number,
  "date": "ISO date string",
  "description": "string",
  "merchantName": "string",
  "category": "string"
}

If it is not a receipt, return an empty object.
Return ONLY raw JSON. Do NOT wrap the response in code fences.`

// ScanReceipt sends the image to Gemini and decodes the response.
func (s *GeminiScanner) ScanReceipt(ctx context.Context, image []byte, mimeType string) (*Receipt, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %v", domain.ErrExternalService, err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     image,
					},
				},
				{Text: receiptPrompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generate content: %v", domain.ErrExternalService, err)
	}

	return decodeReceiptJSON(resp.Text())
}

// decodeReceiptJSON parses the model's text output. An empty object means
// the image is not a receipt; missing amount or date makes the result
// unusable. Both are Validation errors the caller surfaces to the user.
func decodeReceiptJSON(raw string) (*Receipt, error) {
	clean := cleanModelJSON(raw)
	if clean == "" {
		return nil, fmt.Errorf("%w: empty response from model", domain.ErrExternalService)
	}

	var payload struct {
		Amount       json.Number `json:"amount"`
		Date         string      `json:"date"`
		Description  string      `json:"description"`
		MerchantName string      `json:"merchantName"`
		Category     string      `json:"category"`
	}
	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: could not read receipt: %v", domain.ErrValidation, err)
	}

	if payload.Amount == "" || payload.Date == "" {
		return nil, fmt.Errorf("%w: image does not contain a readable receipt", domain.ErrValidation)
	}

	amount, err := decimal.NewFromString(payload.Amount.String())
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("%w: receipt amount %q is not usable", domain.ErrValidation, payload.Amount)
	}

	date, err := parseReceiptDate(payload.Date)
	if err != nil {
		return nil, fmt.Errorf("%w: receipt date %q is not usable", domain.ErrValidation, payload.Date)
	}

	return &Receipt{
		Amount:       amount,
		Date:         date,
		Description:  payload.Description,
		MerchantName: payload.MerchantName,
		Category:     payload.Category,
	}, nil
}

func parseReceiptDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format %q", s)
}

// cleanModelJSON strips Markdown fences and surrounding junk the model
// sometimes emits despite instructions, keeping the outermost JSON object.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
