package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Customer holds the financial profile the credit tools operate on.
// Prediction follows the scoring model convention: 1 means high credit
// risk, 0 means low.
type Customer struct {
	ID             string  `json:"customer_id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Age            int     `json:"age"`
	Income         float64 `json:"income"`
	Balance        float64 `json:"balance"`
	TotalAssets    float64 `json:"total_assets"`
	CreditScore    int     `json:"credit_score"`
	Prediction     int     `json:"prediction"`
	PaymentHistory string  `json:"payment_history"`
}

// Directory resolves customer ids to profiles.
type Directory interface {
	Lookup(ctx context.Context, customerID string) (Customer, bool, error)
}

// StaticDirectory serves a fixed set of customers, for demos and tests.
type StaticDirectory struct {
	customers map[string]Customer
}

func NewStaticDirectory(customers ...Customer) *StaticDirectory {
	d := &StaticDirectory{customers: make(map[string]Customer, len(customers))}
	for _, c := range customers {
		d.customers[c.ID] = c
	}
	return d
}

func (d *StaticDirectory) Lookup(_ context.Context, customerID string) (Customer, bool, error) {
	c, ok := d.customers[strings.TrimSpace(customerID)]
	return c, ok, nil
}

// SampleDirectory returns a small demo dataset.
func SampleDirectory() *StaticDirectory {
	return NewStaticDirectory(
		Customer{
			ID: "93486", Name: "Jane Holloway", Email: "jane@bank.com",
			Age: 42, Income: 88000, Balance: 1250.75, TotalAssets: 310000,
			CreditScore: 598, Prediction: 1, PaymentHistory: "3 late payments in the last 12 months",
		},
		Customer{
			ID: "20571", Name: "Marcus Lee", Email: "marcus.lee@example.com",
			Age: 35, Income: 102000, Balance: 18400.00, TotalAssets: 450000,
			CreditScore: 755, Prediction: 0, PaymentHistory: "no missed payments",
		},
		Customer{
			ID: "48112", Name: "Priya Nair", Email: "priya.nair@example.com",
			Age: 29, Income: 64000, Balance: 5200.50, TotalAssets: 92000,
			CreditScore: 689, Prediction: 0, PaymentHistory: "1 late payment two years ago",
		},
	)
}

// CustomerDetailsTool retrieves a customer's financials and risk
// indicators by customer id.
type CustomerDetailsTool struct {
	dir Directory
}

func NewCustomerDetailsTool(dir Directory) *CustomerDetailsTool {
	return &CustomerDetailsTool{dir: dir}
}

func (t *CustomerDetailsTool) Name() string { return "get_customer_details" }

func (t *CustomerDetailsTool) Description() string {
	return "Retrieves customer details, financials, transaction history and risk indicators for a given customer ID."
}

func (t *CustomerDetailsTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"customer_id": map[string]any{
				"type":        "string",
				"description": "The customer ID to look up.",
			},
		},
		"required": []string{"customer_id"},
	}
}

func (t *CustomerDetailsTool) Call(ctx context.Context, args map[string]any) (string, error) {
	cid := stringArg(args, "customer_id")
	if cid == "" {
		return "", fmt.Errorf("customer_id is required")
	}
	c, ok, err := t.dir.Lookup(ctx, cid)
	if err != nil {
		return "", fmt.Errorf("lookup customer %s: %w", cid, err)
	}
	if !ok {
		return fmt.Sprintf("Customer %s is not present in the system.", cid), nil
	}
	body, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode customer %s: %w", cid, err)
	}
	return string(body), nil
}

// RiskReportTool renders a credit risk decision report for a customer.
type RiskReportTool struct {
	dir Directory
}

func NewRiskReportTool(dir Directory) *RiskReportTool {
	return &RiskReportTool{dir: dir}
}

func (t *RiskReportTool) Name() string { return "credit_risk_report_generator" }

func (t *RiskReportTool) Description() string {
	return "Generates a credit risk report based on the customer details retrieved."
}

func (t *RiskReportTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"customer_id": map[string]any{
				"type":        "string",
				"description": "The customer ID to generate a report for.",
			},
		},
		"required": []string{"customer_id"},
	}
}

func (t *RiskReportTool) Call(ctx context.Context, args map[string]any) (string, error) {
	cid := stringArg(args, "customer_id")
	if cid == "" {
		return "", fmt.Errorf("customer_id is required")
	}
	c, ok, err := t.dir.Lookup(ctx, cid)
	if err != nil {
		return "", fmt.Errorf("lookup customer %s: %w", cid, err)
	}
	if !ok {
		return fmt.Sprintf("Customer %s is not present in the system.", cid), nil
	}

	risk := "low credit risk"
	recommendation := "Approve within standard lending limits."
	if c.Prediction == 1 {
		risk = "high credit risk"
		recommendation = "Escalate for manual review before extending further credit."
	}

	return fmt.Sprintf(
		"Credit Risk Report for customer %s (%s)\nRisk outcome: %s\nCredit score: %d\nIncome: $%.2f\nBalance: $%.2f\nTotal assets: $%.2f\nPayment history: %s\nRecommendation: %s",
		c.ID, c.Name, risk, c.CreditScore, c.Income, c.Balance, c.TotalAssets, c.PaymentHistory, recommendation,
	), nil
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSuffix(fmt.Sprintf("%.0f", v), ".")
	default:
		return ""
	}
}
