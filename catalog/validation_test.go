package catalog

import (
	"strings"
	"testing"

	"github.com/liamcoop/specetl/rules"
)

func validDocument() rules.Document {
	return rules.Document{
		ValidationRules: []rules.ValidationRuleDoc{
			{Column: "employee_id", Type: "unique"},
			{Column: "customer_satisfaction", Type: "range", Parameters: map[string]any{"min": 1.0, "max": 5.0}},
			{Column: "actual_sales", Type: "custom", Parameters: map[string]any{"expression": "value >= 0.0"}},
		},
		BusinessRules: []rules.BusinessRuleDoc{
			{Name: "sales_bonus", Formula: "df['actual_sales'] * bonus_rate", OutputColumn: "sales_bonus"},
			{Name: "total_bonus", Formula: "np.maximum(df['sales_bonus'], 0)", OutputColumn: "total_bonus"},
		},
		Constants: map[string]any{"bonus_rate": 0.1},
	}
}

// TestValidateSpecification_Valid verifies a well-formed document passes
func TestValidateSpecification_Valid(t *testing.T) {
	if err := ValidateSpecification(validDocument()); err != nil {
		t.Errorf("ValidateSpecification() failed: %v", err)
	}
}

// TestValidateSpecification_Empty verifies an empty document is acceptable
func TestValidateSpecification_Empty(t *testing.T) {
	if err := ValidateSpecification(rules.Document{}); err != nil {
		t.Errorf("ValidateSpecification() failed: %v", err)
	}
}

// TestValidateSpecification_Problems verifies each kind of problem is reported
func TestValidateSpecification_Problems(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*rules.Document)
		wantErr string
	}{
		{
			name:    "Constant with invalid characters",
			mutate:  func(d *rules.Document) { d.Constants["bonus-rate"] = 1.0 },
			wantErr: "bonus-rate",
		},
		{
			name:    "Constant starting with digit",
			mutate:  func(d *rules.Document) { d.Constants["1rate"] = 1.0 },
			wantErr: "must match pattern",
		},
		{
			name:    "Constant shadowing builtin",
			mutate:  func(d *rules.Document) { d.Constants["sum"] = 1.0 },
			wantErr: "reserved name",
		},
		{
			name:    "Constant named after frame",
			mutate:  func(d *rules.Document) { d.Constants["df"] = 1.0 },
			wantErr: "reserved name",
		},
		{
			name:    "Constant keyword",
			mutate:  func(d *rules.Document) { d.Constants["lambda"] = 1.0 },
			wantErr: "reserved name",
		},
		{
			name:    "Constant name too long",
			mutate:  func(d *rules.Document) { d.Constants[strings.Repeat("a", 101)] = 1.0 },
			wantErr: "exceeds maximum",
		},
		{
			name:    "Unknown rule type",
			mutate:  func(d *rules.Document) { d.ValidationRules[0].Type = "regex" },
			wantErr: "unknown rule type",
		},
		{
			name: "Range bounds reversed",
			mutate: func(d *rules.Document) {
				d.ValidationRules[1].Parameters = map[string]any{"min": 5.0, "max": 1.0}
			},
			wantErr: "greater than max",
		},
		{
			name: "Range bound not a number",
			mutate: func(d *rules.Document) {
				d.ValidationRules[1].Parameters = map[string]any{"min": "one"}
			},
			wantErr: "must be a number",
		},
		{
			name:    "Custom rule without expression",
			mutate:  func(d *rules.Document) { d.ValidationRules[2].Parameters = nil },
			wantErr: "expression",
		},
		{
			name: "Custom rule does not compile",
			mutate: func(d *rules.Document) {
				d.ValidationRules[2].Parameters = map[string]any{"expression": "value >>> 1"}
			},
			wantErr: "validation_rules[2]",
		},
		{
			name:    "Formula syntax error",
			mutate:  func(d *rules.Document) { d.BusinessRules[1].Formula = "df[[[" },
			wantErr: "business_rules[1]",
		},
		{
			name:    "Duplicate rule name",
			mutate:  func(d *rules.Document) { d.BusinessRules[1].Name = "sales_bonus" },
			wantErr: "already used",
		},
		{
			name: "Dependency on a later rule",
			mutate: func(d *rules.Document) {
				d.BusinessRules[0].Dependencies = []string{"actual_sales", "total_bonus"}
			},
			wantErr: `business_rules[0] (sales_bonus): dependency "total_bonus" is not produced until business_rules[1]`,
		},
		{
			name: "Dependency on own output",
			mutate: func(d *rules.Document) {
				d.BusinessRules[1].Dependencies = []string{"total_bonus"}
			},
			wantErr: `dependency "total_bonus" is not produced until business_rules[1]`,
		},
		{
			name: "Too many business rules",
			mutate: func(d *rules.Document) {
				for i := 0; i < MaxBusinessRules; i++ {
					d.BusinessRules = append(d.BusinessRules, rules.BusinessRuleDoc{
						Name: "r" + strings.Repeat("x", i), Formula: "1", OutputColumn: "c",
					})
				}
			},
			wantErr: "maximum allowed is 200",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			tt.mutate(&doc)

			err := ValidateSpecification(doc)
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

// TestValidateSpecification_ReportsAllProblems verifies problems are joined, not short-circuited
func TestValidateSpecification_ReportsAllProblems(t *testing.T) {
	doc := validDocument()
	doc.Constants["sum"] = 1.0
	doc.BusinessRules[0].Formula = "df[["

	err := ValidateSpecification(doc)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "sum") || !strings.Contains(msg, "business_rules[0]") {
		t.Errorf("Expected both problems, got: %v", err)
	}
}

// TestValidateSpecification_Dependencies verifies dependencies must be dataset
// columns or outputs of earlier rules
func TestValidateSpecification_Dependencies(t *testing.T) {
	columns := WithDatasetColumns("employee_id", "actual_sales", "customer_satisfaction")

	tests := []struct {
		name    string
		deps    []string
		opts    []LintOption
		wantErr string
	}{
		{"Earlier output", []string{"sales_bonus"}, nil, ""},
		{"Earlier output with columns", []string{"sales_bonus", "actual_sales"}, []LintOption{columns}, ""},
		{"Validated column without dataset columns", []string{"customer_satisfaction"}, nil, ""},
		{"Unknown name without dataset columns", []string{"region"}, nil, ""},
		{"Unknown name with dataset columns", []string{"region"}, []LintOption{columns},
			`business_rules[1] (total_bonus): dependency "region" is neither a dataset column nor an earlier output_column`},
		{"Dataset column overwritten later", []string{"total_bonus"}, []LintOption{WithDatasetColumns("total_bonus")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDocument()
			doc.BusinessRules[1].Dependencies = tt.deps

			err := ValidateSpecification(doc, tt.opts...)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("ValidateSpecification() failed: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ValidateSpecification() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

// TestProblems verifies joined errors split into one message each
func TestProblems(t *testing.T) {
	if got := Problems(nil); got != nil {
		t.Errorf("Problems(nil) = %q", got)
	}

	doc := validDocument()
	doc.Constants["sum"] = 1.0
	doc.BusinessRules[0].Dependencies = []string{"total_bonus"}
	got := Problems(ValidateSpecification(doc))
	if len(got) != 2 {
		t.Fatalf("Problems() = %q, want 2 messages", got)
	}
	for _, msg := range got {
		if strings.Contains(msg, "\n") {
			t.Errorf("message %q spans several problems", msg)
		}
	}
}

// TestValidateIdentifier verifies the identifier rules used for constants
func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"rate", true},
		{"_private", true},
		{"Rate2", true},
		{"", false},
		{"2rate", false},
		{"bonus rate", false},
		{"np", false},
		{"where", false},
		{"True", false},
		{"None", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateIdentifier(tt.name)
			if (err == nil) != tt.valid {
				t.Errorf("validateIdentifier(%q) error = %v, want valid=%v", tt.name, err, tt.valid)
			}
		})
	}
}
