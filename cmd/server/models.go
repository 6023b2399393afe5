package main

import (
	"encoding/json"
	"math"
	"time"

	"github.com/liamcoop/specetl/catalog"
	"github.com/liamcoop/specetl/dataset"
	"github.com/liamcoop/specetl/pipeline"
	"github.com/liamcoop/specetl/report"
	"github.com/liamcoop/specetl/rules"
)

// API request and response models

// ProcessRequest carries an inline specification and CSV dataset.
type ProcessRequest struct {
	Specification json.RawMessage `json:"specification"`
	CSV           string          `json:"csv"`
}

// RuleResultResponse is the outcome of one business rule.
type RuleResultResponse struct {
	Name         string `json:"name"`
	OutputColumn string `json:"output_column"`
	Applied      bool   `json:"applied"`
	Shape        string `json:"shape,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ProcessResponse is the result of processing a dataset.
type ProcessResponse struct {
	Validation rules.ValidationReport `json:"validation"`
	Rules      []RuleResultResponse   `json:"rules"`
	Report     *report.Report         `json:"report"`
	Columns    []string               `json:"columns"`
	Rows       []map[string]any       `json:"rows"`
}

// SpecificationRequest creates or replaces a stored specification.
type SpecificationRequest struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Active        *bool           `json:"active,omitempty"`
	Specification json.RawMessage `json:"specification"`
}

// SpecificationResponse represents a stored specification.
type SpecificationResponse struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Active        bool           `json:"active"`
	Loaded        bool           `json:"loaded"`
	Specification rules.Document `json:"specification"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SpecificationsListResponse lists stored specifications.
type SpecificationsListResponse struct {
	Specifications []SpecificationResponse `json:"specifications"`
}

// ValidateRequest carries a specification to lint. Columns, when given,
// are the dataset columns business rule dependencies may refer to.
type ValidateRequest struct {
	Specification json.RawMessage `json:"specification"`
	Columns       []string        `json:"columns,omitempty"`
}

// ValidationResponse lists the lint problems of a specification.
type ValidationResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status               string `json:"status"`
	Store                string `json:"store"`
	SpecificationsLoaded int    `json:"specifications_loaded"`
	Error                string `json:"error,omitempty"`
}

func newProcessResponse(res *pipeline.Result) ProcessResponse {
	resp := ProcessResponse{
		Validation: res.Validation,
		Rules:      make([]RuleResultResponse, 0, len(res.Rules)),
		Report:     res.Report,
		Columns:    res.Dataset.Columns(),
		Rows:       make([]map[string]any, res.Dataset.Len()),
	}
	for _, rr := range res.Rules {
		r := RuleResultResponse{Name: rr.RuleName, OutputColumn: rr.OutputColumn, Applied: rr.Applied}
		if rr.Error != nil {
			r.Error = rr.Error.Error()
		} else {
			r.Shape = rr.Shape.String()
		}
		resp.Rules = append(resp.Rules, r)
	}
	for i := range resp.Rows {
		row := res.Dataset.Row(i)
		out := make(map[string]any, len(row))
		for k, v := range row {
			out[k] = jsonValue(v)
		}
		resp.Rows[i] = out
	}
	return resp
}

// jsonValue maps nulls and non-finite numbers to JSON null.
func jsonValue(v dataset.Value) any {
	if v.IsNull() {
		return nil
	}
	if f, ok := v.Float(); ok && v.Kind() == dataset.KindNumber && (math.IsInf(f, 0) || math.IsNaN(f)) {
		return nil
	}
	return v.Native()
}

func newSpecificationResponse(rec *rules.SpecRecord, loaded bool) SpecificationResponse {
	return SpecificationResponse{
		ID:            rec.ID,
		Name:          rec.Name,
		Description:   rec.Description,
		Active:        rec.Active,
		Loaded:        loaded,
		Specification: rec.Document,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func newValidationResponse(err error) ValidationResponse {
	problems := catalog.Problems(err)
	if problems == nil {
		problems = []string{}
	}
	return ValidationResponse{Valid: len(problems) == 0, Errors: problems}
}
