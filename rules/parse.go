package rules

import (
	"encoding/json"
	"fmt"

	"github.com/liamcoop/specetl/dataset"
)

// Document is the JSON shape of a specification file.
type Document struct {
	ValidationRules []ValidationRuleDoc `json:"validation_rules"`
	BusinessRules   []BusinessRuleDoc   `json:"business_rules"`
	Constants       map[string]any      `json:"constants"`
}

// ValidationRuleDoc is one entry of validation_rules.
type ValidationRuleDoc struct {
	Column     string         `json:"column"`
	Type       string         `json:"type"`
	Parameters map[string]any `json:"parameters"`
}

// BusinessRuleDoc is one entry of business_rules.
type BusinessRuleDoc struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Formula      string   `json:"formula"`
	Dependencies []string `json:"dependencies"`
	OutputColumn string   `json:"output_column"`
}

// SpecificationError reports a malformed specification document. It is fatal
// to a run.
type SpecificationError struct {
	// Path locates the offending field, e.g. "business_rules[2].formula".
	Path string
	Msg  string
	Err  error
}

func (e *SpecificationError) Error() string {
	if e.Path == "" {
		return "invalid specification: " + e.Msg
	}
	return fmt.Sprintf("invalid specification: %s: %s", e.Path, e.Msg)
}

func (e *SpecificationError) Unwrap() error { return e.Err }

func specErr(path, format string, args ...any) *SpecificationError {
	return &SpecificationError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// Parse decodes a JSON specification document. Required fields must be
// present, non-empty strings; formula syntax is not checked here and
// surfaces when the rule is applied.
func Parse(data []byte) (*Specification, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &SpecificationError{Msg: "malformed JSON", Err: err}
	}
	top, ok := raw.(map[string]any)
	if !ok {
		return nil, specErr("", "document must be a JSON object, got %s", jsonType(raw))
	}

	var doc Document
	vrs, err := objectList(top, "validation_rules")
	if err != nil {
		return nil, err
	}
	for i, obj := range vrs {
		path := fmt.Sprintf("validation_rules[%d]", i)
		r := ValidationRuleDoc{}
		if r.Column, err = requiredString(obj, path, "column"); err != nil {
			return nil, err
		}
		if r.Type, err = requiredString(obj, path, "type"); err != nil {
			return nil, err
		}
		if p, ok := obj["parameters"]; ok && p != nil {
			m, ok := p.(map[string]any)
			if !ok {
				return nil, specErr(path+".parameters", "must be an object, got %s", jsonType(p))
			}
			r.Parameters = m
		}
		doc.ValidationRules = append(doc.ValidationRules, r)
	}

	brs, err := objectList(top, "business_rules")
	if err != nil {
		return nil, err
	}
	for i, obj := range brs {
		path := fmt.Sprintf("business_rules[%d]", i)
		r := BusinessRuleDoc{}
		if r.Name, err = requiredString(obj, path, "name"); err != nil {
			return nil, err
		}
		if r.Formula, err = requiredString(obj, path, "formula"); err != nil {
			return nil, err
		}
		if r.OutputColumn, err = requiredString(obj, path, "output_column"); err != nil {
			return nil, err
		}
		if d, ok := obj["description"]; ok && d != nil {
			s, ok := d.(string)
			if !ok {
				return nil, specErr(path+".description", "must be a string, got %s", jsonType(d))
			}
			r.Description = s
		}
		if deps, ok := obj["dependencies"]; ok && deps != nil {
			list, ok := deps.([]any)
			if !ok {
				return nil, specErr(path+".dependencies", "must be an array, got %s", jsonType(deps))
			}
			for j, d := range list {
				s, ok := d.(string)
				if !ok {
					return nil, specErr(fmt.Sprintf("%s.dependencies[%d]", path, j), "must be a string, got %s", jsonType(d))
				}
				r.Dependencies = append(r.Dependencies, s)
			}
		}
		doc.BusinessRules = append(doc.BusinessRules, r)
	}

	if c, ok := top["constants"]; ok && c != nil {
		m, ok := c.(map[string]any)
		if !ok {
			return nil, specErr("constants", "must be an object, got %s", jsonType(c))
		}
		doc.Constants = m
	}

	return FromDocument(doc)
}

// FromDocument builds a Specification from an already decoded document,
// applying the same checks and defaults as Parse.
func FromDocument(doc Document) (*Specification, error) {
	s := &Specification{
		validation: make([]ValidationRule, 0, len(doc.ValidationRules)),
		business:   make([]BusinessRule, 0, len(doc.BusinessRules)),
		constants:  make(map[string]dataset.Value, len(doc.Constants)),
	}

	for i, r := range doc.ValidationRules {
		path := fmt.Sprintf("validation_rules[%d]", i)
		if r.Column == "" {
			return nil, specErr(path+".column", "required field is missing or empty")
		}
		if r.Type == "" {
			return nil, specErr(path+".type", "required field is missing or empty")
		}
		s.validation = append(s.validation, ValidationRule{
			Column:     r.Column,
			Type:       RuleType(r.Type),
			Parameters: copyParams(r.Parameters),
		})
	}

	for i, r := range doc.BusinessRules {
		path := fmt.Sprintf("business_rules[%d]", i)
		switch {
		case r.Name == "":
			return nil, specErr(path+".name", "required field is missing or empty")
		case r.Formula == "":
			return nil, specErr(path+".formula", "required field is missing or empty")
		case r.OutputColumn == "":
			return nil, specErr(path+".output_column", "required field is missing or empty")
		}
		s.business = append(s.business, BusinessRule{
			Name:         r.Name,
			Description:  r.Description,
			Formula:      r.Formula,
			Dependencies: append([]string{}, r.Dependencies...),
			OutputColumn: r.OutputColumn,
		})
	}

	for name, c := range doc.Constants {
		v, ok := dataset.FromNative(c)
		if !ok || v.Kind() == dataset.KindNull {
			return nil, specErr("constants."+name, "must be a number, string or boolean, got %s", jsonType(c))
		}
		s.constants[name] = v
	}

	s.doc = normalized(s)
	return s, nil
}

// normalized rebuilds the document from the parsed rules so that defaults
// are explicit when the specification is stored or echoed back.
func normalized(s *Specification) Document {
	doc := Document{
		ValidationRules: make([]ValidationRuleDoc, len(s.validation)),
		BusinessRules:   make([]BusinessRuleDoc, len(s.business)),
		Constants:       make(map[string]any, len(s.constants)),
	}
	for i, r := range s.validation {
		doc.ValidationRules[i] = ValidationRuleDoc{Column: r.Column, Type: string(r.Type), Parameters: copyParams(r.Parameters)}
	}
	for i, r := range s.business {
		doc.BusinessRules[i] = BusinessRuleDoc{
			Name:         r.Name,
			Description:  r.Description,
			Formula:      r.Formula,
			Dependencies: append([]string{}, r.Dependencies...),
			OutputColumn: r.OutputColumn,
		}
	}
	for k, v := range s.constants {
		doc.Constants[k] = v.Native()
	}
	return doc
}

func objectList(top map[string]any, key string) ([]map[string]any, error) {
	v, ok := top[key]
	if !ok || v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, specErr(key, "must be an array, got %s", jsonType(v))
	}
	out := make([]map[string]any, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, specErr(fmt.Sprintf("%s[%d]", key, i), "must be an object, got %s", jsonType(item))
		}
		out[i] = obj
	}
	return out, nil
}

func requiredString(obj map[string]any, path, key string) (string, error) {
	v, ok := obj[key]
	if !ok || v == nil {
		return "", specErr(path+"."+key, "required field is missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", specErr(path+"."+key, "must be a string, got %s", jsonType(v))
	}
	if s == "" {
		return "", specErr(path+"."+key, "required field is empty")
	}
	return s, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
