package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field names the email attribute a condition inspects
type Field int

const (
	FieldUnknown Field = iota
	FieldSender
	FieldSubject
	FieldSnippet
	FieldBody
	FieldHasAttachment
)

var fieldNames = map[Field]string{
	FieldSender:        "sender",
	FieldSubject:       "subject",
	FieldSnippet:       "snippet",
	FieldBody:          "body",
	FieldHasAttachment: "hasAttachment",
}

// ParseField maps a wire name to a Field. Unrecognized names yield FieldUnknown.
func ParseField(s string) Field {
	for f, name := range fieldNames {
		if name == s {
			return f
		}
	}
	return FieldUnknown
}

func (f Field) String() string {
	if name, ok := fieldNames[f]; ok {
		return name
	}
	return "unknown"
}

// Operator is the string comparison a condition applies
type Operator int

const (
	OperatorUnknown Operator = iota
	OperatorContains
	OperatorEquals
	OperatorStartsWith
	OperatorEndsWith
)

var operatorNames = map[Operator]string{
	OperatorContains:   "contains",
	OperatorEquals:     "equals",
	OperatorStartsWith: "startsWith",
	OperatorEndsWith:   "endsWith",
}

// ParseOperator maps a wire name to an Operator.
func ParseOperator(s string) Operator {
	for op, name := range operatorNames {
		if name == s {
			return op
		}
	}
	return OperatorUnknown
}

func (o Operator) String() string {
	if name, ok := operatorNames[o]; ok {
		return name
	}
	return "unknown"
}

// UnknownFieldPolicy decides how a condition on an unrecognized field evaluates.
type UnknownFieldPolicy int

const (
	// UnknownFieldMatch treats the condition as vacuously satisfied.
	UnknownFieldMatch UnknownFieldPolicy = iota
	// UnknownFieldNoMatch treats the condition as failed.
	UnknownFieldNoMatch
)

// ParseUnknownFieldPolicy accepts "match" or "nomatch".
func ParseUnknownFieldPolicy(s string) (UnknownFieldPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "match":
		return UnknownFieldMatch, nil
	case "nomatch", "no_match", "no-match":
		return UnknownFieldNoMatch, nil
	}
	return UnknownFieldMatch, fmt.Errorf("unknown field policy %q", s)
}

// Condition is a single field/operator/value predicate.
type Condition struct {
	Field    Field
	Operator Operator
	Value    string

	// rawField keeps the original name of an unknown field for logging and round-trips.
	rawField string
}

type wireCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator,omitempty"`
	Value    string `json:"value"`
}

func (c Condition) MarshalJSON() ([]byte, error) {
	field := c.Field.String()
	if c.Field == FieldUnknown {
		field = c.rawField
	}
	w := wireCondition{Field: field, Value: c.Value}
	if c.Operator != OperatorUnknown {
		w.Operator = c.Operator.String()
	}
	return json.Marshal(w)
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	var w wireCondition
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	c.Field = ParseField(w.Field)
	c.Operator = ParseOperator(w.Operator)
	c.Value = w.Value
	if c.Field == FieldUnknown {
		c.rawField = w.Field
	}
	return nil
}

// Validate reports whether the condition could be stored as part of a rule.
func (c Condition) Validate() error {
	if c.Field == FieldUnknown {
		return &ValidationError{Reason: fmt.Sprintf("unrecognized condition field %q", c.rawField)}
	}
	if c.Field == FieldHasAttachment {
		return nil
	}
	if c.Operator == OperatorUnknown {
		return &ValidationError{Reason: fmt.Sprintf("unrecognized operator for field %s", c.Field)}
	}
	if c.Value == "" {
		return &ValidationError{Reason: fmt.Sprintf("value is required for field %s", c.Field)}
	}
	return nil
}

// Evaluate decides whether the email satisfies the condition.
func (c Condition) Evaluate(email *Email, policy UnknownFieldPolicy) bool {
	var fieldValue string
	switch c.Field {
	case FieldSender:
		fieldValue = email.Sender
	case FieldSubject:
		fieldValue = email.Subject
	case FieldSnippet:
		fieldValue = firstNonEmpty(email.Snippet, email.Body)
	case FieldBody:
		fieldValue = firstNonEmpty(email.Body, email.Snippet)
	case FieldHasAttachment:
		return email.HasAttachment
	default:
		return policy == UnknownFieldMatch
	}

	fieldValue = strings.ToLower(fieldValue)
	value := strings.ToLower(c.Value)

	switch c.Operator {
	case OperatorContains:
		return strings.Contains(fieldValue, value)
	case OperatorEquals:
		return fieldValue == value
	case OperatorStartsWith:
		return strings.HasPrefix(fieldValue, value)
	case OperatorEndsWith:
		return strings.HasSuffix(fieldValue, value)
	}
	return false
}

// ParseConditions decodes a stored JSON condition list without validating it.
func ParseConditions(raw []byte) ([]Condition, error) {
	var conditions []Condition
	if err := json.Unmarshal(raw, &conditions); err != nil {
		return nil, fmt.Errorf("failed to parse conditions: %w", err)
	}
	return conditions, nil
}

// ValidateConditions checks a condition list submitted for a new or updated rule.
func ValidateConditions(conditions []Condition) error {
	if len(conditions) == 0 {
		return &ValidationError{Reason: "at least one condition is required"}
	}
	for i, c := range conditions {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}
	return nil
}

// DecodeConditions parses and validates a condition list from request input.
// Input that is not a JSON array is rejected.
func DecodeConditions(raw json.RawMessage) ([]Condition, error) {
	trimmed := strings.TrimSpace(string(raw))
	// Older clients send the list as a JSON-encoded string.
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, &ValidationError{Reason: "invalid rule condition format"}
		}
		trimmed = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, &ValidationError{Reason: "conditions must be an array"}
	}
	conditions, err := ParseConditions([]byte(trimmed))
	if err != nil {
		return nil, &ValidationError{Reason: "invalid rule condition format"}
	}
	if err := ValidateConditions(conditions); err != nil {
		return nil, err
	}
	return conditions, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
