// Package condition provides the pure branching node types.
package condition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/chatflow/pkg/protocol"
)

const defaultButtonVariable = "button_text"

// ButtonEqualsConfig compares the last observed button text with Value.
type ButtonEqualsConfig struct {
	protocol.Boolean
	protocol.Pure

	Value    string `json:"value"              validate:"required"`
	Variable string `json:"variable,omitempty"`
}

func (c *ButtonEqualsConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	observed, _ := in.Variables[variableOr(c.Variable)].(string)

	return protocol.Next(protocol.BoolHandle(observed == c.Value)), nil
}

type TagPresentConfig struct {
	protocol.Boolean
	protocol.Pure

	Tag string `json:"tag" validate:"required"`
}

func (c *TagPresentConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	return protocol.Next(protocol.BoolHandle(in.Contact != nil && in.Contact.HasTag(c.Tag))), nil
}

const (
	SourceContact   = "contact"
	SourceVariables = "variables"
)

// FieldCompareConfig compares a contact field or an execution variable with Value.
type FieldCompareConfig struct {
	protocol.Boolean
	protocol.Pure

	Field    string `json:"field"            validate:"required"`
	Source   string `json:"source,omitempty" validate:"omitempty,oneof=contact variables"`
	Operator string `json:"operator"         validate:"required,oneof=eq neq contains gt gte lt lte exists not_exists"`
	Value    any    `json:"value,omitempty"`
}

func (c *FieldCompareConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	var (
		actual any
		found  bool
	)

	if c.Source == SourceVariables {
		actual, found = in.Variables[c.Field]
	} else if in.Contact != nil {
		actual, found = in.Contact.Fields[c.Field]
	}

	return protocol.Next(protocol.BoolHandle(compare(c.Operator, actual, found, c.Value))), nil
}

func compare(operator string, actual any, found bool, expected any) bool {
	switch operator {
	case "exists":
		return found && actual != nil
	case "not_exists":
		return !found || actual == nil
	}

	if !found {
		return false
	}

	switch operator {
	case "eq":
		return equal(actual, expected)
	case "neq":
		return !equal(actual, expected)
	case "contains":
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(expected))
	}

	a, okA := number(actual)
	b, okB := number(expected)

	if !okA || !okB {
		return false
	}

	switch operator {
	case "gt":
		return a > b
	case "gte":
		return a >= b
	case "lt":
		return a < b
	case "lte":
		return a <= b
	}

	return false
}

func equal(a, b any) bool {
	x, okX := number(a)
	y, okY := number(b)

	if okX && okY {
		return x == y
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)

		return f, err == nil
	}

	return 0, false
}

var errInvalidClock = errors.New("time must use the HH:MM format")

// TimeInRangeConfig is true when the local time of day falls in [Start, End).
// A range whose end precedes its start wraps past midnight.
type TimeInRangeConfig struct {
	protocol.Boolean
	protocol.Pure

	Start    string `json:"start"              validate:"required"`
	End      string `json:"end"                validate:"required"`
	Timezone string `json:"timezone,omitempty"`
}

func (c *TimeInRangeConfig) Validate() error {
	if _, err := parseClock(c.Start); err != nil {
		return err
	}

	if _, err := parseClock(c.End); err != nil {
		return err
	}

	_, err := time.LoadLocation(c.Timezone)

	return err
}

func (c *TimeInRangeConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return protocol.Outcome{}, err
	}

	start, _ := parseClock(c.Start)
	end, _ := parseClock(c.End)

	now := in.Now.In(loc)
	minute := now.Hour()*60 + now.Minute()

	var inRange bool
	if start <= end {
		inRange = minute >= start && minute < end
	} else {
		inRange = minute >= start || minute < end
	}

	return protocol.Next(protocol.BoolHandle(inRange)), nil
}

func parseClock(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	return t.Hour()*60 + t.Minute(), nil
}

// DayOfWeekConfig is true when the local weekday is one of Days.
type DayOfWeekConfig struct {
	protocol.Boolean
	protocol.Pure

	Days     []string `json:"days"               validate:"min=1,dive,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	Timezone string   `json:"timezone,omitempty"`
}

func (c *DayOfWeekConfig) Validate() error {
	_, err := time.LoadLocation(c.Timezone)

	return err
}

func (c *DayOfWeekConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return protocol.Outcome{}, err
	}

	day := strings.ToLower(in.Now.In(loc).Weekday().String())

	return protocol.Next(protocol.BoolHandle(slices.Contains(c.Days, day))), nil
}

// ButtonConfig routes on the last observed button text, one handle per option.
type ButtonConfig struct {
	protocol.Pure

	Options  []protocol.Option `json:"options"            validate:"min=1,dive"`
	Variable string            `json:"variable,omitempty"`
}

func (c *ButtonConfig) Validate() error {
	return protocol.ValidateOptions(c.Options)
}

func (c *ButtonConfig) Handles() []string {
	return protocol.OptionHandles(c.Options)
}

func (c *ButtonConfig) RequiredHandles() []string {
	return protocol.RequiredOptionHandles(c.Options)
}

func (c *ButtonConfig) Evaluate(_ context.Context, in protocol.EvalContext) (protocol.Outcome, error) {
	observed, _ := in.Variables[variableOr(c.Variable)].(string)

	return protocol.Next(protocol.MatchOption(c.Options, observed)), nil
}

func variableOr(name string) string {
	if name == "" {
		return defaultButtonVariable
	}

	return name
}
