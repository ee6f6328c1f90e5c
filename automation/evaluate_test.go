package automation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nimbusiot/lattice/entity"
)

func TestEvalCondition_Operators(t *testing.T) {
	fields := map[string]any{
		"temperature": 95.5,
		"humidity":    40,
		"mode":        "auto-cool",
		"enabled":     true,
	}

	tests := []struct {
		name string
		cond entity.Condition
		want bool
	}{
		{"equals number", entity.Condition{Field: "humidity", Operator: entity.OpEquals, Value: 40}, true},
		{"equals float vs int", entity.Condition{Field: "humidity", Operator: entity.OpEquals, Value: 40.0}, true},
		{"equals numeric string", entity.Condition{Field: "humidity", Operator: entity.OpEquals, Value: "40"}, true},
		{"equals string", entity.Condition{Field: "mode", Operator: entity.OpEquals, Value: "auto-cool"}, true},
		{"equals bool", entity.Condition{Field: "enabled", Operator: entity.OpEquals, Value: true}, true},
		{"equals mismatch", entity.Condition{Field: "mode", Operator: entity.OpEquals, Value: "heat"}, false},

		{"not_equals", entity.Condition{Field: "mode", Operator: entity.OpNotEquals, Value: "heat"}, true},
		{"not_equals miss", entity.Condition{Field: "humidity", Operator: entity.OpNotEquals, Value: 40}, false},

		{"greater_than", entity.Condition{Field: "temperature", Operator: entity.OpGreaterThan, Value: 90}, true},
		{"greater_than equal value", entity.Condition{Field: "humidity", Operator: entity.OpGreaterThan, Value: 40}, false},
		{"greater_than string operand", entity.Condition{Field: "temperature", Operator: entity.OpGreaterThan, Value: "90"}, true},
		{"greater_than non-numeric", entity.Condition{Field: "mode", Operator: entity.OpGreaterThan, Value: 1}, false},

		{"less_than", entity.Condition{Field: "humidity", Operator: entity.OpLessThan, Value: 50}, true},
		{"less_than miss", entity.Condition{Field: "temperature", Operator: entity.OpLessThan, Value: 90}, false},

		{"gte at boundary", entity.Condition{Field: "humidity", Operator: entity.OpGreaterThanOrEqual, Value: 40}, true},
		{"lte at boundary", entity.Condition{Field: "humidity", Operator: entity.OpLessThanOrEqual, Value: 40}, true},
		{"lte miss", entity.Condition{Field: "humidity", Operator: entity.OpLessThanOrEqual, Value: 39}, false},

		{"contains", entity.Condition{Field: "mode", Operator: entity.OpContains, Value: "cool"}, true},
		{"contains miss", entity.Condition{Field: "mode", Operator: entity.OpContains, Value: "heat"}, false},
		{"not_contains", entity.Condition{Field: "mode", Operator: entity.OpNotContains, Value: "heat"}, true},
		{"not_contains miss", entity.Condition{Field: "mode", Operator: entity.OpNotContains, Value: "auto"}, false},

		{"unknown operator", entity.Condition{Field: "humidity", Operator: "like", Value: 40}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalCondition(tt.cond, fields))
		})
	}
}

func TestEvalCondition_MissingFieldNeverMatches(t *testing.T) {
	fields := map[string]any{"present": 1}

	for _, op := range []entity.Operator{
		entity.OpEquals, entity.OpNotEquals,
		entity.OpGreaterThan, entity.OpLessThan,
		entity.OpGreaterThanOrEqual, entity.OpLessThanOrEqual,
		entity.OpContains, entity.OpNotContains,
	} {
		cond := entity.Condition{Field: "absent", Operator: op, Value: 1}
		assert.False(t, evalCondition(cond, fields), "operator %s matched a missing field", op)
	}
}

func TestEvalConditions_Logic(t *testing.T) {
	fields := map[string]any{"a": 1, "b": 2}
	hit := entity.Condition{Field: "a", Operator: entity.OpEquals, Value: 1}
	miss := entity.Condition{Field: "b", Operator: entity.OpEquals, Value: 99}

	tests := []struct {
		name  string
		conds []entity.Condition
		logic entity.ConditionLogic
		want  bool
	}{
		{"empty matches", nil, entity.LogicAnd, true},
		{"and all hit", []entity.Condition{hit, hit}, entity.LogicAnd, true},
		{"and one miss", []entity.Condition{hit, miss}, entity.LogicAnd, false},
		{"or one hit", []entity.Condition{miss, hit}, entity.LogicOr, true},
		{"or all miss", []entity.Condition{miss, miss}, entity.LogicOr, false},
		{"default logic is and", []entity.Condition{hit, miss}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalConditions(tt.conds, tt.logic, fields))
		})
	}
}

func TestCombine(t *testing.T) {
	tests := []struct {
		name    string
		logic   entity.ConditionLogic
		primary bool
		groups  []bool
		want    bool
	}{
		{"and all true", entity.LogicAnd, true, []bool{true, true}, true},
		{"and group false", entity.LogicAnd, true, []bool{true, false}, false},
		{"and primary false", entity.LogicAnd, false, []bool{true}, false},
		{"or primary true", entity.LogicOr, true, []bool{false}, true},
		{"or group true", entity.LogicOr, false, []bool{false, true}, true},
		{"or all false", entity.LogicOr, false, []bool{false}, false},
		{"no groups", entity.LogicAnd, true, nil, true},
		{"default logic is and", "", true, []bool{false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, combine(tt.logic, tt.primary, tt.groups))
		})
	}
}
