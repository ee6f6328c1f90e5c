package automation

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/nimbusiot/lattice/entity"
)

// evalCondition applies one condition to a field set. A missing field never
// matches, for any operator. Ordering operators only match when both sides
// are numeric.
func evalCondition(cond entity.Condition, fields map[string]any) bool {
	value, ok := fields[cond.Field]
	if !ok {
		return false
	}

	switch cond.Operator {
	case entity.OpEquals:
		return looseEqual(value, cond.Value)
	case entity.OpNotEquals:
		return !looseEqual(value, cond.Value)
	case entity.OpGreaterThan:
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a > b
	case entity.OpLessThan:
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a < b
	case entity.OpGreaterThanOrEqual:
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a >= b
	case entity.OpLessThanOrEqual:
		a, b, ok := bothNumeric(value, cond.Value)
		return ok && a <= b
	case entity.OpContains:
		a, b, ok := bothStringable(value, cond.Value)
		return ok && strings.Contains(a, b)
	case entity.OpNotContains:
		a, b, ok := bothStringable(value, cond.Value)
		return ok && !strings.Contains(a, b)
	default:
		return false
	}
}

// evalConditions combines conditions with AND/OR logic. An empty condition
// list matches. OR short-circuits on the first match, AND on the first miss.
func evalConditions(conds []entity.Condition, logic entity.ConditionLogic, fields map[string]any) bool {
	if len(conds) == 0 {
		return true
	}
	if logic == "" {
		logic = entity.LogicAnd
	}

	for _, cond := range conds {
		matched := evalCondition(cond, fields)
		if logic == entity.LogicOr && matched {
			return true
		}
		if logic == entity.LogicAnd && !matched {
			return false
		}
	}
	return logic == entity.LogicAnd
}

// combine folds group results into the primary result under the top-level
// condition logic (default AND).
func combine(logic entity.ConditionLogic, primary bool, groups []bool) bool {
	if logic == "" {
		logic = entity.LogicAnd
	}
	result := primary
	for _, g := range groups {
		if logic == entity.LogicOr {
			result = result || g
		} else {
			result = result && g
		}
	}
	return result
}

// looseEqual compares numerically when both sides are numeric, otherwise by
// string form for primitives, otherwise deeply.
func looseEqual(a, b any) bool {
	if na, nb, ok := bothNumeric(a, b); ok {
		return na == nb
	}
	if sa, sb, ok := bothStringable(a, b); ok {
		return sa == sb
	}
	return reflect.DeepEqual(a, b)
}

func bothNumeric(a, b any) (float64, float64, bool) {
	na, ok := toNumber(a)
	if !ok {
		return 0, 0, false
	}
	nb, ok := toNumber(b)
	if !ok {
		return 0, 0, false
	}
	return na, nb, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func bothStringable(a, b any) (string, string, bool) {
	sa, ok := toString(a)
	if !ok {
		return "", "", false
	}
	sb, ok := toString(b)
	if !ok {
		return "", "", false
	}
	return sa, sb, true
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64, float32, int, int32, int64, uint, uint64:
		n, _ := toNumber(s)
		return formatNumber(n), true
	default:
		return "", false
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}
