package mapper

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mohamedkhairy/signal-engine/internal/models"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// Result is the outcome of mapping one batch of raw rows. Rows that
// fail coercion are excluded individually and reported in Failed; the
// surviving rows keep their source order.
type Result struct {
	Fields []*models.FieldMap
	Failed []RowFailure
}

// RowFailure records one excluded row
type RowFailure struct {
	Index int
	Err   error
}

// Map decodes positional rows into named fields using the rule type's
// declared schema. A column count that differs from the declared arity
// is schema drift between the query builder and the data source and
// fails the whole batch; inventing placeholder column names would only
// mask it.
func Map(rows []models.RawRow, ruleType models.RuleType) (*Result, error) {
	schema, err := models.SchemaFor(ruleType)
	if err != nil {
		return nil, err
	}

	result := &Result{Fields: make([]*models.FieldMap, 0, len(rows))}
	arity := schema.Arity()

	for i, row := range rows {
		if len(row) != arity {
			return nil, &models.MappingError{
				RuleType: ruleType,
				Expected: arity,
				Got:      len(row),
			}
		}

		fieldMap, err := mapRow(row, schema)
		if err != nil {
			logger.Warn("excluding row from scan result",
				logger.ErrorField(err),
				logger.String("rule_type", string(ruleType)),
				logger.Int("row", i),
			)
			result.Failed = append(result.Failed, RowFailure{Index: i, Err: err})
			continue
		}
		result.Fields = append(result.Fields, fieldMap)
	}

	// A batch where nothing decoded is not "no matches", it is a failed
	// execution and the caller must see it as such.
	if len(rows) > 0 && len(result.Fields) == 0 {
		return nil, fmt.Errorf("all %d rows failed mapping for rule type %s: %w",
			len(rows), ruleType, result.Failed[0].Err)
	}

	return result, nil
}

func mapRow(row models.RawRow, schema models.ResultSchema) (*models.FieldMap, error) {
	fieldMap := &models.FieldMap{
		Order:  schema.FieldNames(),
		Values: make(map[string]interface{}, schema.Arity()),
	}

	for i, spec := range schema.Fields {
		value, err := coerce(row[i], spec.Kind)
		if err != nil {
			return nil, &models.CoercionError{Field: spec.Name, Value: row[i], Err: err}
		}
		fieldMap.Values[spec.Name] = value
	}

	return fieldMap, nil
}

// coerce converts a raw column value to its declared field kind
func coerce(value interface{}, kind models.FieldKind) (interface{}, error) {
	if value == nil {
		return nil, fmt.Errorf("null value")
	}

	switch kind {
	case models.FieldString:
		return coerceString(value)
	case models.FieldFloat:
		return coerceFloat(value)
	case models.FieldInt:
		return coerceInt(value)
	case models.FieldTime:
		return coerceTime(value)
	default:
		return nil, fmt.Errorf("unknown field kind %d", kind)
	}
}

func coerceString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("expected string, got %T", value)
	}
}

func coerceFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("expected numeric, got %q", v)
		}
		return f, nil
	case []byte:
		return coerceFloat(string(v))
	default:
		return 0, fmt.Errorf("expected numeric, got %T", value)
	}
}

func coerceInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("expected integer, got fractional %v", v)
		}
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", v)
		}
		return n, nil
	case []byte:
		return coerceInt(string(v))
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
}

// timeLayouts are the accepted textual timestamp encodings, most
// specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coerceTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", v)
	case []byte:
		return coerceTime(string(v))
	case int64:
		return time.Unix(v, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("expected timestamp, got %T", value)
	}
}
