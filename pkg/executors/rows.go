package executors

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TFMV/crossplan/pkg/dialect"
	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

// normalizeRows drains a result cursor into string cells. NULL becomes the
// empty string, booleans use the dialect's literals, times render as
// RFC 3339, and decimal columns are canonicalized so every backend reports
// the same text for the same value.
func normalizeRows(rows *sql.Rows, d dialect.Descriptor) (*models.ResultSet, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionFailed, "failed to read column names")
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionFailed, "failed to read column types")
	}

	rs := &models.ResultSet{Columns: cols, Rows: [][]string{}}
	values := make([]interface{}, len(cols))
	ptrs := make([]interface{}, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, errors.CodeExecutionFailed, "failed to scan row")
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatCell(v, types[i], d)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeExecutionFailed, "row iteration failed")
	}
	return rs, nil
}

func formatCell(v interface{}, ct *sql.ColumnType, d dialect.Descriptor) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case bool:
		return d.BoolLiteral(t)
	case []byte:
		if ct != nil && isDecimalType(ct.DatabaseTypeName()) {
			if dec, err := decimal.NewFromString(string(t)); err == nil {
				return dec.String()
			}
		}
		return string(t)
	case string:
		if ct != nil && isDecimalType(ct.DatabaseTypeName()) {
			if dec, err := decimal.NewFromString(t); err == nil {
				return dec.String()
			}
		}
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case decimal.Decimal:
		return t.String()
	}
	return toString(v)
}

func isDecimalType(name string) bool {
	switch strings.ToUpper(name) {
	case "NUMERIC", "DECIMAL", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

func toString(v interface{}) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}
