// Package services contains business logic implementations.
package services

import (
	"strings"
)

// StatementType represents the type of SQL statement.
type StatementType int

const (
	StatementTypeDDL     StatementType = iota // CREATE, DROP, ALTER, TRUNCATE
	StatementTypeDML                          // INSERT, UPDATE, DELETE, REPLACE, MERGE
	StatementTypeDQL                          // SELECT, WITH...SELECT, VALUES
	StatementTypeTCL                          // COMMIT, ROLLBACK, SAVEPOINT, BEGIN
	StatementTypeDCL                          // GRANT, REVOKE, DENY
	StatementTypeUtility                      // SHOW, DESCRIBE, EXPLAIN, SET, USE, PRAGMA
	StatementTypeOther                        // Unrecognized statements
)

// String returns the string representation of the statement type.
func (st StatementType) String() string {
	switch st {
	case StatementTypeDDL:
		return "DDL"
	case StatementTypeDML:
		return "DML"
	case StatementTypeDQL:
		return "DQL"
	case StatementTypeTCL:
		return "TCL"
	case StatementTypeDCL:
		return "DCL"
	case StatementTypeUtility:
		return "UTILITY"
	case StatementTypeOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

var statementKeywords = map[string]StatementType{
	"CREATE":    StatementTypeDDL,
	"DROP":      StatementTypeDDL,
	"ALTER":     StatementTypeDDL,
	"TRUNCATE":  StatementTypeDDL,
	"COMMENT":   StatementTypeDDL,
	"RENAME":    StatementTypeDDL,
	"INSERT":    StatementTypeDML,
	"UPDATE":    StatementTypeDML,
	"DELETE":    StatementTypeDML,
	"REPLACE":   StatementTypeDML,
	"MERGE":     StatementTypeDML,
	"UPSERT":    StatementTypeDML,
	"SELECT":    StatementTypeDQL,
	"VALUES":    StatementTypeDQL,
	"TABLE":     StatementTypeDQL,
	"COMMIT":    StatementTypeTCL,
	"ROLLBACK":  StatementTypeTCL,
	"SAVEPOINT": StatementTypeTCL,
	"BEGIN":     StatementTypeTCL,
	"START":     StatementTypeTCL,
	"GRANT":     StatementTypeDCL,
	"REVOKE":    StatementTypeDCL,
	"DENY":      StatementTypeDCL,
	"SHOW":      StatementTypeUtility,
	"DESCRIBE":  StatementTypeUtility,
	"DESC":      StatementTypeUtility,
	"EXPLAIN":   StatementTypeUtility,
	"ANALYZE":   StatementTypeUtility,
	"SET":       StatementTypeUtility,
	"USE":       StatementTypeUtility,
	"PRAGMA":    StatementTypeUtility,
	"VACUUM":    StatementTypeUtility,
}

// StatementClassifier determines statement types from the leading keyword.
// Only DQL statements enter the plan pipeline; everything else is passed
// through to the backend verbatim.
type StatementClassifier struct{}

// NewStatementClassifier creates a new statement classifier.
func NewStatementClassifier() *StatementClassifier {
	return &StatementClassifier{}
}

// Classify returns the statement type.
func (c *StatementClassifier) Classify(sql string) StatementType {
	kw := c.leadingKeyword(sql)
	if kw == "" {
		return StatementTypeOther
	}
	// WITH introduces a DQL statement when its tail selects.
	if kw == "WITH" {
		return StatementTypeDQL
	}
	if st, ok := statementKeywords[kw]; ok {
		return st
	}
	return StatementTypeOther
}

// IsQueryStatement returns true when the statement produces a result set
// through the plan pipeline.
func (c *StatementClassifier) IsQueryStatement(sql string) bool {
	return c.Classify(sql) == StatementTypeDQL
}

// IsDangerous flags statements that destroy data or structure.
func (c *StatementClassifier) IsDangerous(sql string) bool {
	switch c.leadingKeyword(sql) {
	case "DROP", "TRUNCATE", "DELETE", "ALTER":
		return true
	}
	return false
}

// leadingKeyword extracts the first keyword, skipping leading comments.
func (c *StatementClassifier) leadingKeyword(sql string) string {
	s := strings.TrimSpace(sql)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl < 0 {
				return ""
			}
			s = strings.TrimSpace(s[nl+1:])
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s, "*/")
			if end < 0 {
				return ""
			}
			s = strings.TrimSpace(s[end+2:])
		default:
			end := 0
			for end < len(s) && (isLetter(s[end]) || s[end] == '_') {
				end++
			}
			return strings.ToUpper(s[:end])
		}
	}
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
