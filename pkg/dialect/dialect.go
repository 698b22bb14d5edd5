// Package dialect describes what each backend's SQL surface can express.
// Descriptors are plain values; the emitter consults them for quoting,
// pagination syntax, and feature availability.
package dialect

import (
	"strings"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
)

// QuoteStyle selects the identifier quoting characters.
type QuoteStyle int

const (
	QuoteDouble QuoteStyle = iota
	QuoteBacktick
	QuoteBracket
)

// LimitStyle selects the pagination clause shape.
type LimitStyle int

const (
	// LimitOffset is LIMIT n [OFFSET m].
	LimitOffset LimitStyle = iota
	// OffsetFetch is TOP n / OFFSET m ROWS FETCH NEXT n ROWS ONLY.
	OffsetFetch
)

// Descriptor captures one backend's capabilities.
type Descriptor struct {
	Backend models.Backend

	QuoteStyle QuoteStyle
	LimitStyle LimitStyle

	TrueLiteral  string
	FalseLiteral string
	NullLiteral  string

	SupportsWindowFunctions bool
	SupportsCTE             bool
	SupportsFullJoin        bool
	SupportsJSON            bool

	// FullJoinFallback marks dialects where a FULL JOIN can be emulated as
	// LEFT JOIN ... UNION ... RIGHT JOIN.
	FullJoinFallback bool

	// RequiresOrderedOffset marks dialects whose offset clause is invalid
	// without an ORDER BY.
	RequiresOrderedOffset bool

	// MinimalSurface marks backends that execute only a narrow slice of
	// SQL; the emitter still produces standard text for them and the
	// executor interprets it.
	MinimalSurface bool
}

// Quote wraps an identifier in the dialect's quoting characters, escaping
// embedded closers by doubling.
func (d Descriptor) Quote(ident string) string {
	switch d.QuoteStyle {
	case QuoteBacktick:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case QuoteBracket:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}

// BoolLiteral renders a boolean in the dialect's vocabulary.
func (d Descriptor) BoolLiteral(v bool) string {
	if v {
		return d.TrueLiteral
	}
	return d.FalseLiteral
}

var descriptors = map[models.Backend]Descriptor{
	models.BackendPostgres: {
		Backend:                 models.BackendPostgres,
		QuoteStyle:              QuoteDouble,
		LimitStyle:              LimitOffset,
		TrueLiteral:             "TRUE",
		FalseLiteral:            "FALSE",
		NullLiteral:             "NULL",
		SupportsWindowFunctions: true,
		SupportsCTE:             true,
		SupportsFullJoin:        true,
		SupportsJSON:            true,
	},
	models.BackendMySQL: {
		Backend:                 models.BackendMySQL,
		QuoteStyle:              QuoteBacktick,
		LimitStyle:              LimitOffset,
		TrueLiteral:             "TRUE",
		FalseLiteral:            "FALSE",
		NullLiteral:             "NULL",
		SupportsWindowFunctions: true,
		SupportsCTE:             true,
		SupportsFullJoin:        false,
		FullJoinFallback:        true,
		SupportsJSON:            true,
	},
	models.BackendSQLite: {
		Backend:                 models.BackendSQLite,
		QuoteStyle:              QuoteBacktick,
		LimitStyle:              LimitOffset,
		TrueLiteral:             "1",
		FalseLiteral:            "0",
		NullLiteral:             "NULL",
		SupportsWindowFunctions: true,
		SupportsCTE:             true,
		SupportsFullJoin:        false,
		FullJoinFallback:        true,
		SupportsJSON:            true,
	},
	models.BackendMSSQL: {
		Backend:                 models.BackendMSSQL,
		QuoteStyle:              QuoteBracket,
		LimitStyle:              OffsetFetch,
		TrueLiteral:             "1",
		FalseLiteral:            "0",
		NullLiteral:             "NULL",
		SupportsWindowFunctions: true,
		SupportsCTE:             true,
		SupportsFullJoin:        true,
		SupportsJSON:            true,
		RequiresOrderedOffset:   true,
	},
	// The minimal-surface executors re-parse the emitted text under a
	// backtick-quoting grammar, so their descriptors must quote the same
	// way or the compiler's own output fails their Validate.
	models.BackendMongoDB: {
		Backend:      models.BackendMongoDB,
		QuoteStyle:   QuoteBacktick,
		LimitStyle:   LimitOffset,
		TrueLiteral:  "true",
		FalseLiteral: "false",
		NullLiteral:  "NULL",
		// Executes a narrow SELECT subset lowered onto find().
		MinimalSurface: true,
	},
	models.BackendRedis: {
		Backend:        models.BackendRedis,
		QuoteStyle:     QuoteBacktick,
		LimitStyle:     LimitOffset,
		TrueLiteral:    "1",
		FalseLiteral:   "0",
		NullLiteral:    "NULL",
		MinimalSurface: true,
	},
}

// ForBackend returns the descriptor for a backend.
func ForBackend(b models.Backend) (Descriptor, error) {
	d, ok := descriptors[b]
	if !ok {
		return Descriptor{}, errors.Newf(errors.CodeInvalidRequest, "no dialect for backend %q", b)
	}
	return d, nil
}
