package executors

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TFMV/crossplan/pkg/errors"
	"github.com/TFMV/crossplan/pkg/models"
	"github.com/TFMV/crossplan/pkg/parser"
	"github.com/TFMV/crossplan/pkg/plan"
)

// mongoExecutor lowers a narrow SELECT subset onto find(): one collection,
// a conjunctive filter of column/literal comparisons, optional projection,
// sort, and limit. Anything beyond that surface is rejected up front.
type mongoExecutor struct {
	logger zerolog.Logger
}

// NewMongo creates the MongoDB executor.
func NewMongo(logger zerolog.Logger) Executor {
	return &mongoExecutor{logger: logger.With().Str("backend", "mongodb").Logger()}
}

func (e *mongoExecutor) Backend() models.Backend {
	return models.BackendMongoDB
}

func (e *mongoExecutor) Validate(sql string) error {
	_, err := lowerToFind(sql)
	return err
}

func (e *mongoExecutor) Execute(ctx context.Context, sqlText, database string, conn *ConnHandle) (*models.ResultSet, error) {
	if conn == nil || conn.Mongo == nil {
		return nil, errors.New(errors.CodeConnectionFailed, "no mongodb connection")
	}
	if database == "" {
		return nil, errors.New(errors.CodeInvalidRequest, "mongodb requires a database name")
	}

	q, err := lowerToFind(sqlText)
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("collection", q.collection).
		Str("database", database).
		Int64("limit", q.limit).
		Msg("Executing find")

	opts := options.Find()
	if q.limit > 0 {
		opts.SetLimit(q.limit)
	}
	if q.offset > 0 {
		opts.SetSkip(q.offset)
	}
	if len(q.sort) > 0 {
		opts.SetSort(q.sort)
	}
	if len(q.fields) > 0 {
		proj := bson.D{}
		for _, f := range q.fields {
			proj = append(proj, bson.E{Key: f, Value: 1})
		}
		if !containsField(q.fields, "_id") {
			proj = append(proj, bson.E{Key: "_id", Value: 0})
		}
		opts.SetProjection(proj)
	}

	coll := conn.Mongo.Database(database).Collection(q.collection)
	cursor, err := coll.Find(ctx, q.filter, opts)
	if err != nil {
		return nil, ctxErr(ctx, err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, ctxErr(ctx, err)
	}

	return docsToResultSet(docs, q.fields), nil
}

// findQuery is the find() lowering of a SELECT statement.
type findQuery struct {
	collection string
	filter     bson.M
	fields     []string
	sort       bson.D
	limit      int64
	offset     int64
}

func lowerToFind(sqlText string) (*findQuery, error) {
	root, err := parser.Parse(sqlText)
	if err != nil {
		return nil, err
	}

	q := &findQuery{filter: bson.M{}}
	n := root

	if l, ok := n.(*plan.Limit); ok {
		q.limit, q.offset = l.Count, l.Offset
		n = l.Input
	}
	if s, ok := n.(*plan.Sort); ok {
		for _, item := range s.Items {
			col, ok := item.Expr.(*plan.Column)
			if !ok {
				return nil, errors.Unsupported("mongodb", "ORDER BY on expressions")
			}
			dir := 1
			if item.Desc {
				dir = -1
			}
			q.sort = append(q.sort, bson.E{Key: col.Name, Value: dir})
		}
		n = s.Input
	}

	proj, ok := n.(*plan.Projection)
	if !ok {
		return nil, errors.Unsupported("mongodb", fmt.Sprintf("%T", n))
	}
	for _, x := range proj.Exprs {
		switch t := x.(type) {
		case *plan.Star:
			// all fields
		case *plan.Column:
			q.fields = append(q.fields, t.Name)
		case *plan.Alias:
			col, ok := t.Expr.(*plan.Column)
			if !ok {
				return nil, errors.Unsupported("mongodb", "computed select expressions")
			}
			q.fields = append(q.fields, col.Name)
		default:
			return nil, errors.Unsupported("mongodb", "computed select expressions")
		}
	}
	n = proj.Input

	if f, ok := n.(*plan.Filter); ok {
		for _, pred := range plan.Conjuncts(f.Predicate) {
			if err := addFilter(q.filter, pred); err != nil {
				return nil, err
			}
		}
		n = f.Input
	}

	scan, ok := n.(*plan.TableScan)
	if !ok {
		return nil, errors.Unsupported("mongodb", "joins and subqueries")
	}
	q.collection = scan.Table
	return q, nil
}

var mongoOps = map[plan.BinaryOp]string{
	plan.OpNe: "$ne",
	plan.OpLt: "$lt",
	plan.OpLe: "$lte",
	plan.OpGt: "$gt",
	plan.OpGe: "$gte",
}

func addFilter(filter bson.M, pred plan.Expr) error {
	switch t := pred.(type) {
	case *plan.Binary:
		col, ok := t.Left.(*plan.Column)
		if !ok {
			return errors.Unsupported("mongodb", "non-column filter operands")
		}
		val, err := literalValue(t.Right)
		if err != nil {
			return err
		}
		if t.Op == plan.OpEq {
			filter[col.Name] = val
			return nil
		}
		if op, ok := mongoOps[t.Op]; ok {
			filter[col.Name] = bson.M{op: val}
			return nil
		}
		return errors.Unsupported("mongodb", "operator "+string(t.Op))

	case *plan.InList:
		col, ok := t.Operand.(*plan.Column)
		if !ok {
			return errors.Unsupported("mongodb", "non-column filter operands")
		}
		vals := make([]interface{}, 0, len(t.List))
		for _, x := range t.List {
			v, err := literalValue(x)
			if err != nil {
				return err
			}
			vals = append(vals, v)
		}
		op := "$in"
		if t.Negated {
			op = "$nin"
		}
		filter[col.Name] = bson.M{op: vals}
		return nil

	case *plan.Like:
		col, ok := t.Operand.(*plan.Column)
		if !ok {
			return errors.Unsupported("mongodb", "non-column filter operands")
		}
		lit, ok := t.Pattern.(*plan.Literal)
		if !ok || lit.Kind != plan.LiteralString {
			return errors.Unsupported("mongodb", "non-literal LIKE patterns")
		}
		re := likeToRegex(lit.Str)
		if t.Negated {
			filter[col.Name] = bson.M{"$not": primitive.Regex{Pattern: re}}
		} else {
			filter[col.Name] = primitive.Regex{Pattern: re}
		}
		return nil
	}
	return errors.Unsupported("mongodb", fmt.Sprintf("filter expression %T", pred))
}

func literalValue(x plan.Expr) (interface{}, error) {
	lit, ok := x.(*plan.Literal)
	if !ok {
		return nil, errors.Unsupported("mongodb", "non-literal filter values")
	}
	switch lit.Kind {
	case plan.LiteralString:
		return lit.Str, nil
	case plan.LiteralInt:
		return lit.Int, nil
	case plan.LiteralFloat:
		return lit.Float, nil
	case plan.LiteralBool:
		return lit.Bool, nil
	default:
		return nil, nil
	}
}

// likeToRegex translates a SQL LIKE pattern to an anchored regex.
func likeToRegex(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		case '.', '^', '$', '*', '+', '?', '(', ')', '[', ']', '{', '}', '\\', '|':
			sb.WriteString("\\")
			sb.WriteRune(r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteString("$")
	return sb.String()
}

func containsField(fields []string, name string) bool {
	for _, f := range fields {
		if f == name {
			return true
		}
	}
	return false
}

// docsToResultSet flattens documents into string rows. Column order is the
// projection when one was given, otherwise the sorted union of keys.
func docsToResultSet(docs []bson.M, fields []string) *models.ResultSet {
	cols := fields
	if len(cols) == 0 {
		seen := map[string]bool{}
		for _, doc := range docs {
			for k := range doc {
				seen[k] = true
			}
		}
		for k := range seen {
			cols = append(cols, k)
		}
		sort.Strings(cols)
	}

	rs := &models.ResultSet{Columns: cols, Rows: make([][]string, 0, len(docs))}
	for _, doc := range docs {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = formatBSONValue(doc[c])
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs
}

func formatBSONValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case primitive.Decimal128:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
