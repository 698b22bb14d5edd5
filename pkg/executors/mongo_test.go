package executors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TFMV/crossplan/pkg/errors"
)

func TestLowerToFind(t *testing.T) {
	t.Run("star scan", func(t *testing.T) {
		q, err := lowerToFind("SELECT * FROM users")
		require.NoError(t, err)
		assert.Equal(t, "users", q.collection)
		assert.Empty(t, q.filter)
		assert.Empty(t, q.fields)
	})

	t.Run("projection filter sort limit", func(t *testing.T) {
		q, err := lowerToFind(
			"SELECT name, age FROM users WHERE age > 21 AND city = 'Oslo' ORDER BY age DESC LIMIT 10")
		require.NoError(t, err)
		assert.Equal(t, "users", q.collection)
		assert.Equal(t, []string{"name", "age"}, q.fields)
		assert.Equal(t, bson.M{"age": bson.M{"$gt": int64(21)}, "city": "Oslo"}, q.filter)
		assert.Equal(t, bson.D{{Key: "age", Value: -1}}, q.sort)
		assert.Equal(t, int64(10), q.limit)
	})

	t.Run("in list", func(t *testing.T) {
		q, err := lowerToFind("SELECT * FROM users WHERE city IN ('Oslo', 'Bergen')")
		require.NoError(t, err)
		assert.Equal(t, bson.M{"city": bson.M{"$in": []interface{}{"Oslo", "Bergen"}}}, q.filter)
	})

	t.Run("like becomes regex", func(t *testing.T) {
		q, err := lowerToFind("SELECT * FROM users WHERE name LIKE 'al%'")
		require.NoError(t, err)
		assert.Equal(t, bson.M{"name": primitive.Regex{Pattern: "^al.*$"}}, q.filter)
	})

	t.Run("unsupported shapes", func(t *testing.T) {
		for _, sql := range []string{
			"SELECT a.id FROM a JOIN b ON a.id = b.id",
			"SELECT COUNT(*) FROM users",
			"SELECT * FROM users WHERE age + 1 > 2",
			"SELECT id FROM a UNION SELECT id FROM b",
		} {
			_, err := lowerToFind(sql)
			require.Error(t, err, sql)
			assert.Equal(t, errors.CodeUnsupportedConstruct, errors.GetCode(err), sql)
		}
	})
}

func TestLikeToRegex(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{"al%", "^al.*$"},
		{"a_c", "^a.c$"},
		{"100%", "^100.*$"},
		{"a.b", "^a\\.b$"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, likeToRegex(tt.pattern), tt.pattern)
	}
}

func TestDocsToResultSet(t *testing.T) {
	docs := []bson.M{
		{"name": "alice", "age": int32(30)},
		{"name": "bob", "city": "Oslo"},
	}

	t.Run("projected columns", func(t *testing.T) {
		rs := docsToResultSet(docs, []string{"name", "age"})
		assert.Equal(t, []string{"name", "age"}, rs.Columns)
		assert.Equal(t, []string{"alice", "30"}, rs.Rows[0])
		assert.Equal(t, []string{"bob", ""}, rs.Rows[1])
	})

	t.Run("star sorts key union", func(t *testing.T) {
		rs := docsToResultSet(docs, nil)
		assert.Equal(t, []string{"age", "city", "name"}, rs.Columns)
	})
}
