package executors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/crossplan/pkg/errors"
)

func TestLowerToKeys(t *testing.T) {
	t.Run("table name is the pattern", func(t *testing.T) {
		q, err := lowerToKeys("SELECT * FROM `user:*`")
		require.NoError(t, err)
		assert.Equal(t, "user:*", q.pattern)
		assert.Zero(t, q.limit)
	})

	t.Run("like filter narrows the pattern", func(t *testing.T) {
		q, err := lowerToKeys("SELECT key FROM keys WHERE key LIKE 'session:%' LIMIT 100")
		require.NoError(t, err)
		assert.Equal(t, "session:*", q.pattern)
		assert.Equal(t, int64(100), q.limit)
	})

	t.Run("unsupported shapes", func(t *testing.T) {
		for _, sql := range []string{
			"SELECT key, value FROM keys",
			"SELECT * FROM keys WHERE key = 'a'",
			"SELECT * FROM a JOIN b ON a.id = b.id",
			"SELECT * FROM keys LIMIT 10 OFFSET 5",
			"SELECT value FROM keys",
		} {
			_, err := lowerToKeys(sql)
			require.Error(t, err, sql)
			assert.Equal(t, errors.CodeUnsupportedConstruct, errors.GetCode(err), sql)
		}
	})
}

func TestLikeToGlob(t *testing.T) {
	assert.Equal(t, "session:*", likeToGlob("session:%"))
	assert.Equal(t, "user:?", likeToGlob("user:_"))
	assert.Equal(t, "plain", likeToGlob("plain"))
}
