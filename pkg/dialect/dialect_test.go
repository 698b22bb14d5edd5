package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/crossplan/pkg/models"
)

func TestForBackend_AllBackendsCovered(t *testing.T) {
	for _, b := range models.Backends {
		d, err := ForBackend(b)
		require.NoError(t, err, b)
		assert.Equal(t, b, d.Backend)
	}

	_, err := ForBackend(models.Backend("oracle"))
	assert.Error(t, err)
}

func TestQuote(t *testing.T) {
	tests := []struct {
		backend  models.Backend
		ident    string
		expected string
	}{
		{models.BackendPostgres, "user", `"user"`},
		{models.BackendMySQL, "order", "`order`"},
		{models.BackendSQLite, "group", "`group`"},
		{models.BackendMSSQL, "select", "[select]"},
		{models.BackendMSSQL, "we]ird", "[we]]ird]"},
		{models.BackendMySQL, "back`tick", "`back``tick`"},
		{models.BackendPostgres, `dou"ble`, `"dou""ble"`},
		// mongodb/redis executors parse the emitted SQL back, under a
		// backtick grammar.
		{models.BackendMongoDB, "users", "`users`"},
		{models.BackendRedis, "sess:*", "`sess:*`"},
	}

	for _, tt := range tests {
		d, err := ForBackend(tt.backend)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, d.Quote(tt.ident), "%s %s", tt.backend, tt.ident)
	}
}

func TestFeatureMatrix(t *testing.T) {
	pg, _ := ForBackend(models.BackendPostgres)
	my, _ := ForBackend(models.BackendMySQL)
	lite, _ := ForBackend(models.BackendSQLite)
	ms, _ := ForBackend(models.BackendMSSQL)
	mongo, _ := ForBackend(models.BackendMongoDB)
	redis, _ := ForBackend(models.BackendRedis)

	assert.True(t, pg.SupportsFullJoin)
	assert.True(t, ms.SupportsFullJoin)

	assert.False(t, my.SupportsFullJoin)
	assert.True(t, my.FullJoinFallback)
	assert.False(t, lite.SupportsFullJoin)
	assert.True(t, lite.FullJoinFallback)
	assert.True(t, lite.SupportsWindowFunctions)

	assert.Equal(t, OffsetFetch, ms.LimitStyle)
	assert.True(t, ms.RequiresOrderedOffset)
	assert.False(t, pg.RequiresOrderedOffset)

	assert.True(t, mongo.MinimalSurface)
	assert.True(t, redis.MinimalSurface)
	assert.False(t, mongo.SupportsCTE)
	assert.False(t, mongo.SupportsWindowFunctions)
}

func TestBoolLiteral(t *testing.T) {
	pg, _ := ForBackend(models.BackendPostgres)
	lite, _ := ForBackend(models.BackendSQLite)

	assert.Equal(t, "TRUE", pg.BoolLiteral(true))
	assert.Equal(t, "FALSE", pg.BoolLiteral(false))
	assert.Equal(t, "1", lite.BoolLiteral(true))
	assert.Equal(t, "0", lite.BoolLiteral(false))
}
