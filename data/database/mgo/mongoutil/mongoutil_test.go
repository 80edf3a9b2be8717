package mongoutil

import (
	"errors"
	"testing"

	"PPRealtime/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestNormalize(t *testing.T) {
	c := &Config{Address: []string{"h1:27017", "h2:27017"}, Database: "rt", Username: "u", Password: "p"}
	require.NoError(t, c.normalize())
	assert.Equal(t, defaultMaxPoolSize, c.MaxPoolSize)
	assert.Equal(t, defaultMaxRetry, c.MaxRetry)
	assert.Equal(t, "mongodb://u:p@h1:27017,h2:27017/rt?authSource=rt&maxPoolSize=100", c.Uri)

	c = &Config{Address: []string{"h1:27017"}, Database: "rt", AuthSource: "admin", MaxPoolSize: 5}
	require.NoError(t, c.normalize())
	assert.Equal(t, "mongodb://h1:27017/rt?authSource=admin&maxPoolSize=5", c.Uri)

	// 已给出 Uri 时不改写
	c = &Config{Uri: "mongodb://x:27017", Database: "rt"}
	require.NoError(t, c.normalize())
	assert.Equal(t, "mongodb://x:27017", c.Uri)

	assert.True(t, errors.Is((&Config{Database: "rt"}).normalize(), errs.ErrInvalidRequest))
	assert.True(t, errors.Is((&Config{Uri: "mongodb://x"}).normalize(), errs.ErrInvalidRequest))
}

func TestRetryable(t *testing.T) {
	assert.False(t, retryable(mongo.CommandError{Code: codeAuthenticationFailed}))
	assert.False(t, retryable(mongo.CommandError{Code: codeUnauthorized}))
	assert.True(t, retryable(mongo.CommandError{Code: 6}))
	assert.True(t, retryable(errors.New("server selection timeout")))
}
