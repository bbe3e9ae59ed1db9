package odm_test

import (
	"context"
	"testing"
	"time"

	"github.com/autom8ter/odm"
	"github.com/autom8ter/odm/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := odm.LoadConfig([]byte(`
storage:
  provider: mongodb
  params:
    url: mongodb://localhost:27017
    database: blog
log_level: debug
write_concern:
  w: 2
  j: true
  timeout: 5s
`))
		require.NoError(t, err)
		assert.Equal(t, "mongodb", cfg.Storage.Provider)
		assert.Equal(t, "blog", cfg.Storage.Params["database"])
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 2, cfg.WriteConcern.W)
		assert.True(t, cfg.WriteConcern.J)
		assert.Equal(t, 5*time.Second, cfg.WriteConcern.Timeout)
		assert.True(t, cfg.WriteConcern.Acknowledged())
	})
	t.Run("json", func(t *testing.T) {
		cfg, err := odm.LoadConfig([]byte(`{"storage": {"provider": "badger"}, "write_concern": {"unacknowledged": true}}`))
		require.NoError(t, err)
		assert.Equal(t, "badger", cfg.Storage.Provider)
		assert.False(t, cfg.WriteConcern.Acknowledged())
	})
	t.Run("missing provider", func(t *testing.T) {
		_, err := odm.LoadConfig([]byte(`log_level: info`))
		assert.True(t, errors.Is(err, errors.Validation))
	})
	t.Run("unknown provider", func(t *testing.T) {
		cfg, err := odm.LoadConfig([]byte(`storage: {provider: cassandra}`))
		require.NoError(t, err)
		_, err = odm.Open(context.Background(), cfg)
		assert.True(t, errors.IsOperation(err))
	})
}
