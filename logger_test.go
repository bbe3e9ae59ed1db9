package odm_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/autom8ter/odm"
	"github.com/stretchr/testify/assert"
)

func TestLogger(t *testing.T) {
	t.Run("debug", func(t *testing.T) {
		logger, err := odm.NewLogger("debug", map[string]any{})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Debug(context.Background(), "debug logger", nil)
	})
	t.Run("info", func(t *testing.T) {
		logger, err := odm.NewLogger("info", map[string]any{"collection": "blog_post"})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Info(context.Background(), "info logger", map[string]any{"count": 1})
	})
	t.Run("warn", func(t *testing.T) {
		logger, err := odm.NewLogger("warning", map[string]any{})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Warn(context.Background(), "warn logger", nil)
	})
	t.Run("error", func(t *testing.T) {
		logger, err := odm.NewLogger("error", map[string]any{})
		assert.Nil(t, err)
		assert.NotNil(t, logger)
		logger.Error(context.Background(), "error logger", fmt.Errorf("this is an error"), nil)
	})
	t.Run("nop", func(t *testing.T) {
		logger := odm.NopLogger()
		assert.NotNil(t, logger)
		logger.Error(context.Background(), "discarded", fmt.Errorf("this is an error"), nil)
	})
}
