package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripts(t *testing.T) {
	for _, dialect := range []string{SQLite, Postgres} {
		t.Run(dialect, func(t *testing.T) {
			scripts, err := Scripts(dialect)
			require.NoError(t, err)
			require.NotEmpty(t, scripts)

			for _, table := range []string{"accounts", "trades", "dividends", "position_adjustments", "campaign_adjustments"} {
				assert.Contains(t, scripts[0], "CREATE TABLE IF NOT EXISTS "+table)
			}
		})
	}

	_, err := Scripts("oracle")
	assert.Error(t, err)
}
