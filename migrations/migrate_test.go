package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_SortedAndEmbedded(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)

	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
	assert.Equal(t, "0001_postgis.sql", names[0])
}

func TestMigrations_ReminderColumnsPresent(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)

	var all strings.Builder
	for _, n := range names {
		body, err := migrationFiles.ReadFile(n)
		require.NoError(t, err)
		all.Write(body)
	}

	sql := all.String()
	for _, col := range []string{
		"approval_creation_reminder_sent_at",
		"approval_deadline_reminder_sent_at",
		"reminder_sent_at",
		"blocked_dates_zone_date_unique",
	} {
		assert.Contains(t, sql, col)
	}
}
