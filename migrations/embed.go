// Package migrations embeds SQL migration files into the binary so the
// bridge can run migrations without needing the SQL files present on the
// filesystem.
package migrations

import (
	"embed"

	"github.com/zhxiaoyu/zeromqtt/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
