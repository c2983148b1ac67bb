package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/samber/oops"
)

// Params are the MySQL connection settings.
type Params struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN builds the driver DSN. Extra params are merged on top of the defaults.
//
// clientFoundRows makes UPDATE report matched rows rather than changed rows,
// which the store's conditional updates rely on.
func (p Params) DSN(extra map[string]string) string {
	cfg := mysql.NewConfig()
	cfg.User = p.User
	cfg.Passwd = p.Pass
	cfg.Net = "tcp"
	cfg.Addr = p.Host + ":" + p.Port
	cfg.DBName = p.Name
	cfg.ParseTime = true // DATETIME -> time.Time
	cfg.Loc = time.UTC   // keeps times consistent
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range extra {
		cfg.Params[k] = v
	}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, p Params) (*sql.DB, error) {
	db, err := sql.Open("mysql", p.DSN(nil))
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("host", p.Host).Wrap(err)
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, oops.Code("DB_PING_FAILED").With("host", p.Host).Wrap(err)
	}
	return db, nil
}
