package db

import (
	"testing"

	"github.com/smallbiznis/spendwise/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	base := config.Config{
		DBHost:     "db",
		DBPort:     "5432",
		DBUser:     "spend",
		DBPassword: "pw",
		DBName:     "spendwise",
		DBSSLMode:  "disable",
	}

	pg := base
	pg.DBType = "postgres"
	dsn, err := DSN(pg)
	require.NoError(t, err)
	assert.Equal(t, "host=db port=5432 user=spend password=pw dbname=spendwise sslmode=disable TimeZone=UTC", dsn)

	lite := base
	lite.DBType = "sqlite"
	dsn, err = DSN(lite)
	require.NoError(t, err)
	assert.Equal(t, "spendwise.db", dsn)

	lite.DBName = ":memory:"
	dsn, err = DSN(lite)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", dsn)
}

func TestDSNRejectsUnknownType(t *testing.T) {
	_, err := DSN(config.Config{DBType: "oracle"})
	assert.Error(t, err)

	_, err = Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestDSNRejectsMySQL(t *testing.T) {
	_, err := DSN(config.Config{DBType: "mysql", DBName: "spendwise"})
	assert.ErrorContains(t, err, "unsupported database type")

	_, err = Dialect(config.Config{DBType: "mysql", DBName: "spendwise"})
	assert.Error(t, err)
}
