package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/parade-registry-api/pkg/config"
)

func TestURLEscapesCredentials(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "pase", Password: "p@ss word", Name: "pase_nino", SSLMode: "disable"}
	assert.Equal(t, "postgres://pase:p%40ss%20word@db:5432/pase_nino?sslmode=disable", URL(cfg))
}

func TestDSN(t *testing.T) {
	cfg := config.DatabaseConfig{Host: "db", Port: 5432, User: "pase", Password: "secret", Name: "pase_nino", SSLMode: "require"}
	assert.Equal(t, "host=db port=5432 user=pase password=secret dbname=pase_nino sslmode=require", DSN(cfg))
}
