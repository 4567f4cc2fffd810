package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/yield?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "yield", User: "u", Password: "p"}))

	assert.Equal(t, "postgres://u:p%40ss%2Fw@db:6432/yield?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6432, Database: "yield", User: "u", Password: "p@ss/w", SSLMode: "require"}))

	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: " postgres://x ", Host: "ignored"}))
}
