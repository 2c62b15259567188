package dbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSNSeparator(t *testing.T) {
	assert.Equal(t, "?", dsnSeparator("postgres://u:p@localhost:5432/portal"))
	assert.Equal(t, "&", dsnSeparator("postgresql://u:p@localhost/portal?sslmode=require"))
	assert.Equal(t, " ", dsnSeparator("host=localhost dbname=portal"))
}
