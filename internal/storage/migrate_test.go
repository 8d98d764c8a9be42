package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (id INTEGER);\n", extractUpMigration(content))

	assert.Equal(t, "CREATE TABLE b (id INTEGER);", extractUpMigration("CREATE TABLE b (id INTEGER);"))
	assert.Equal(t, "\nCREATE TABLE c (id INTEGER);", extractUpMigration("-- +migrate Up\nCREATE TABLE c (id INTEGER);"))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.True(t, isAlreadyExistsError(errors.New("table restaurants already exists")))
	assert.True(t, isAlreadyExistsError(errors.New("duplicate column name: rating")))
	assert.False(t, isAlreadyExistsError(errors.New("syntax error")))
}
