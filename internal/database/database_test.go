package database

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/judyrop/storefront/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestOpenAndMigrateSQLite(t *testing.T) {
	db, err := Open("sqlite", "file:migrate_test?mode=memory&cache=shared", quietLogger())
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	for _, table := range []string{"categories", "products", "carts", "cart_items", "orders", "order_items", "cart_sessions"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
	assert.True(t, db.Migrator().HasIndex(&models.CartItem{}, "idx_cart_product"))
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", quietLogger())
	assert.ErrorContains(t, err, "unsupported database driver")
}
