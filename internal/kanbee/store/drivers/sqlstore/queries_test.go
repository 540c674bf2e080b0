package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	t.Parallel()

	pg := New(nil, Dialect{NumberedParams: true})
	require.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", pg.rebind("SELECT 1 WHERE a = ? AND b = ?"))
	require.Equal(t, "SELECT 1", pg.rebind("SELECT 1"))

	lite := New(nil, Dialect{})
	require.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestLikePattern(t *testing.T) {
	t.Parallel()

	require.Equal(t, "%bee%", likePattern("bee"))
	require.Equal(t, `%50\%\_off%`, likePattern("50%_off"))
	require.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestForUpdate(t *testing.T) {
	t.Parallel()

	pg := Dialect{NumberedParams: true, ForUpdate: "FOR UPDATE"}
	require.Empty(t, New(nil, pg).forUpdate(), "reads outside a transaction never lock")
	require.Equal(t, " FOR UPDATE", newTxQueries(nil, pg).forUpdate())
	require.Empty(t, newTxQueries(nil, Dialect{}).forUpdate())
}
