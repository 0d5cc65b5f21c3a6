package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessMode(t *testing.T) {
	for _, s := range []string{"readonly", "limited", "unrestricted"} {
		mode, err := ParseAccessMode(s)
		require.NoError(t, err)
		assert.Equal(t, s, mode.String())
	}

	for _, s := range []string{"", "rw", "READONLY", "read-only", "admin"} {
		_, err := ParseAccessMode(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestDecisionErr(t *testing.T) {
	d := Classify("SELECT 1", ModeReadonly)
	assert.NoError(t, d.Err(ModeReadonly))

	d = Classify("DELETE FROM t", ModeLimited)
	err := d.Err(ModeLimited)
	require.Error(t, err)

	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, ModeLimited, denied.Mode)
	assert.Equal(t, KindDelete, denied.Kind)
	assert.Equal(t, ReasonNoWhere, denied.Reason)
	assert.Contains(t, err.Error(), "limited")
	assert.Contains(t, err.Error(), ReasonNoWhere)
}

func TestStatementKindText(t *testing.T) {
	assert.Equal(t, "read", KindRead.String())
	assert.Equal(t, "drop", KindDrop.String())
	assert.Equal(t, "unknown", StatementKind(99).String())

	b, err := KindTruncate.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "truncate", string(b))
}
