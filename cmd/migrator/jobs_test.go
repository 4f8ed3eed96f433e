package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWhere(t *testing.T) {
	where, err := parseWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, where)

	where, err = parseWhere([]string{"customerNumber=C-1", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"customerNumber": "C-1", "note": "a=b", "empty": ""}, where)

	for _, bad := range []string{"customerNumber", "=C-1"} {
		_, err := parseWhere([]string{bad})
		assert.Error(t, err, bad)
	}
}
