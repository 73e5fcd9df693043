package frame

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/remoteglm/pkg/errors"
)

func TestReadColumnKeepsBlankRows(t *testing.T) {
	v, err := readColumn(strings.NewReader("\"Slope\"\n1\n\n3\n"))
	require.NoError(t, err)
	require.Len(t, v, 3)
	assert.Equal(t, 1.0, v[0])
	assert.True(t, math.IsNaN(v[1]))
	assert.Equal(t, 3.0, v[2])
}

func TestReadColumnCells(t *testing.T) {
	v, err := readColumn(strings.NewReader("Slope\r\n\"2.5\"\r\nNA\r\n\"\"\r\n-4\r\n"))
	require.NoError(t, err)
	require.Len(t, v, 4)
	assert.Equal(t, 2.5, v[0])
	assert.True(t, math.IsNaN(v[1]))
	assert.True(t, math.IsNaN(v[2]))
	assert.Equal(t, -4.0, v[3])
}

func TestReadColumnEmpty(t *testing.T) {
	_, err := readColumn(strings.NewReader(""))
	assert.True(t, errors.Is(err, errors.ErrEmptyData))

	v, err := readColumn(strings.NewReader("Slope\n"))
	require.NoError(t, err)
	assert.Empty(t, v)
}
