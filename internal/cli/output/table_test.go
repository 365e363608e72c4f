package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	table := NewTableData("LOGIN", "PERMISSIONS")
	table.AddRow("admin", "admin, download, upload")
	table.AddRow("guest", "download")

	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, table))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "LOGIN")
	assert.Contains(t, lines[0], "PERMISSIONS")
	assert.Contains(t, lines[1], "admin")
	assert.Contains(t, lines[2], "guest")
}

func TestPrintTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, NewTableData("LOGIN")))

	// Header only, no data rows.
	assert.Contains(t, buf.String(), "LOGIN")
	assert.Len(t, strings.Split(strings.TrimRight(buf.String(), "\n"), "\n"), 1)
}
