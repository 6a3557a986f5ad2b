package telemetry

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRecorderWritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	recorder, err := NewCSVRecorder(nil, &buf, true)
	require.NoError(t, err)

	recorder.RecordSwitch(switchEvent(true))
	recorder.RecordSwitch(switchEvent(false))

	rows, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"2024-03-01T12:00:00Z", "ingress", "eth0", "20mbit", "20000000", "128000", "true"}, rows[1])
	assert.Equal(t, "false", rows[2][6])
}

func TestOpenCSVFileAppendsWithoutRepeatingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switches.csv")

	first, err := OpenCSVFile(nil, path)
	require.NoError(t, err)
	first.RecordSwitch(switchEvent(true))
	require.NoError(t, first.Close())

	second, err := OpenCSVFile(nil, path)
	require.NoError(t, err)
	second.RecordSwitch(switchEvent(true))
	require.NoError(t, second.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, "20mbit", rows[2][3])
}
