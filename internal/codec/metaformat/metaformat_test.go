package metaformat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSONPreferred(t *testing.T) {
	data := []byte(`{"title": "Doc", "schema": "v1"}`)
	table, format, err := Parse(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)
	assert.Equal(t, "Doc", table["title"])
}

func TestParseFallsBackToAlternative(t *testing.T) {
	data := []byte("title = \"Doc\"\nschema = \"v1\"\n")
	table, format, err := Parse(data, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, FormatTOML, format)
	assert.Equal(t, "Doc", table["title"])
}

func TestParseCombinedErrorWhenBothFail(t *testing.T) {
	_, _, err := Parse([]byte("{not valid anything"), FormatJSON)
	require.Error(t, err)
}

func TestJSONToTOMLRoundTripStructurallyEqual(t *testing.T) {
	jsonData := []byte(`{"title": "Doc", "count": 3}`)
	table, _, err := Parse(jsonData, FormatJSON)
	require.NoError(t, err)

	tomlBytes, err := Encode(table, FormatTOML)
	require.NoError(t, err)

	reparsed, format, err := Parse(tomlBytes, FormatTOML)
	require.NoError(t, err)
	assert.Equal(t, FormatTOML, format)
	assert.Equal(t, "Doc", reparsed["title"])
}

func TestEncodeDocumentSerialisesBidFirst(t *testing.T) {
	table := Table{"title": "Doc", "bid": "10000000-0000-0000-0000-000000000002", "alpha": true}

	out, err := EncodeDocument(table, FormatJSON)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), "{\n  \"bid\":"), "got %s", out)
	reparsed, _, err := Parse(out, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "Doc", reparsed["title"])
	assert.Equal(t, true, reparsed["alpha"])

	tomlOut, err := EncodeDocument(table, FormatTOML)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(tomlOut), "bid = "), "got %s", tomlOut)
}

func TestEncodeDocumentNormalisesNumbersForTOML(t *testing.T) {
	table, _, err := Parse([]byte(`{"count": 3}`), FormatJSON)
	require.NoError(t, err)

	out, err := EncodeDocument(table, FormatTOML)
	require.NoError(t, err)
	assert.Contains(t, string(out), "count = 3")

	reparsed, _, err := Parse(out, FormatTOML)
	require.NoError(t, err)
	assert.EqualValues(t, 3, reparsed["count"])
}

func TestParseNetworkConfigDefaultsToJSON(t *testing.T) {
	cfg := ParseNetworkConfig(Table{})
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.False(t, cfg.StrictFormat)
}

func TestParseNetworkConfigReadsNestedTable(t *testing.T) {
	table := Table{
		ReservedNetworkConfigKey: map[string]any{
			"format":        "toml",
			"strict_format": true,
			"title":         "My Network",
		},
	}
	cfg := ParseNetworkConfig(table)
	assert.Equal(t, FormatTOML, cfg.Format)
	assert.True(t, cfg.StrictFormat)
	assert.Equal(t, "My Network", cfg.Title)
}
