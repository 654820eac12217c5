// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidate(t *testing.T, dir, format string) (string, error) {
	t.Helper()
	cmd := NewValidateCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{format, "--output-dir", dir})
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateSchema_AdditiveRefinementPasses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.json"),
		[]byte(`{"properties":{"name":{"type":"string"}}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "refined_schema.json"),
		[]byte(`{"properties":{"name":{"type":"string","description":"full name"}}}`), 0o600))

	out, err := runValidate(t, dir, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "schema valid")
}

func TestValidateSchema_NonAdditiveRefinementFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema.json"),
		[]byte(`{"properties":{"name":{"type":"string"},"age":{"type":"integer"}}}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "refined_schema.json"),
		[]byte(`{"properties":{"name":{"type":"string"}}}`), 0o600))

	_, err := runValidate(t, dir, "schema")
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestValidateMapping_UnresolvedRequiredGapFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping.json"), []byte(`{
		"gaps": [{"targetPath":"$.id","targetType":"string","required":true}]
	}`), 0o600))

	_, err := runValidate(t, dir, "mapping")
	require.Error(t, err)
}

func TestValidateMapping_AllRequiredResolvedPasses(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mapping.json"), []byte(`{
		"gaps": [{"targetPath":"$.id","targetType":"string","required":true,"suggestedDefault":"unknown"}]
	}`), 0o600))

	out, err := runValidate(t, dir, "mapping")
	require.NoError(t, err)
	assert.Contains(t, out, "mapping valid")
}

func TestValidateCommand_UnknownFormatErrors(t *testing.T) {
	_, err := runValidate(t, t.TempDir(), "bogus")
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
