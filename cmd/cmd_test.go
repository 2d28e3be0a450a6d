package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/cvfill/api/schemas"
)

const applyPage = `<!DOCTYPE html>
<html><body>
<form id="apply">
	<label for="fn">First name</label><input id="fn" name="first_name">
	<input name="email" type="email">
	<input name="website" type="url">
</form>
</body></html>`

const janeProfile = `{"personal_info":{"full_name":"Jane Doe","email":"jane@x.com"}}`

// executeCommand runs a fresh command tree and captures its output.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cvfill version "+Version+"\n", out)

	out, err = executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "cvfill version "+Version)
}

func TestDetect_File(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "apply.html", applyPage)

	out, err := executeCommand(t, "detect", "--file", page)
	require.NoError(t, err)

	var resp schemas.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.FormsCount)
	assert.Equal(t, 1, *resp.FormsCount)
	require.Len(t, resp.Forms, 1)
	assert.Len(t, resp.Forms[0].Fields, 3)
}

func TestDetect_RequiresTarget(t *testing.T) {
	_, err := executeCommand(t, "detect")
	assert.Error(t, err)

	_, err = executeCommand(t, "detect", "--file", "a.html", "--url", "https://example.com")
	assert.Error(t, err)
}

func TestFill_FileWithOutput(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "apply.html", applyPage)
	prof := writeFile(t, dir, "jane.json", janeProfile)
	outPath := filepath.Join(dir, "filled.html")

	out, err := executeCommand(t, "fill", "--file", page, "--profile", prof, "--out", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Filled 2 fields")

	rendered, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(rendered), `value="Jane"`)
	assert.Contains(t, string(rendered), `value="jane@x.com"`)
	assert.NotContains(t, string(rendered), "outline", "no flash styles in the rendered page")
}

func TestFill_NoForms(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "empty.html", `<html><body><p>nothing here</p></body></html>`)
	prof := writeFile(t, dir, "jane.json", janeProfile)

	out, err := executeCommand(t, "fill", "--file", page, "--profile", prof)
	require.NoError(t, err)
	assert.Contains(t, out, "No forms detected")
}

func TestFill_OutRequiresFile(t *testing.T) {
	_, err := executeCommand(t, "fill", "--url", "https://example.com", "--profile", "x.json", "--out", "y.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--out requires --file")
}

func TestFill_MissingProfile(t *testing.T) {
	dir := t.TempDir()
	page := writeFile(t, dir, "apply.html", applyPage)

	_, err := executeCommand(t, "fill", "--file", page, "--profile", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestMap(t *testing.T) {
	dir := t.TempDir()
	prof := writeFile(t, dir, "jane.json", janeProfile)
	fields := writeFile(t, dir, "fields.json", `[
		{"name":"email","type":"email"},
		{"name":"last_name","label":"Surname"},
		{"name":"favorite_color"}
	]`)

	out, err := executeCommand(t, "map", "--fields", fields, "--profile", prof)
	require.NoError(t, err)

	var resp schemas.Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.MappedFields)
	assert.Equal(t, 2, *resp.MappedFields)
	assert.Equal(t, []string{"favorite_color"}, resp.UnmappedFields)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "cvfill.yaml", "store:\n  kind: redis\n")

	_, err := executeCommand(t, "--config", cfgPath, "detect", "--file", "x.html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store kind")
}
