package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_RegistersCommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"migrate", "import-bom", "rematch", "reconcile", "apply-promos", "export-bom", "export-orders"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestImportBom_RequiresSheet(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"import-bom"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	assert.Error(t, root.Execute())
}

func TestImportBom_DryRun(t *testing.T) {
	t.Setenv("BOM_LAYOUT_FILE", "")
	t.Setenv("REMATCH_WORKERS", "")
	t.Setenv("PROMO_TIMEZONE", "")
	t.Setenv("AUTO_MIGRATE", "")

	dir := t.TempDir()
	sheet := filepath.Join(dir, "bom.csv")
	content := "세트 BOM\n기준일,2026-07-01\n세트코드,세트명,품목코드,품목명,수량,품목코드,품목명,수량\n" +
		"KIT-001,블루 세트,SKU-1,세럼,2,SKU-1,세럼,1\n" +
		",,SKU-42,크림,1\n"
	require.NoError(t, os.WriteFile(sheet, []byte(content), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"import-bom", sheet, "--dry-run", "--env", filepath.Join(dir, "none.env")})
	require.NoError(t, root.Execute())

	var resp struct {
		Stats struct {
			SourceCells      int `json:"source_cells"`
			Derived          int `json:"derived"`
			MergedDuplicates int `json:"merged_duplicates"`
			EmptyKitCells    int `json:"empty_kit_cells"`
		} `json:"stats"`
		Reconciliation struct {
			Match bool `json:"match"`
		} `json:"reconciliation"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, 3, resp.Stats.SourceCells)
	assert.Equal(t, 1, resp.Stats.Derived)
	assert.Equal(t, 1, resp.Stats.MergedDuplicates)
	assert.Equal(t, 1, resp.Stats.EmptyKitCells)
	assert.True(t, resp.Reconciliation.Match)
}
