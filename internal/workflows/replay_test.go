package workflows

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Histories are exported with:
//
//	temporal workflow show --workflow-id <id> --output json > testdata/histories/<name>.json
func TestReplayRecordedHistories(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "histories", "*.json"))
	require.NoError(t, err)
	if len(files) == 0 {
		t.Skip("no recorded histories in testdata/histories")
	}
	for _, f := range files {
		t.Run(filepath.Base(f), func(t *testing.T) {
			require.NoError(t, NewReplayer().ReplayWorkflowHistoryFromJSONFile(nil, f))
		})
	}
}

func TestReplayRejectsEmptyHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"events": []}`), 0o600))
	require.Error(t, NewReplayer().ReplayWorkflowHistoryFromJSONFile(nil, path))
}
