// internal/store/script_store_test.go
package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/models"
)

func sampleScript(id string) *models.ScriptSnapshot {
	return &models.ScriptSnapshot{
		ID:          id,
		Title:       "雾中旅馆",
		PlayerCount: 4,
		Difficulty:  "简单",
		Characters: []models.Character{
			{Name: "老板娘", IsVictim: true},
			{Name: "旅客甲", IsMurderer: true},
			{Name: "旅客乙"},
		},
		Evidence:  []models.Evidence{{Name: "房卡", Location: "前台"}},
		Locations: []models.Location{{Name: "前台"}},
	}
}

func newTestStore(t *testing.T) *FileScriptStore {
	t.Helper()
	s, err := NewFileScriptStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestScriptStoreSaveAndGet(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveScript(sampleScript("s1")))

	script, err := s.GetScript("s1")
	require.NoError(t, err)
	assert.Equal(t, "雾中旅馆", script.Title)
	require.Len(t, script.Characters, 3)
	assert.True(t, script.Characters[0].IsVictim)
}

func TestScriptStoreCachesSnapshot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveScript(sampleScript("s1")))

	first, err := s.GetScript("s1")
	require.NoError(t, err)

	// 覆盖文件后仍返回首次加载的快照
	changed := sampleScript("s1")
	changed.Title = "换了标题"
	require.NoError(t, s.SaveScript(changed))

	second, err := s.GetScript("s1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "雾中旅馆", second.Title)
}

func TestScriptStoreNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetScript("missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFoundError(err))
}

func TestScriptStoreRejectsBadIDs(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"", "../etc/passwd", "a/b"} {
		_, err := s.GetScript(id)
		require.Error(t, err, "id %q", id)
		assert.True(t, apperrors.IsValidationError(err), "id %q", id)
	}
}

func TestScriptStoreListScripts(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SaveScript(sampleScript("b-script")))
	require.NoError(t, s.SaveScript(sampleScript("a-script")))

	// 非JSON文件和坏文件被跳过
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "README.txt"), []byte("说明"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "broken.json"), []byte("{不是JSON"), 0644))

	list, err := s.ListScripts()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a-script", list[0].ID)
	assert.Equal(t, "b-script", list[1].ID)
	assert.Equal(t, "雾中旅馆", list[0].Title)
}

func TestScriptStoreFillsMissingID(t *testing.T) {
	s := newTestStore(t)
	raw := []byte(`{"title":"无ID剧本","characters":[]}`)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "noid.json"), raw, 0644))

	script, err := s.GetScript("noid")
	require.NoError(t, err)
	assert.Equal(t, "noid", script.ID)
}
