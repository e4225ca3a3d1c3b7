// internal/store/script_store.go
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/models"
)

// ScriptSummary 剧本列表项
type ScriptSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	PlayerCount int    `json:"player_count"`
	Difficulty  string `json:"difficulty"`
}

// FileScriptStore 文件形式的剧本库，每个剧本一个JSON文件
// 快照加载后进缓存且永不失效：同一进程内同一ID始终返回同一快照，
// 保证进行中的会话不会读到中途被替换的剧本
type FileScriptStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*models.ScriptSnapshot
}

// NewFileScriptStore 创建剧本库，目录不存在时自动创建
func NewFileScriptStore(dir string) (*FileScriptStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建剧本目录失败: %w", err)
	}
	return &FileScriptStore{
		dir:   dir,
		cache: make(map[string]*models.ScriptSnapshot),
	}, nil
}

// GetScript 按ID加载剧本快照
func (s *FileScriptStore) GetScript(scriptID string) (*models.ScriptSnapshot, error) {
	if scriptID == "" {
		return nil, apperrors.NewValidationError("剧本ID不能为空", nil)
	}
	// 防止路径穿越
	if scriptID != filepath.Base(scriptID) || strings.Contains(scriptID, "..") {
		return nil, apperrors.NewValidationError("非法的剧本ID", nil)
	}

	s.mu.RLock()
	if cached, ok := s.cache[scriptID]; ok {
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(s.dir, scriptID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("剧本 %s 不存在", scriptID), err)
		}
		return nil, apperrors.NewProcessingError("读取剧本文件失败", err)
	}

	var script models.ScriptSnapshot
	if err := json.Unmarshal(data, &script); err != nil {
		return nil, apperrors.NewProcessingError(fmt.Sprintf("解析剧本 %s 失败", scriptID), err)
	}
	if script.ID == "" {
		script.ID = scriptID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 并发加载同一剧本时以先入缓存的为准
	if cached, ok := s.cache[scriptID]; ok {
		return cached, nil
	}
	s.cache[scriptID] = &script
	return &script, nil
}

// ListScripts 列出剧本库中的全部剧本
func (s *FileScriptStore) ListScripts() ([]ScriptSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.NewProcessingError("读取剧本目录失败", err)
	}

	summaries := make([]ScriptSummary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		script, err := s.GetScript(id)
		if err != nil {
			// 单个坏文件不影响整个列表
			continue
		}
		summaries = append(summaries, ScriptSummary{
			ID:          script.ID,
			Title:       script.Title,
			PlayerCount: script.PlayerCount,
			Difficulty:  script.Difficulty,
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries, nil
}

// SaveScript 写入剧本文件（原子写），已缓存的快照不受影响
func (s *FileScriptStore) SaveScript(script *models.ScriptSnapshot) error {
	if script == nil || script.ID == "" {
		return apperrors.NewValidationError("剧本缺少ID", nil)
	}

	content, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return apperrors.NewProcessingError("序列化剧本失败", err)
	}

	fullPath := filepath.Join(s.dir, script.ID+".json")
	tempPath := fullPath + ".tmp"
	if err := os.WriteFile(tempPath, content, 0644); err != nil {
		return apperrors.NewProcessingError("保存临时文件失败", err)
	}
	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return apperrors.NewProcessingError("保存剧本文件失败", err)
	}
	return nil
}
