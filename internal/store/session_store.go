// internal/store/session_store.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/models"
)

// 每个会话在Redis里最多保留的事件条数，和内存日志的窗口保持一致
const redisEventCap = 5000

// RedisSessionStore 基于Redis的会话持久化
// 键布局：
//
//	jubensha:lookup:{user}:{script} -> 会话ID（活跃会话的定位键）
//	jubensha:session:{id}           -> 会话记录JSON
//	jubensha:events:{id}            -> 事件列表，尾部追加并裁剪
type RedisSessionStore struct {
	client *redis.Client
}

// NewRedisSessionStore 连接Redis并确认可用
func NewRedisSessionStore(addr string) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("连接Redis失败: %w", err)
	}
	return &RedisSessionStore{client: client}, nil
}

func lookupKey(userID, scriptID string) string {
	return fmt.Sprintf("jubensha:lookup:%s:%s", userID, scriptID)
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("jubensha:session:%s", sessionID)
}

func eventsKey(sessionID string) string {
	return fmt.Sprintf("jubensha:events:%s", sessionID)
}

// ResolveOrCreate 同一(用户,剧本)对最多一个活跃会话：
// 有活跃会话则返回它，否则创建新会话
func (s *RedisSessionStore) ResolveOrCreate(ctx context.Context, userID, scriptID string) (*models.SessionRecord, error) {
	sessionID, err := s.client.Get(ctx, lookupKey(userID, scriptID)).Result()
	if err == nil && sessionID != "" {
		record, loadErr := s.loadRecord(ctx, sessionID)
		if loadErr == nil && record.Status == models.SessionStatusActive {
			return record, nil
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		return nil, apperrors.NewProcessingError("查询会话失败", err)
	}

	record := &models.SessionRecord{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ScriptID:  scriptID,
		Status:    models.SessionStatusActive,
		CreatedAt: time.Now(),
	}
	if err := s.saveRecord(ctx, record); err != nil {
		return nil, err
	}
	if err := s.client.Set(ctx, lookupKey(userID, scriptID), record.SessionID, 0).Err(); err != nil {
		return nil, apperrors.NewProcessingError("写入会话索引失败", err)
	}
	return record, nil
}

// Finalize 把会话标记为已结束并记录语音总时长
// 定位键同时清除，下次同一(用户,剧本)会创建新会话
func (s *RedisSessionStore) Finalize(ctx context.Context, sessionID string, totalTTSDuration float64) error {
	record, err := s.loadRecord(ctx, sessionID)
	if err != nil {
		return err
	}

	record.Status = models.SessionStatusEnded
	record.FinalizedAt = time.Now()
	record.TotalTTSDuration = totalTTSDuration
	if err := s.saveRecord(ctx, record); err != nil {
		return err
	}
	return s.client.Del(ctx, lookupKey(record.UserID, record.ScriptID)).Err()
}

// AppendEvent 追加一条事件到会话的事件列表并裁剪窗口
func (s *RedisSessionStore) AppendEvent(ctx context.Context, sessionID string, event models.GameEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return apperrors.NewProcessingError("序列化事件失败", err)
	}

	key := eventsKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -redisEventCap, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewProcessingError("写入事件失败", err)
	}
	return nil
}

// Events 读取会话的持久化事件（按写入顺序）
func (s *RedisSessionStore) Events(ctx context.Context, sessionID string) ([]models.GameEvent, error) {
	raw, err := s.client.LRange(ctx, eventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, apperrors.NewProcessingError("读取事件失败", err)
	}

	events := make([]models.GameEvent, 0, len(raw))
	for _, item := range raw {
		var ev models.GameEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// DeleteSessions 批量删除会话，逐条返回结果
// 只有会话属主可以删除
func (s *RedisSessionStore) DeleteSessions(ctx context.Context, sessionIDs []string, userID string) []models.SessionDeleteResult {
	results := make([]models.SessionDeleteResult, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		result := models.SessionDeleteResult{SessionID: sessionID}

		record, err := s.loadRecord(ctx, sessionID)
		if err != nil {
			result.Error = "会话不存在"
			results = append(results, result)
			continue
		}
		if record.UserID != userID {
			result.Error = "无权删除该会话"
			results = append(results, result)
			continue
		}

		keys := []string{sessionKey(sessionID), eventsKey(sessionID), lookupKey(record.UserID, record.ScriptID)}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			result.Error = "删除失败"
			results = append(results, result)
			continue
		}
		result.Deleted = true
		results = append(results, result)
	}
	return results
}

func (s *RedisSessionStore) loadRecord(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 不存在", sessionID), err)
		}
		return nil, apperrors.NewProcessingError("读取会话记录失败", err)
	}

	var record models.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, apperrors.NewProcessingError("解析会话记录失败", err)
	}
	return &record, nil
}

func (s *RedisSessionStore) saveRecord(ctx context.Context, record *models.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return apperrors.NewProcessingError("序列化会话记录失败", err)
	}
	if err := s.client.Set(ctx, sessionKey(record.SessionID), data, 0).Err(); err != nil {
		return apperrors.NewProcessingError("保存会话记录失败", err)
	}
	return nil
}

// Close 关闭底层连接
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// MemorySessionStore 内存版会话存储，Redis不可用时的退化方案
type MemorySessionStore struct {
	mu      sync.Mutex
	records map[string]*models.SessionRecord
	lookup  map[string]string
	events  map[string][]models.GameEvent
}

// NewMemorySessionStore 创建内存会话存储
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		records: make(map[string]*models.SessionRecord),
		lookup:  make(map[string]string),
		events:  make(map[string][]models.GameEvent),
	}
}

func (s *MemorySessionStore) ResolveOrCreate(ctx context.Context, userID, scriptID string) (*models.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := userID + ":" + scriptID
	if sessionID, ok := s.lookup[key]; ok {
		if record, exists := s.records[sessionID]; exists && record.Status == models.SessionStatusActive {
			clone := *record
			return &clone, nil
		}
	}

	record := &models.SessionRecord{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ScriptID:  scriptID,
		Status:    models.SessionStatusActive,
		CreatedAt: time.Now(),
	}
	s.records[record.SessionID] = record
	s.lookup[key] = record.SessionID
	clone := *record
	return &clone, nil
}

func (s *MemorySessionStore) Finalize(ctx context.Context, sessionID string, totalTTSDuration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[sessionID]
	if !ok {
		return apperrors.NewNotFoundError(fmt.Sprintf("会话 %s 不存在", sessionID), nil)
	}
	record.Status = models.SessionStatusEnded
	record.FinalizedAt = time.Now()
	record.TotalTTSDuration = totalTTSDuration
	delete(s.lookup, record.UserID+":"+record.ScriptID)
	return nil
}

func (s *MemorySessionStore) AppendEvent(ctx context.Context, sessionID string, event models.GameEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := append(s.events[sessionID], event)
	if len(list) > redisEventCap {
		list = list[len(list)-redisEventCap:]
	}
	s.events[sessionID] = list
	return nil
}

func (s *MemorySessionStore) DeleteSessions(ctx context.Context, sessionIDs []string, userID string) []models.SessionDeleteResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]models.SessionDeleteResult, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		result := models.SessionDeleteResult{SessionID: sessionID}
		record, ok := s.records[sessionID]
		if !ok {
			result.Error = "会话不存在"
		} else if record.UserID != userID {
			result.Error = "无权删除该会话"
		} else {
			delete(s.records, sessionID)
			delete(s.events, sessionID)
			delete(s.lookup, record.UserID+":"+record.ScriptID)
			result.Deleted = true
		}
		results = append(results, result)
	}
	return results
}
