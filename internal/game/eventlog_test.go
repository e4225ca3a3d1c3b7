// internal/game/eventlog_test.go
package game

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/JubenshaMCP/internal/models"
)

func TestEventLogAppendAssignsMonotonicIDs(t *testing.T) {
	log := NewEventLog(100, 100)

	first := log.Append("林医生", "大家好", models.EventKindChat, EventMeta{})
	second := log.Append("小周", "你好", models.EventKindChat, EventMeta{})

	assert.Equal(t, uint64(1), first.ID)
	assert.Equal(t, uint64(2), second.ID)
	assert.Equal(t, uint64(2), log.NewestID())
	assert.Equal(t, uint64(1), log.EarliestRetainedID())
}

func TestEventLogSinceReturnsOnlyNewerEvents(t *testing.T) {
	log := NewEventLog(100, 100)
	for i := 0; i < 5; i++ {
		log.Append("林医生", fmt.Sprintf("发言%d", i), models.EventKindChat, EventMeta{})
	}

	events, truncated := log.Since(3)
	require.Len(t, events, 2)
	assert.False(t, truncated)
	assert.Equal(t, uint64(4), events[0].ID)
	assert.Equal(t, uint64(5), events[1].ID)
}

func TestEventLogTruncationKeepsIDsAndFlagsResync(t *testing.T) {
	log := NewEventLog(5000, 5000)
	for i := 0; i < 5001; i++ {
		log.Append("系统", "填充", models.EventKindChat, EventMeta{})
	}

	// 超出容量后最旧的一条被裁掉，但ID不重编
	assert.Equal(t, 5000, log.Len())
	assert.Equal(t, uint64(2), log.EarliestRetainedID())
	assert.Equal(t, uint64(5001), log.NewestID())

	// 从头同步的订阅者会拿到截断标记
	events, truncated := log.Since(0)
	assert.True(t, truncated)
	assert.Len(t, events, 5000)

	// 游标落在保留窗口内则无需重新同步
	events, truncated = log.Since(2500)
	assert.False(t, truncated)
	assert.Len(t, events, 2501)
	assert.Equal(t, uint64(2501), events[0].ID)
}

func TestEventLogEmptySinceIsNotTruncated(t *testing.T) {
	log := NewEventLog(100, 100)

	events, truncated := log.Since(0)
	assert.Empty(t, events)
	assert.False(t, truncated)
	assert.Equal(t, uint64(0), log.NewestID())
	assert.Equal(t, uint64(1), log.EarliestRetainedID())
}

func TestEventLogChatViewExcludesSystemEvents(t *testing.T) {
	log := NewEventLog(100, 100)
	log.Append(models.SystemSpeaker, "游戏开始", models.EventKindSystem, EventMeta{})
	log.Append(models.SystemSpeaker, "背景介绍", models.EventKindBackground, EventMeta{})
	log.Append("林医生", "我先自我介绍", models.EventKindChat, EventMeta{})
	log.Append("小周", "我发现了什么", models.EventKindAction, EventMeta{})

	chat := log.RecentChat(10)
	require.Len(t, chat, 2)
	assert.Equal(t, "林医生", chat[0].Character)
	assert.Equal(t, "小周", chat[1].Character)
}

func TestEventLogChatSinceFiltersByTimestamp(t *testing.T) {
	log := NewEventLog(100, 100)
	first := log.Append("林医生", "早", models.EventKindChat, EventMeta{})
	// float64 秒级时间戳精度有限，稍等片刻确保第二条事件的时间戳严格更大
	time.Sleep(time.Millisecond)
	log.Append("小周", "晚", models.EventKindChat, EventMeta{})

	result := log.ChatSince(first.Timestamp)
	require.Len(t, result, 1)
	assert.Equal(t, "小周", result[0].Character)
}

func TestEventLogAttachAudio(t *testing.T) {
	log := NewEventLog(100, 100)
	ev := log.Append("林医生", "测试语音", models.EventKindChat, EventMeta{})

	ok := log.AttachAudio(ev.ID, "https://audio.test/1.mp3", models.TTSStatusCompleted)
	require.True(t, ok)

	tail := log.Tail(1)
	require.Len(t, tail, 1)
	assert.Equal(t, "https://audio.test/1.mp3", tail[0].AudioURL)
	assert.Equal(t, models.TTSStatusCompleted, tail[0].TTSStatus)

	// 聊天视图同步更新
	chat := log.RecentChat(1)
	require.Len(t, chat, 1)
	assert.Equal(t, "https://audio.test/1.mp3", chat[0].AudioURL)

	assert.False(t, log.AttachAudio(9999, "x", models.TTSStatusCompleted))
}

func TestEventLogTTSHistoryFiltersByCharacter(t *testing.T) {
	log := NewEventLog(100, 100)
	a := log.Append("林医生", "一", models.EventKindChat, EventMeta{})
	b := log.Append("小周", "二", models.EventKindChat, EventMeta{})
	log.Append("林医生", "三", models.EventKindChat, EventMeta{})

	log.SetTTSStatus(a.ID, "https://audio.test/a.mp3", models.TTSStatusCompleted)
	log.SetTTSStatus(b.ID, "", models.TTSStatusFailed)

	all := log.TTSHistory("", 10)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID)
	assert.Equal(t, b.ID, all[1].ID)

	mine := log.TTSHistory("林医生", 10)
	require.Len(t, mine, 1)
	assert.Equal(t, a.ID, mine[0].ID)
}
