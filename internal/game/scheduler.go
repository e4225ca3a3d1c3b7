// internal/game/scheduler.go
package game

import (
	"github.com/Corphon/JubenshaMCP/internal/models"
)

// TurnScheduler 在在场角色之间挑选下一位发言者
// 规则按优先级：公平兜底 -> 反垄断排除 -> 轮转策略 -> 剧本顺序兜底
// 给定同样的输入，选择是确定性的，便于测试
type TurnScheduler struct {
	active   []models.Character
	counters map[string]int

	lastSpeaker string
	streak      int // 同一人连续发言次数
	cursor      int // 轮转游标
}

// NewTurnScheduler 创建调度器，active 必须保持剧本顺序
func NewTurnScheduler(active []models.Character) *TurnScheduler {
	s := &TurnScheduler{active: active}
	s.ResetForPhase(PhaseBackground)
	return s
}

// ResetForPhase 进入新阶段：清零计数器和连续发言状态
func (s *TurnScheduler) ResetForPhase(phase Phase) {
	s.counters = make(map[string]int, len(s.active))
	for _, c := range s.active {
		s.counters[c.Name] = 0
	}
	s.lastSpeaker = ""
	s.streak = 0
	s.cursor = 0
}

// NextSpeaker 选出下一位发言者，没有可选角色时返回nil
func (s *TurnScheduler) NextSpeaker(phase Phase) *models.Character {
	if len(s.active) == 0 {
		return nil
	}

	// 规则1：讨论/投票阶段的公平兜底，优先让还没发言的人开口
	if phase == PhaseDiscussion || phase == PhaseVoting {
		for i := range s.active {
			if s.counters[s.active[i].Name] == 0 {
				return &s.active[i]
			}
		}
	}

	// 规则2：反垄断，同一人连说两轮后硬性排除（前提是还有别人）
	excluded := ""
	if s.streak >= 2 && len(s.active) > 1 {
		excluded = s.lastSpeaker
	}

	// 规则3：从轮转游标起挑第一个未被排除的角色
	for i := 0; i < len(s.active); i++ {
		candidate := &s.active[(s.cursor+i)%len(s.active)]
		if candidate.Name == excluded {
			continue
		}
		return candidate
	}

	// 规则4：兜底取剧本顺序第一位
	return &s.active[0]
}

// RecordTurn 记录一次成功发言，调用方在发言完成后调用
func (s *TurnScheduler) RecordTurn(name string) {
	s.counters[name]++
	if s.lastSpeaker == name {
		s.streak++
	} else {
		s.lastSpeaker = name
		s.streak = 1
	}
	// 游标推进到发言者的下一位
	for i := range s.active {
		if s.active[i].Name == name {
			s.cursor = (i + 1) % len(s.active)
			break
		}
	}
}

// Counters 返回计数器副本
func (s *TurnScheduler) Counters() map[string]int {
	result := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		result[k] = v
	}
	return result
}

// TotalTurns 本阶段累计发言数
func (s *TurnScheduler) TotalTurns() int {
	total := 0
	for _, n := range s.counters {
		total += n
	}
	return total
}

// ActiveCount 在场角色数
func (s *TurnScheduler) ActiveCount() int {
	return len(s.active)
}
