// internal/game/phase.go
package game

import "time"

// Phase 游戏阶段
type Phase string

const (
	PhaseBackground         Phase = "background"
	PhaseIntroduction       Phase = "introduction"
	PhaseEvidenceCollection Phase = "evidence_collection"
	PhaseInvestigation      Phase = "investigation"
	PhaseDiscussion         Phase = "discussion"
	PhaseVoting             Phase = "voting"
	PhaseRevelation         Phase = "revelation"
	PhaseEnded              Phase = "ended"
)

// 阶段固定顺序，阶段只会向前推进
var phaseOrder = []Phase{
	PhaseBackground,
	PhaseIntroduction,
	PhaseEvidenceCollection,
	PhaseInvestigation,
	PhaseDiscussion,
	PhaseVoting,
	PhaseRevelation,
	PhaseEnded,
}

// PhaseStats 终止判定所需的阶段内统计快照
type PhaseStats struct {
	ActiveCount        int
	Counters           map[string]int
	TurnsThisPhase     int
	EvidenceDiscovered int
	EvidenceTotal      int
}

// everyoneSpoke 所有在场角色本阶段至少发言一次
func (st PhaseStats) everyoneSpoke() bool {
	if st.ActiveCount == 0 {
		return false
	}
	spoken := 0
	for _, n := range st.Counters {
		if n >= 1 {
			spoken++
		}
	}
	return spoken >= st.ActiveCount
}

// phaseSpec 每个阶段的回合上限、节奏延迟与提前终止判定
type phaseSpec struct {
	TurnCap     func(active int) int
	PacingDelay time.Duration
	Terminated  func(st PhaseStats) bool
}

// phaseTable 阶段行为表，避免按字符串分发
var phaseTable = map[Phase]phaseSpec{
	PhaseBackground: {
		TurnCap:     func(active int) int { return 0 },
		PacingDelay: 5 * time.Second,
		Terminated:  func(st PhaseStats) bool { return true },
	},
	PhaseIntroduction: {
		TurnCap:     func(active int) int { return active },
		PacingDelay: 5 * time.Second,
		Terminated:  func(st PhaseStats) bool { return st.everyoneSpoke() },
	},
	PhaseEvidenceCollection: {
		TurnCap:     func(active int) int { return 2 * active },
		PacingDelay: 8 * time.Second,
		Terminated: func(st PhaseStats) bool {
			// 发现证据达到总量75%即可收队
			return st.EvidenceTotal > 0 && st.EvidenceDiscovered*4 >= st.EvidenceTotal*3
		},
	},
	PhaseInvestigation: {
		TurnCap:     func(active int) int { return 4 * active },
		PacingDelay: 8 * time.Second,
		Terminated: func(st PhaseStats) bool {
			return st.everyoneSpoke() && st.TurnsThisPhase >= 2*st.ActiveCount
		},
	},
	PhaseDiscussion: {
		TurnCap:     func(active int) int { return 5 * active },
		PacingDelay: 10 * time.Second,
		Terminated: func(st PhaseStats) bool {
			return st.everyoneSpoke() && st.TurnsThisPhase >= 3*st.ActiveCount
		},
	},
	PhaseVoting: {
		TurnCap:     func(active int) int { return active + 3 },
		PacingDelay: 5 * time.Second,
		Terminated:  func(st PhaseStats) bool { return st.everyoneSpoke() },
	},
	PhaseRevelation: {
		// 上限由配置提供，见 PhaseController.TurnCap
		TurnCap:     nil,
		PacingDelay: 5 * time.Second,
		Terminated:  func(st PhaseStats) bool { return false },
	},
	PhaseEnded: {
		TurnCap:     func(active int) int { return 0 },
		PacingDelay: 0,
		Terminated:  func(st PhaseStats) bool { return true },
	},
}

// PhaseController 持有阶段状态机，只进不退
type PhaseController struct {
	current           int
	revelationTurnCap int
}

// NewPhaseController 创建阶段控制器，从背景阶段开始
func NewPhaseController(revelationTurnCap int) *PhaseController {
	if revelationTurnCap <= 0 {
		revelationTurnCap = 3
	}
	return &PhaseController{current: 0, revelationTurnCap: revelationTurnCap}
}

// Current 返回当前阶段
func (pc *PhaseController) Current() Phase {
	return phaseOrder[pc.current]
}

// Peek 返回下一个阶段，终态返回 ended
func (pc *PhaseController) Peek() Phase {
	if pc.current+1 < len(phaseOrder) {
		return phaseOrder[pc.current+1]
	}
	return PhaseEnded
}

// Advance 推进到下一个阶段并返回它
func (pc *PhaseController) Advance() Phase {
	if pc.current+1 < len(phaseOrder) {
		pc.current++
	}
	return phaseOrder[pc.current]
}

// Reset 回到背景阶段（仅用于整局重置）
func (pc *PhaseController) Reset() {
	pc.current = 0
}

// TurnCap 当前阶段的回合上限
func (pc *PhaseController) TurnCap(active int) int {
	phase := pc.Current()
	if phase == PhaseRevelation {
		return pc.revelationTurnCap
	}
	spec := phaseTable[phase]
	if spec.TurnCap == nil {
		return 0
	}
	return spec.TurnCap(active)
}

// Terminated 当前阶段的提前终止判定
func (pc *PhaseController) Terminated(st PhaseStats) bool {
	return phaseTable[pc.Current()].Terminated(st)
}

// PacingDelay 当前阶段切换后的等待时间
func (pc *PhaseController) PacingDelay() time.Duration {
	return phaseTable[pc.Current()].PacingDelay
}

// IsScheduled 该阶段是否走调度发言循环
func (p Phase) IsScheduled() bool {
	switch p {
	case PhaseIntroduction, PhaseEvidenceCollection, PhaseInvestigation,
		PhaseDiscussion, PhaseVoting, PhaseRevelation:
		return true
	}
	return false
}
