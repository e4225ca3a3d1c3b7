// internal/game/evidence.go
package game

import (
	"fmt"
	"strings"

	"github.com/Corphon/JubenshaMCP/internal/models"
)

// EvidenceResolver 把自由文本的搜证发言匹配到未发现的证据
// 同一条证据最多只会被发现一次
type EvidenceResolver struct {
	script     *models.ScriptSnapshot
	discovered map[string]*models.DiscoveredEvidence // 证据名 -> 记录
	order      int
}

// NewEvidenceResolver 创建证据解析器
func NewEvidenceResolver(script *models.ScriptSnapshot) *EvidenceResolver {
	return &EvidenceResolver{
		script:     script,
		discovered: make(map[string]*models.DiscoveredEvidence),
	}
}

// Resolve 判断发言是否命中某条未发现的证据
// 规则：把证据的location按空白切词，任一分词是发言的子串即命中；
// 一次发言最多命中一条证据，按剧本顺序取第一条
func (r *EvidenceResolver) Resolve(speaker, utterance string) *models.DiscoveredEvidence {
	text := strings.ToLower(utterance)
	if text == "" {
		return nil
	}

	for _, item := range r.script.Evidence {
		if _, done := r.discovered[item.Name]; done {
			continue
		}
		for _, token := range strings.Fields(strings.ToLower(item.Location)) {
			if token == "" {
				continue
			}
			if strings.Contains(text, token) {
				return r.mark(item, speaker)
			}
		}
	}
	return nil
}

// MarkDiscovered 直接标记某条证据为已发现（管理操作）
func (r *EvidenceResolver) MarkDiscovered(name, speaker string) *models.DiscoveredEvidence {
	if _, done := r.discovered[name]; done {
		return nil
	}
	for _, item := range r.script.Evidence {
		if item.Name == name {
			return r.mark(item, speaker)
		}
	}
	return nil
}

func (r *EvidenceResolver) mark(item models.Evidence, speaker string) *models.DiscoveredEvidence {
	r.order++
	rec := &models.DiscoveredEvidence{
		Evidence:     item,
		DiscoveredBy: speaker,
		Order:        r.order,
	}
	r.discovered[item.Name] = rec
	return rec
}

// Discovered 返回已发现证据，按发现顺序
func (r *EvidenceResolver) Discovered() []models.DiscoveredEvidence {
	result := make([]models.DiscoveredEvidence, 0, len(r.discovered))
	for _, item := range r.script.Evidence {
		if rec, ok := r.discovered[item.Name]; ok {
			result = append(result, *rec)
		}
	}
	// 按发现顺序而不是剧本顺序
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].Order < result[i].Order {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result
}

// DiscoveredCount 已发现证据数量
func (r *EvidenceResolver) DiscoveredCount() int {
	return len(r.discovered)
}

// TotalCount 剧本证据总量
func (r *EvidenceResolver) TotalCount() int {
	return len(r.script.Evidence)
}

// Reset 清空发现状态
func (r *EvidenceResolver) Reset() {
	r.discovered = make(map[string]*models.DiscoveredEvidence)
	r.order = 0
}

// DiscoveryAnnouncement 构造发现证据的系统播报文案
func DiscoveryAnnouncement(speaker, evidenceName string) string {
	return fmt.Sprintf("%s 发现了证据：%s", speaker, evidenceName)
}
