// internal/game/validate.go
package game

import (
	"fmt"
	"strings"

	apperrors "github.com/Corphon/JubenshaMCP/internal/errors"
	"github.com/Corphon/JubenshaMCP/internal/models"
)

// ValidateSnapshot 校验剧本快照是否满足开局约束
// 返回的错误列出全部违反项，类型为 invalid_script
func ValidateSnapshot(script *models.ScriptSnapshot) error {
	if script == nil {
		return apperrors.NewInvalidScriptError("剧本不存在", nil)
	}

	violations := make([]string, 0)

	if strings.TrimSpace(script.Title) == "" {
		violations = append(violations, "剧本缺少标题")
	}

	victims := 0
	murderers := 0
	active := 0
	for _, c := range script.Characters {
		if strings.TrimSpace(c.Name) == "" {
			violations = append(violations, "存在未命名的角色")
			continue
		}
		if c.IsVictim {
			victims++
		} else {
			active++
		}
		if c.IsMurderer {
			murderers++
		}
	}

	if victims != 1 {
		violations = append(violations, fmt.Sprintf("被害人数量必须为1，当前为%d", victims))
	}
	if murderers != 1 {
		violations = append(violations, fmt.Sprintf("凶手数量必须为1，当前为%d", murderers))
	}
	if active == 0 {
		violations = append(violations, "没有可参与游戏的角色")
	}

	// 每条证据的地点都必须能被关键词规则匹配到某个地点
	for _, item := range script.Evidence {
		if !locationMatchable(item, script.Locations) {
			violations = append(violations, fmt.Sprintf("证据「%s」的地点「%s」无法匹配任何地点", item.Name, item.Location))
		}
	}

	if len(violations) > 0 {
		return apperrors.NewInvalidScriptError("剧本校验失败: "+strings.Join(violations, "；"), nil)
	}
	return nil
}

// locationMatchable 证据地点分词后至少有一个词能和某个地点名互相匹配
func locationMatchable(item models.Evidence, locations []models.Location) bool {
	tokens := strings.Fields(strings.ToLower(item.Location))
	if len(tokens) == 0 {
		return false
	}
	for _, token := range tokens {
		for _, loc := range locations {
			name := strings.ToLower(loc.Name)
			if name == "" {
				continue
			}
			if strings.Contains(name, token) || strings.Contains(token, name) {
				return true
			}
		}
	}
	return false
}
