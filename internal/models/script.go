// internal/models/script.go
package models

import "strings"

// ScriptSnapshot 表示一份剧本的不可变快照
// 会话运行期间共享只读，禁止修改
type ScriptSnapshot struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	PlayerCount int             `json:"player_count"`
	Difficulty  string          `json:"difficulty"`
	Background  BackgroundStory `json:"background"`
	Characters  []Character     `json:"characters"`
	Evidence    []Evidence      `json:"evidence"`
	Locations   []Location      `json:"locations"`
	Phases      []string        `json:"phases,omitempty"`
}

// BackgroundStory 剧本背景故事
type BackgroundStory struct {
	Setting            string `json:"setting"`
	Incident           string `json:"incident"`
	VictimBackground   string `json:"victim_background"`
	InvestigationScope string `json:"investigation_scope"`
	Rules              string `json:"rules"`
}

// Character 剧本角色
type Character struct {
	Name        string   `json:"name"`
	Gender      string   `json:"gender"`
	Age         int      `json:"age"`
	Profession  string   `json:"profession"`
	Background  string   `json:"background"`
	Secret      string   `json:"secret"`
	Objective   string   `json:"objective"`
	Personality []string `json:"personality"`
	IsVictim    bool     `json:"is_victim"`
	IsMurderer  bool     `json:"is_murderer"`
	VoiceID     string   `json:"voice_id,omitempty"`
}

// Evidence 证据条目
type Evidence struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Importance  string `json:"importance"`
	Hidden      bool   `json:"hidden"`
}

// Location 可搜查地点
type Location struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsCrimeScene bool   `json:"is_crime_scene"`
}

// ActiveCharacters 返回非被害人角色（参与发言的角色集合），保持剧本顺序
func (s *ScriptSnapshot) ActiveCharacters() []Character {
	active := make([]Character, 0, len(s.Characters))
	for _, c := range s.Characters {
		if !c.IsVictim {
			active = append(active, c)
		}
	}
	return active
}

// Victim 返回被害人角色，没有则返回nil
func (s *ScriptSnapshot) Victim() *Character {
	for i := range s.Characters {
		if s.Characters[i].IsVictim {
			return &s.Characters[i]
		}
	}
	return nil
}

// Murderer 返回凶手角色，没有则返回nil
func (s *ScriptSnapshot) Murderer() *Character {
	for i := range s.Characters {
		if s.Characters[i].IsMurderer {
			return &s.Characters[i]
		}
	}
	return nil
}

// FindCharacter 按名字查找角色
func (s *ScriptSnapshot) FindCharacter(name string) *Character {
	for i := range s.Characters {
		if s.Characters[i].Name == name {
			return &s.Characters[i]
		}
	}
	return nil
}

// LocationNames 返回全部地点名称，保持剧本顺序
func (s *ScriptSnapshot) LocationNames() []string {
	names := make([]string, 0, len(s.Locations))
	for _, loc := range s.Locations {
		names = append(names, loc.Name)
	}
	return names
}

// PersonalityText 返回角色性格描述的拼接文本
func (c *Character) PersonalityText() string {
	return strings.Join(c.Personality, "、")
}
