// cmd/demo/main.go
// 离线演示：不依赖LLM、TTS和Redis，在控制台完整跑一局游戏。
// 角色全部使用兜底台词，用于验证引擎流程和观察事件流。
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Corphon/JubenshaMCP/internal/game"
	"github.com/Corphon/JubenshaMCP/internal/models"
	"github.com/Corphon/JubenshaMCP/internal/store"
)

// consoleBroadcaster 把广播信封打印到控制台，游戏结束时通知主流程退出
type consoleBroadcaster struct {
	done chan struct{}
}

func (b *consoleBroadcaster) FanOut(sessionID string, envelope map[string]interface{}) {
	switch envelope["type"] {
	case "game_started":
		fmt.Println("🚀 游戏开始")
	case "phase_changed":
		if data, ok := envelope["data"].(map[string]interface{}); ok {
			fmt.Printf("\n===== 阶段: %v =====\n", data["phase"])
		}
	case "ai_action":
		if ev, ok := envelope["data"].(models.GameEvent); ok {
			fmt.Printf("  [%s] %s: %s\n", ev.Kind, ev.Character, ev.Content)
		}
	case "voting_complete":
		if data, ok := envelope["data"].(map[string]interface{}); ok {
			fmt.Printf("\n🗳️ 投票结果: %v\n", data["votes"])
		}
	case "game_result":
		if data, ok := envelope["data"].(map[string]interface{}); ok {
			fmt.Printf("\n🏁 真凶: %v | 被指认: %v | 侦破: %v\n",
				data["murderer"], data["accused"], data["solved"])
		}
	case "game_ended":
		close(b.done)
	}
}

func main() {
	scriptDir := flag.String("scripts", "", "剧本目录，留空则使用内置演示剧本")
	scriptID := flag.String("script", "demo_midnight_villa", "要运行的剧本ID")
	flag.Parse()

	dir := *scriptDir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "jubensha-demo-")
		if err != nil {
			log.Fatalf("创建临时目录失败: %v", err)
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}

	scripts, err := store.NewFileScriptStore(dir)
	if err != nil {
		log.Fatalf("初始化剧本库失败: %v", err)
	}
	if *scriptDir == "" {
		if err := scripts.SaveScript(demoScript()); err != nil {
			log.Fatalf("写入演示剧本失败: %v", err)
		}
	}

	broadcaster := &consoleBroadcaster{done: make(chan struct{})}

	cfg := game.DefaultConfig()
	cfg.TurnDelay = 300 * time.Millisecond
	cfg.BackgroundLineDelay = 300 * time.Millisecond
	cfg.NoPacing = true

	session := game.NewSession("demo-session", "demo-user", *scriptID,
		scripts, store.NewMemorySessionStore(), nil, nil, broadcaster, cfg)

	if err := session.Start(*scriptID); err != nil {
		log.Fatalf("启动游戏失败: %v", err)
	}

	select {
	case <-broadcaster.done:
		fmt.Println("\n✅ 演示结束")
	case <-time.After(5 * time.Minute):
		log.Fatal("演示超时")
	}
}

// demoScript 内置的四人小剧本
func demoScript() *models.ScriptSnapshot {
	return &models.ScriptSnapshot{
		ID:          "demo_midnight_villa",
		Title:       "午夜山庄",
		PlayerCount: 3,
		Difficulty:  "简单",
		Background: models.BackgroundStory{
			Setting:  "暴雨夜的山间别墅，对外道路已经中断。",
			Incident: "庄园主人陈伯被发现死在书房，桌上留着半杯冷茶。",
			Rules:    "每位角色轮流发言，不得直接查看他人手中的线索。",
		},
		Characters: []models.Character{
			{Name: "陈伯", Gender: "男", Age: 62, Profession: "庄园主人", IsVictim: true},
			{
				Name: "林医生", Gender: "女", Age: 38, Profession: "家庭医生",
				Background:  "常年照顾陈伯的身体，对庄园里的药品了如指掌。",
				Secret:      "曾给陈伯开过过量药物",
				Personality: []string{"冷静", "谨慎"},
				VoiceID:     "zh_female_calm",
			},
			{
				Name: "张律师", Gender: "男", Age: 45, Profession: "私人律师",
				Background:  "负责陈伯的遗嘱，近期与陈伯多次争执。",
				Secret:      "伪造了遗嘱的附加条款",
				Objective:   "阻止任何人查看遗嘱原件",
				Personality: []string{"健谈", "多疑"},
				IsMurderer:  true,
			},
			{
				Name: "小周", Gender: "男", Age: 24, Profession: "管家学徒",
				Background:  "三个月前来到庄园，深夜常在走廊走动。",
				Secret:      "目击了案发当晚书房门口的争吵",
				Personality: []string{"胆小", "诚实"},
			},
		},
		Evidence: []models.Evidence{
			{Name: "带血的信纸", Location: "书房", Description: "信纸边缘有暗红色指印。", Importance: "关键"},
			{Name: "空药瓶", Location: "花园", Description: "标签被撕掉的棕色药瓶。", Importance: "重要"},
			{Name: "伪造的遗嘱", Location: "地下室", Description: "附加条款的墨迹明显比正文新。", Importance: "关键"},
		},
		Locations: []models.Location{
			{Name: "书房", Description: "案发现场，门从里面反锁。", IsCrimeScene: true},
			{Name: "花园", Description: "雨后泥泞，有新鲜的脚印。"},
			{Name: "地下室", Description: "存放杂物和旧文件。"},
		},
	}
}
