package ai

import (
	"time"

	"github.com/wfunc/memory-game/internal/game/memory"
)

// Params 难度档位参数，控制AI的三条轴：记忆、策略倾向和反应节奏
type Params struct {
	MemoryCapacity int           // 记忆的最大牌位数，超出按淘汰策略遗忘
	Reliability    float64       // 刚看到的牌真正记住的概率
	OptimalRate    float64       // 当前回合走策略步而非随机步的概率
	Confidence     float64       // 推断配对时的置信概率，模拟回忆不确定性
	MinDelay       time.Duration // 反应延迟下限（纯展示用，不影响决策质量）
	MaxDelay       time.Duration // 反应延迟上限
	OpponentWindow int           // 对手近期出牌的观察窗口
}

// tierParams 各难度档位的参数表
var tierParams = map[memory.Difficulty]Params{
	memory.DifficultyEasy: {
		MemoryCapacity: 6,
		Reliability:    0.70,
		OptimalRate:    0.30,
		Confidence:     0,
		MinDelay:       1500 * time.Millisecond,
		MaxDelay:       3000 * time.Millisecond,
		OpponentWindow: 3,
	},
	memory.DifficultyMedium: {
		MemoryCapacity: 12,
		Reliability:    0.85,
		OptimalRate:    0.60,
		Confidence:     0.60,
		MinDelay:       1000 * time.Millisecond,
		MaxDelay:       2500 * time.Millisecond,
		OpponentWindow: 5,
	},
	memory.DifficultyHard: {
		MemoryCapacity: 20,
		Reliability:    0.95,
		OptimalRate:    0.85,
		Confidence:     0.85,
		MinDelay:       800 * time.Millisecond,
		MaxDelay:       2000 * time.Millisecond,
		OpponentWindow: 5,
	},
	memory.DifficultyExpert: {
		MemoryCapacity: 36,
		Reliability:    1.0,
		OptimalRate:    0.98,
		Confidence:     0.98,
		MinDelay:       500 * time.Millisecond,
		MaxDelay:       1500 * time.Millisecond,
		OpponentWindow: 8,
	},
}

// ParamsFor 返回难度对应的参数；未知难度按 easy 处理
func ParamsFor(d memory.Difficulty) Params {
	if p, ok := tierParams[d]; ok {
		return p
	}
	return tierParams[memory.DifficultyEasy]
}
