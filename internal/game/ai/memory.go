package ai

import (
	"math/rand"

	"github.com/wfunc/memory-game/internal/game/memory"
)

// entry 记忆中的一张牌：翻开时捕获的快照加新鲜度序号
type entry struct {
	card memory.Card
	seq  uint64
}

// Memory AI席位的私有记忆。
// 按棋盘位置记录见过的牌，容量有限，每回合观察后重算推断出的配对。
// 一个引擎实例独占一份记忆，AI之间绝不共享。
type Memory struct {
	params     Params
	difficulty memory.Difficulty
	entries    map[int]entry
	knownPairs [][2]int
	opponent   []memory.Move // 对手近期出牌的有界窗口
	seq        uint64
	rng        *rand.Rand
}

func newMemory(d memory.Difficulty, params Params, rng *rand.Rand) *Memory {
	return &Memory{
		params:     params,
		difficulty: d,
		entries:    make(map[int]entry),
		rng:        rng,
	}
}

// Reset 清空全部记忆（新对局或紧急自修复）
func (m *Memory) Reset() {
	m.entries = make(map[int]entry)
	m.knownPairs = nil
	m.opponent = nil
	m.seq = 0
}

// Observe 每回合决策前的记忆更新：
// 先清掉引用已配对牌的条目，再按可靠度概率记住当前翻开的牌，
// 已记住但翻回背面的牌保留身份只同步状态，最后重算推断配对并执行容量淘汰。
func (m *Memory) Observe(cards []memory.Card, mt memory.MatchType) {
	m.purgeMatched(cards)

	for pos := range cards {
		c := cards[pos]
		if c.Matched {
			continue
		}
		if c.Flipped {
			if _, ok := m.entries[pos]; ok {
				// 已经记得，刷新快照
				m.seq++
				m.entries[pos] = entry{card: c, seq: m.seq}
				continue
			}
			// 可靠度不足时会"忘记"刚看到的牌
			if m.rng.Float64() <= m.params.Reliability {
				m.seq++
				m.entries[pos] = entry{card: c, seq: m.seq}
			}
			continue
		}
		// 翻回背面的牌：见过就不会"没见过"，只同步翻面标记
		if e, ok := m.entries[pos]; ok {
			e.card.Flipped = false
			m.entries[pos] = e
		}
	}

	m.rebuildKnownPairs(mt)
	m.evict()
}

// purgeMatched 清除引用已配对或已失效位置的条目
func (m *Memory) purgeMatched(cards []memory.Card) {
	for pos, e := range m.entries {
		if pos < 0 || pos >= len(cards) {
			delete(m.entries, pos)
			continue
		}
		if cards[pos].Matched || cards[pos].ID != e.card.ID {
			delete(m.entries, pos)
		}
	}
}

// PurgeStale 自修复入口：丢弃所有指向不可用牌的记忆
func (m *Memory) PurgeStale(cards []memory.Card) {
	m.purgeMatched(cards)
	pairs := m.knownPairs[:0]
	for _, p := range m.knownPairs {
		_, ok1 := m.entries[p[0]]
		_, ok2 := m.entries[p[1]]
		if ok1 && ok2 {
			pairs = append(pairs, p)
		}
	}
	m.knownPairs = pairs
}

// rebuildKnownPairs 交叉比较所有记住的牌，重建推断配对索引
func (m *Memory) rebuildKnownPairs(mt memory.MatchType) {
	m.knownPairs = m.knownPairs[:0]
	positions := m.sortedPositions()
	for i := 0; i < len(positions)-1; i++ {
		for j := i + 1; j < len(positions); j++ {
			a, b := positions[i], positions[j]
			if memory.Matches(m.entries[a].card, m.entries[b].card, mt) {
				m.knownPairs = append(m.knownPairs, [2]int{a, b})
			}
		}
	}
}

// evict 超出容量时遗忘：低难度先忘最旧的，
// 高难度优先保住已推断配对的位置、其余伪随机淘汰
func (m *Memory) evict() {
	excess := len(m.entries) - m.params.MemoryCapacity
	if excess <= 0 {
		return
	}

	switch m.difficulty {
	case memory.DifficultyHard, memory.DifficultyExpert:
		protected := make(map[int]bool, len(m.knownPairs)*2)
		for _, p := range m.knownPairs {
			protected[p[0]] = true
			protected[p[1]] = true
		}
		candidates := make([]int, 0, len(m.entries))
		for pos := range m.entries {
			if !protected[pos] {
				candidates = append(candidates, pos)
			}
		}
		m.rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		for _, pos := range candidates {
			if excess == 0 {
				break
			}
			delete(m.entries, pos)
			excess--
		}
		// 保护位仍超容量时只能开始丢配对位
		if excess > 0 {
			for pos := range m.entries {
				if excess == 0 {
					break
				}
				delete(m.entries, pos)
				excess--
			}
		}
	default:
		// 最旧优先
		for excess > 0 {
			oldest, oldestSeq := -1, uint64(0)
			for pos, e := range m.entries {
				if oldest == -1 || e.seq < oldestSeq {
					oldest, oldestSeq = pos, e.seq
				}
			}
			delete(m.entries, oldest)
			excess--
		}
	}
}

// RecordOpponent 用对手的完整出牌历史同步观察窗口，
// 只保留最近 OpponentWindow 手。重复同步同一份历史不会累积。
func (m *Memory) RecordOpponent(moves []memory.Move) {
	if over := len(moves) - m.params.OpponentWindow; over > 0 {
		moves = moves[over:]
	}
	m.opponent = append(m.opponent[:0], moves...)
}

// OpponentSaw 牌 cardID 是否在对手的近期出牌里露过面
func (m *Memory) OpponentSaw(cardID string) bool {
	for _, move := range m.opponent {
		if move.CardIDs[0] == cardID || move.CardIDs[1] == cardID {
			return true
		}
	}
	return false
}

// KnownMatch 在记忆里找一对当前都可用的配对位置
func (m *Memory) KnownMatch(cards []memory.Card) (int, int, bool) {
	for _, p := range m.knownPairs {
		if available(cards, p[0]) && available(cards, p[1]) {
			return p[0], p[1], true
		}
	}
	return 0, 0, false
}

// Remembered 位置 pos 是否有记忆快照
func (m *Memory) Remembered(pos int) (memory.Card, bool) {
	e, ok := m.entries[pos]
	return e.card, ok
}

// InKnownPair 位置 pos 是否已被推断配对占用
func (m *Memory) InKnownPair(pos int) bool {
	for _, p := range m.knownPairs {
		if p[0] == pos || p[1] == pos {
			return true
		}
	}
	return false
}

// Size 当前记住的牌位数
func (m *Memory) Size() int {
	return len(m.entries)
}

// sortedPositions 记忆位置的升序列表（遍历顺序稳定，便于测试）
func (m *Memory) sortedPositions() []int {
	out := make([]int, 0, len(m.entries))
	for pos := range m.entries {
		out = append(out, pos)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func available(cards []memory.Card, pos int) bool {
	return pos >= 0 && pos < len(cards) && cards[pos].Available()
}
