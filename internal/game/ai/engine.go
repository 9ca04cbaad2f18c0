package ai

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/wfunc/memory-game/internal/game/memory"
	"go.uber.org/zap"
)

var (
	// ErrNoAvailableCards 棋盘上可翻的牌不足两张，AI无法出手。
	// 调用方应据此重新检查对局是否已经结束。
	ErrNoAvailableCards = errors.New("可用的牌不足两张")
)

// Engine AI决策引擎，一个AI席位一个实例，独占自己的记忆。
// Decide 是异步语义的阻塞调用：会按难度档位挂起一段反应延迟，
// 但保证返回的两个位置互异且当前都可翻，否则属于实现缺陷。
type Engine struct {
	mu         sync.Mutex
	seatID     string
	difficulty memory.Difficulty
	params     Params
	mem        *Memory
	rng        *rand.Rand
	logger     *zap.Logger
}

// NewEngine 创建AI引擎；rng 为 nil 时使用时间种子
func NewEngine(seatID string, d memory.Difficulty, logger *zap.Logger, rng *rand.Rand) *Engine {
	return NewEngineWithParams(seatID, d, ParamsFor(d), logger, rng)
}

// NewEngineWithParams 使用自定义参数创建引擎（测试用零延迟参数走这里）
func NewEngineWithParams(seatID string, d memory.Difficulty, params Params, logger *zap.Logger, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		seatID:     seatID,
		difficulty: d,
		params:     params,
		mem:        newMemory(d, params, rng),
		rng:        rng,
		logger:     logger,
	}
}

// SeatID 引擎所属的席位
func (e *Engine) SeatID() string {
	return e.seatID
}

// ResetMemory 清空记忆（开新局时调用）
func (e *Engine) ResetMemory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mem.Reset()
}

// Observe 观察当前棋盘并更新记忆。
// 每次有牌翻开后调用，与 Decide 内部的回合前更新互补。
func (e *Engine) Observe(cards []memory.Card, mt memory.MatchType) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mem.Observe(cards, mt)
}

// Decide 为当前回合选择要翻开的两个位置。
// 先更新记忆，再挂起反应延迟（可被 ctx 取消），然后按优先级决策：
// 已知配对 > 策略步（高难度） > 推断配对（中难度以上） > 均匀随机。
// 返回前对候选做活体校验，失败则自修复，绝不返回不可用的位置。
func (e *Engine) Decide(ctx context.Context, cards []memory.Card, mt memory.MatchType, opponentMoves []memory.Move) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.mem.RecordOpponent(opponentMoves)
	e.mem.Observe(cards, mt)

	avail := availablePositions(cards)
	if len(avail) < 2 {
		return 0, 0, ErrNoAvailableCards
	}

	if err := e.thinkingDelay(ctx); err != nil {
		return 0, 0, err
	}

	first, second := e.choose(cards, mt, avail)

	// 活体校验：记忆可能在对手行动后失效
	if !e.validPick(cards, first, second) {
		e.logger.Warn("AI候选失效，执行自修复",
			zap.String("seat", e.seatID),
			zap.Int("first", first),
			zap.Int("second", second))
		e.mem.PurgeStale(cards)

		avail = availablePositions(cards)
		if len(avail) < 2 {
			return 0, 0, ErrNoAvailableCards
		}
		first, second = e.randomPick(avail)
		if !e.validPick(cards, first, second) {
			// 最后手段：取前两个可用位置
			first, second = avail[0], avail[1]
		}
	}

	e.logger.Debug("AI决策完成",
		zap.String("seat", e.seatID),
		zap.String("difficulty", string(e.difficulty)),
		zap.Int("first", first),
		zap.Int("second", second))
	return first, second, nil
}

// thinkingDelay 按档位随机挂起反应延迟，只影响节奏不影响决策
func (e *Engine) thinkingDelay(ctx context.Context) error {
	span := e.params.MaxDelay - e.params.MinDelay
	delay := e.params.MinDelay
	if span > 0 {
		delay += time.Duration(e.rng.Int63n(int64(span)))
	}
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// choose 按优先级选择两个位置，整体由"最优打法概率"门控
func (e *Engine) choose(cards []memory.Card, mt memory.MatchType, avail []int) (int, int) {
	if e.rng.Float64() >= e.params.OptimalRate {
		return e.randomPick(avail)
	}

	// 1. 记忆中已知的配对
	if a, b, ok := e.mem.KnownMatch(cards); ok {
		return a, b
	}

	// 2. 策略步：expert 偏好翻没见过的位置收集信息，
	//    hard 避开已被推断配对占用的位置、不浪费回合确认已知信息
	if e.difficulty == memory.DifficultyHard || e.difficulty == memory.DifficultyExpert {
		if a, b, ok := e.strategicPick(avail); ok {
			return a, b
		}
	}

	// 3. 推断配对：记住的牌搭一张没见过的牌，置信掷点通过才执行
	if e.difficulty != memory.DifficultyEasy && e.rng.Float64() < e.params.Confidence {
		if a, b, ok := e.inferredPick(avail); ok {
			return a, b
		}
	}

	// 4. 兜底：均匀随机
	return e.randomPick(avail)
}

// strategicPick 高难度的探索步
func (e *Engine) strategicPick(avail []int) (int, int, bool) {
	var candidates []int
	if e.difficulty == memory.DifficultyExpert {
		for _, pos := range avail {
			if _, seen := e.mem.Remembered(pos); !seen {
				candidates = append(candidates, pos)
			}
		}
	} else {
		for _, pos := range avail {
			if !e.mem.InKnownPair(pos) {
				candidates = append(candidates, pos)
			}
		}
	}
	if len(candidates) < 2 {
		return 0, 0, false
	}
	// 候选间均匀洗牌打破平手，再把争抢位提前
	e.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	candidates = e.prioritizeContested(candidates)
	return candidates[0], candidates[1], true
}

// prioritizeContested 把"自己记得、对手近期也看过"的位置稳定排到前面，
// 先抢走这些牌，不给对手凑对的机会
func (e *Engine) prioritizeContested(candidates []int) []int {
	contested := make([]int, 0, len(candidates))
	var rest []int
	for _, pos := range candidates {
		if c, ok := e.mem.Remembered(pos); ok && e.mem.OpponentSaw(c.ID) {
			contested = append(contested, pos)
			continue
		}
		rest = append(rest, pos)
	}
	return append(contested, rest...)
}

// inferredPick 记住的可用牌搭配一张没见过的可用牌
func (e *Engine) inferredPick(avail []int) (int, int, bool) {
	var remembered, unseen []int
	for _, pos := range avail {
		if _, ok := e.mem.Remembered(pos); ok {
			remembered = append(remembered, pos)
		} else {
			unseen = append(unseen, pos)
		}
	}
	if len(remembered) == 0 || len(unseen) == 0 {
		return 0, 0, false
	}
	return remembered[e.rng.Intn(len(remembered))], unseen[e.rng.Intn(len(unseen))], true
}

// randomPick 均匀随机选两个互异位置
func (e *Engine) randomPick(avail []int) (int, int) {
	i := e.rng.Intn(len(avail))
	j := e.rng.Intn(len(avail) - 1)
	if j >= i {
		j++
	}
	return avail[i], avail[j]
}

// validPick 两个位置互异、界内且都可翻
func (e *Engine) validPick(cards []memory.Card, a, b int) bool {
	if a == b {
		return false
	}
	return available(cards, a) && available(cards, b)
}

// MemorySize 当前记忆量（测试与调试用）
func (e *Engine) MemorySize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mem.Size()
}

func availablePositions(cards []memory.Card) []int {
	out := make([]int, 0, len(cards))
	for i := range cards {
		if cards[i].Available() {
			out = append(out, i)
		}
	}
	return out
}
