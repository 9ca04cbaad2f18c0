package ai

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/wfunc/memory-game/internal/game/memory"
)

// fastParams 零延迟参数，测试中让 Decide 立即返回
func fastParams(d memory.Difficulty) Params {
	p := ParamsFor(d)
	p.MinDelay = 0
	p.MaxDelay = 0
	return p
}

func newTestEngine(t *testing.T, d memory.Difficulty, seed int64) *Engine {
	t.Helper()
	return NewEngineWithParams(memory.SeatTwo, d, fastParams(d), nil, rand.New(rand.NewSource(seed)))
}

func testDeck(t *testing.T, size memory.BoardSize, mt memory.MatchType, seed int64) []memory.Card {
	t.Helper()
	cards, err := memory.GenerateDeck(size, mt, rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("生成牌组失败: %v", err)
	}
	return cards
}

// 空记忆、只剩两张可翻时必须返回这两张，不能报错
func TestDecideEmptyMemoryTwoCards(t *testing.T) {
	for _, d := range []memory.Difficulty{
		memory.DifficultyEasy, memory.DifficultyMedium,
		memory.DifficultyHard, memory.DifficultyExpert,
	} {
		t.Run(string(d), func(t *testing.T) {
			cards := testDeck(t, memory.Board4x4, memory.MatchByColor, 11)
			for i := range cards {
				if i != 3 && i != 12 {
					cards[i].Matched = true
				}
			}

			e := newTestEngine(t, d, 11)
			a, b, err := e.Decide(context.Background(), cards, memory.MatchByColor, nil)
			if err != nil {
				t.Fatalf("Decide() 出错: %v", err)
			}
			if !((a == 3 && b == 12) || (a == 12 && b == 3)) {
				t.Errorf("Decide() = (%d,%d), 仅剩位置3和12可翻", a, b)
			}
		})
	}
}

// 自己记得、对手近期也看过的牌要优先抢走
func TestDecidePrefersContestedCard(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		cards := testDeck(t, memory.Board4x4, memory.MatchByColor, seed)

		p := fastParams(memory.DifficultyHard)
		p.Reliability = 1.0
		p.OptimalRate = 1.0
		p.Confidence = 0
		e := NewEngineWithParams(memory.SeatTwo, memory.DifficultyHard, p, nil, rand.New(rand.NewSource(seed)))

		// 引擎看过位置2的牌，之后翻回背面
		cards[2].Flipped = true
		e.Observe(cards, memory.MatchByColor)
		cards[2].Flipped = false
		e.Observe(cards, memory.MatchByColor)

		// 对手近期也翻过同一张牌
		opponent := []memory.Move{{
			PlayerID: memory.SeatOne,
			CardIDs:  [2]string{cards[2].ID, cards[9].ID},
		}}

		first, second, err := e.Decide(context.Background(), cards, memory.MatchByColor, opponent)
		if err != nil {
			t.Fatalf("Decide() 出错: %v", err)
		}
		if first != 2 {
			t.Errorf("seed %d: first = %d, 争抢位2应被优先翻开", seed, first)
		}
		if second == first {
			t.Errorf("seed %d: 两个位置不能相同", seed)
		}
	}
}

func TestDecideNotEnoughCards(t *testing.T) {
	cards := testDeck(t, memory.Board4x4, memory.MatchByColor, 11)
	for i := range cards {
		if i != 5 {
			cards[i].Matched = true
		}
	}

	e := newTestEngine(t, memory.DifficultyHard, 11)
	if _, _, err := e.Decide(context.Background(), cards, memory.MatchByColor, nil); err != ErrNoAvailableCards {
		t.Errorf("err = %v, 期望 ErrNoAvailableCards", err)
	}
}

// 记忆中的配对被对手抢走后，下一手不得再选这些失效位置
func TestDecidePurgesStaleReferences(t *testing.T) {
	cards := testDeck(t, memory.Board4x4, memory.MatchByColor, 21)
	e := newTestEngine(t, memory.DifficultyExpert, 21)

	// 找一对同色牌，让引擎看到后再由对手配走
	var p1, p2 = -1, -1
	for i := 0; i < len(cards) && p1 < 0; i++ {
		for j := i + 1; j < len(cards); j++ {
			if memory.Matches(cards[i], cards[j], memory.MatchByColor) {
				p1, p2 = i, j
				break
			}
		}
	}
	if p1 < 0 {
		t.Fatal("找不到同色牌对")
	}

	cards[p1].Flipped, cards[p2].Flipped = true, true
	e.Observe(cards, memory.MatchByColor)
	cards[p1].Flipped, cards[p2].Flipped = false, false
	e.Observe(cards, memory.MatchByColor)

	// 对手把这对配掉
	cards[p1].Matched = true
	cards[p2].Matched = true

	for round := 0; round < 20; round++ {
		a, b, err := e.Decide(context.Background(), cards, memory.MatchByColor, nil)
		if err != nil {
			t.Fatalf("Decide() 出错: %v", err)
		}
		if a == p1 || a == p2 || b == p1 || b == p2 {
			t.Fatalf("第%d轮选中了已配走的位置 (%d,%d)", round, a, b)
		}
	}
}

// 任何难度、任何残局下返回的位置都必须互异且可翻
func TestDecideAlwaysLegal(t *testing.T) {
	difficulties := []memory.Difficulty{
		memory.DifficultyEasy, memory.DifficultyMedium,
		memory.DifficultyHard, memory.DifficultyExpert,
	}
	for _, d := range difficulties {
		t.Run(string(d), func(t *testing.T) {
			cards := testDeck(t, memory.Board4x6, memory.MatchByRank, int64(len(d)))
			e := newTestEngine(t, d, 99)
			rng := rand.New(rand.NewSource(7))

			for round := 0; round < 50; round++ {
				a, b, err := e.Decide(context.Background(), cards, memory.MatchByRank, nil)
				if err != nil {
					t.Fatalf("第%d轮 Decide() 出错: %v", round, err)
				}
				if a == b {
					t.Fatalf("第%d轮返回重复位置 %d", round, a)
				}
				if !cards[a].Available() || !cards[b].Available() {
					t.Fatalf("第%d轮返回不可翻位置 (%d,%d)", round, a, b)
				}
				// 随机配走一对，模拟对局推进
				avail := availablePositions(cards)
				if len(avail) >= 4 {
					i := avail[rng.Intn(len(avail))]
					cards[i].Matched = true
					avail = availablePositions(cards)
					j := avail[rng.Intn(len(avail))]
					cards[j].Matched = true
				}
			}
		})
	}
}

// 专家档记满配对后应直接打出已知配对
func TestDecideUsesKnownMatch(t *testing.T) {
	cards := testDeck(t, memory.Board4x4, memory.MatchBySuit, 31)

	p := fastParams(memory.DifficultyExpert)
	p.OptimalRate = 1.0
	e := NewEngineWithParams(memory.SeatTwo, memory.DifficultyExpert, p, nil, rand.New(rand.NewSource(31)))

	var p1, p2 = -1, -1
	for i := 0; i < len(cards) && p1 < 0; i++ {
		for j := i + 1; j < len(cards); j++ {
			if memory.Matches(cards[i], cards[j], memory.MatchBySuit) {
				p1, p2 = i, j
				break
			}
		}
	}
	if p1 < 0 {
		t.Fatal("找不到同花色牌对")
	}

	cards[p1].Flipped, cards[p2].Flipped = true, true
	e.Observe(cards, memory.MatchBySuit)
	cards[p1].Flipped, cards[p2].Flipped = false, false
	e.Observe(cards, memory.MatchBySuit)

	a, b, err := e.Decide(context.Background(), cards, memory.MatchBySuit, nil)
	if err != nil {
		t.Fatalf("Decide() 出错: %v", err)
	}
	if !((a == p1 && b == p2) || (a == p2 && b == p1)) {
		t.Errorf("Decide() = (%d,%d), 期望打出已知配对 (%d,%d)", a, b, p1, p2)
	}
	if !memory.Matches(cards[a], cards[b], memory.MatchBySuit) {
		t.Error("返回的两张牌应满足配对条件")
	}
}

func TestDecideContextCancelled(t *testing.T) {
	cards := testDeck(t, memory.Board4x4, memory.MatchByColor, 41)

	p := fastParams(memory.DifficultyEasy)
	p.MinDelay = time.Second
	p.MaxDelay = time.Second
	e := NewEngineWithParams(memory.SeatTwo, memory.DifficultyEasy, p, nil, rand.New(rand.NewSource(41)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := e.Decide(ctx, cards, memory.MatchByColor, nil); err != context.Canceled {
		t.Errorf("err = %v, 期望 context.Canceled", err)
	}
}

func TestResetMemoryClearsState(t *testing.T) {
	cards := testDeck(t, memory.Board4x4, memory.MatchByColor, 51)
	e := newTestEngine(t, memory.DifficultyExpert, 51)

	for i := range cards {
		cards[i].Flipped = true
	}
	e.Observe(cards, memory.MatchByColor)
	if e.MemorySize() == 0 {
		t.Fatal("观察全开棋盘后记忆不应为空")
	}

	e.ResetMemory()
	if e.MemorySize() != 0 {
		t.Errorf("重置后记忆量 = %d, 期望 0", e.MemorySize())
	}
}
