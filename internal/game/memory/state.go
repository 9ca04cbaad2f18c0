package memory

import (
	"errors"
	"fmt"
	"math/rand"
	"time"
)

var (
	ErrInvalidMode       = errors.New("无效的游戏模式")
	ErrInvalidDifficulty = errors.New("无效的AI难度")
)

// Mode 游戏模式
type Mode string

const (
	ModeAI         Mode = "ai"       // 人对AI
	ModeLocal      Mode = "local"    // 本地双人
	ModeAIVersusAI Mode = "ai_vs_ai" // AI对AI
)

// Valid 检查游戏模式是否合法
func (m Mode) Valid() bool {
	switch m {
	case ModeAI, ModeLocal, ModeAIVersusAI:
		return true
	}
	return false
}

// Status 对局状态
type Status string

const (
	StatusSetup    Status = "setup"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// PlayerType 玩家类型
type PlayerType string

const (
	PlayerHuman PlayerType = "human"
	PlayerAI    PlayerType = "ai"
)

// Difficulty AI难度档位
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// Valid 检查难度是否合法
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// Pair 一对已配对的牌
type Pair [2]Card

// Player 玩家席位
type Player struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       PlayerType `json:"type"`
	Score      int        `json:"score"`
	Matches    []Pair     `json:"matches"`
	Difficulty Difficulty `json:"ai_difficulty,omitempty"`
}

// Move 一次完整的翻牌记录（不可变，只追加）
type Move struct {
	PlayerID string    `json:"player_id"`
	CardIDs  [2]string `json:"card_ids"`
	IsMatch  bool      `json:"is_match"`
	PlayedAt time.Time `json:"played_at"`
}

// 席位ID在对局生命周期内固定
const (
	SeatOne = "player_1"
	SeatTwo = "player_2"
)

// GameState 对局聚合根。
// 所有转换都是 (state, input) -> state 的纯函数：每次返回新值，
// 绝不原地修改，中间状态随时可以快照、回放或丢弃。
type GameState struct {
	Mode          Mode      `json:"mode"`
	MatchType     MatchType `json:"match_type"`
	BoardSize     BoardSize `json:"board_size"`
	Players       [2]Player `json:"players"`
	CurrentPlayer string    `json:"current_player"`
	Cards         []Card    `json:"cards"`
	Flipped       []int     `json:"flipped"` // 已翻开未配对的位置，长度 0-2
	MatchedPairs  []Pair    `json:"matched_pairs"`
	Status        Status    `json:"status"`
	PendingSwitch bool      `json:"pending_switch"` // AI对AI模式下延迟到重置时才换手
	StartedAt     time.Time `json:"started_at"`
	TurnStartedAt time.Time `json:"turn_started_at"`
	Moves         []Move    `json:"moves"`
}

// Config 开局配置
type Config struct {
	Mode        Mode
	MatchType   MatchType
	BoardSize   BoardSize
	Player1Name string
	Player2Name string
	Difficulty  Difficulty // 模式为 ai 时第二席位的难度；ai_vs_ai 时第一席位的难度
	Difficulty2 Difficulty // ai_vs_ai 时第二席位的难度
	Rand        *rand.Rand // 为 nil 时使用时间种子
}

// NewGame 创建新对局：按模式组建两个席位、生成牌堆并直接进入 playing 状态
func NewGame(cfg Config) (*GameState, error) {
	if !cfg.Mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, cfg.Mode)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	cards, err := GenerateDeck(cfg.BoardSize, cfg.MatchType, rng)
	if err != nil {
		return nil, err
	}

	players, err := buildPlayers(cfg)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &GameState{
		Mode:          cfg.Mode,
		MatchType:     cfg.MatchType,
		BoardSize:     cfg.BoardSize,
		Players:       players,
		CurrentPlayer: players[0].ID,
		Cards:         cards,
		Flipped:       nil,
		Status:        StatusPlaying,
		StartedAt:     now,
		TurnStartedAt: now,
	}, nil
}

// buildPlayers 按模式组建两个席位
func buildPlayers(cfg Config) ([2]Player, error) {
	var players [2]Player

	name1 := cfg.Player1Name
	if name1 == "" {
		name1 = "玩家1"
	}
	name2 := cfg.Player2Name

	switch cfg.Mode {
	case ModeAI:
		if !cfg.Difficulty.Valid() {
			return players, fmt.Errorf("%w: %q", ErrInvalidDifficulty, cfg.Difficulty)
		}
		if name2 == "" {
			name2 = "电脑"
		}
		players[0] = Player{ID: SeatOne, Name: name1, Type: PlayerHuman}
		players[1] = Player{ID: SeatTwo, Name: name2, Type: PlayerAI, Difficulty: cfg.Difficulty}
	case ModeLocal:
		if name2 == "" {
			name2 = "玩家2"
		}
		players[0] = Player{ID: SeatOne, Name: name1, Type: PlayerHuman}
		players[1] = Player{ID: SeatTwo, Name: name2, Type: PlayerHuman}
	case ModeAIVersusAI:
		if !cfg.Difficulty.Valid() || !cfg.Difficulty2.Valid() {
			return players, fmt.Errorf("%w: %q / %q", ErrInvalidDifficulty, cfg.Difficulty, cfg.Difficulty2)
		}
		if cfg.Player1Name == "" {
			name1 = "电脑1"
		}
		if name2 == "" {
			name2 = "电脑2"
		}
		players[0] = Player{ID: SeatOne, Name: name1, Type: PlayerAI, Difficulty: cfg.Difficulty}
		players[1] = Player{ID: SeatTwo, Name: name2, Type: PlayerAI, Difficulty: cfg.Difficulty2}
	}
	return players, nil
}

// clone 深拷贝对局状态
func (s *GameState) clone() *GameState {
	next := *s
	next.Cards = append([]Card(nil), s.Cards...)
	next.Flipped = append([]int(nil), s.Flipped...)
	next.MatchedPairs = append([]Pair(nil), s.MatchedPairs...)
	next.Moves = append([]Move(nil), s.Moves...)
	for i := range s.Players {
		next.Players[i].Matches = append([]Pair(nil), s.Players[i].Matches...)
	}
	return &next
}

// CanFlip 位置 pos 的牌当前是否可翻：对局进行中、位置合法、
// 牌可用且已翻开的牌少于两张
func (s *GameState) CanFlip(pos int) bool {
	if s.Status != StatusPlaying {
		return false
	}
	if pos < 0 || pos >= len(s.Cards) {
		return false
	}
	if len(s.Flipped) >= 2 {
		return false
	}
	return s.Cards[pos].Available()
}

// Flip 翻开位置 pos 的牌。非法请求原样返回输入状态（no-op 契约）。
// 翻开第二张牌时在同一次转换内同步判定配对，展示延迟由调用方负责。
func (s *GameState) Flip(pos int) *GameState {
	if !s.CanFlip(pos) {
		return s
	}

	next := s.clone()
	next.Cards[pos].Flipped = true
	next.Flipped = append(next.Flipped, pos)

	if len(next.Flipped) == 2 {
		next.resolvePair()
	}
	return next
}

// resolvePair 判定已翻开的两张牌：配对则记分并保持手番，
// 不配对则保留正面朝上的展示状态并换手（AI对AI延迟到重置时换手）
func (s *GameState) resolvePair() {
	a, b := s.Flipped[0], s.Flipped[1]
	matched := Matches(s.Cards[a], s.Cards[b], s.MatchType)

	s.Moves = append(s.Moves, Move{
		PlayerID: s.CurrentPlayer,
		CardIDs:  [2]string{s.Cards[a].ID, s.Cards[b].ID},
		IsMatch:  matched,
		PlayedAt: time.Now(),
	})

	if matched {
		s.Cards[a].Matched = true
		s.Cards[b].Matched = true
		pair := Pair{s.Cards[a], s.Cards[b]}
		idx := s.currentIndex()
		s.Players[idx].Score++
		s.Players[idx].Matches = append(s.Players[idx].Matches, pair)
		s.MatchedPairs = append(s.MatchedPairs, pair)
		s.Flipped = s.Flipped[:0]

		if s.allMatched() {
			s.Status = StatusFinished
		}
		return
	}

	// 不配对：两张牌保持翻开，等待调用方在展示延迟后触发 ResetMismatch
	if s.Mode == ModeAIVersusAI {
		s.PendingSwitch = true
		return
	}
	s.advanceTurn()
}

// ResetMismatch 展示延迟结束后由调用方触发：翻回所有已翻开未配对的牌。
// 已配对的牌绝不触碰。AI对AI模式在此处执行延迟的换手。
func (s *GameState) ResetMismatch() *GameState {
	next := s.clone()
	for i := range next.Cards {
		if next.Cards[i].Flipped && !next.Cards[i].Matched {
			next.Cards[i].Flipped = false
		}
	}
	next.Flipped = next.Flipped[:0]
	if next.PendingSwitch {
		next.PendingSwitch = false
		next.advanceTurn()
	}
	return next
}

// Pause 暂停对局；仅 playing 状态可暂停
func (s *GameState) Pause() *GameState {
	if s.Status != StatusPlaying {
		return s
	}
	next := s.clone()
	next.Status = StatusPaused
	return next
}

// Resume 恢复对局；仅 paused 状态可恢复
func (s *GameState) Resume() *GameState {
	if s.Status != StatusPaused {
		return s
	}
	next := s.clone()
	next.Status = StatusPlaying
	return next
}

// advanceTurn 轮转到下一个席位
func (s *GameState) advanceTurn() {
	if s.CurrentPlayer == s.Players[0].ID {
		s.CurrentPlayer = s.Players[1].ID
	} else {
		s.CurrentPlayer = s.Players[0].ID
	}
	s.TurnStartedAt = time.Now()
}

// currentIndex 当前手番席位的下标
func (s *GameState) currentIndex() int {
	if s.CurrentPlayer == s.Players[1].ID {
		return 1
	}
	return 0
}

// CurrentPlayerSeat 返回当前手番的席位
func (s *GameState) CurrentPlayerSeat() *Player {
	return &s.Players[s.currentIndex()]
}

// allMatched 是否所有牌都已配对
func (s *GameState) allMatched() bool {
	for i := range s.Cards {
		if !s.Cards[i].Matched {
			return false
		}
	}
	return true
}

// IsFinished 对局是否结束（所有牌都已配对）
func (s *GameState) IsFinished() bool {
	return s.Status == StatusFinished
}

// Winner 返回得分最高的席位；平局时返回全部并列席位
func (s *GameState) Winner() []Player {
	max := s.Players[0].Score
	if s.Players[1].Score > max {
		max = s.Players[1].Score
	}
	winners := make([]Player, 0, 2)
	for _, p := range s.Players {
		if p.Score == max {
			winners = append(winners, p)
		}
	}
	return winners
}

// AvailablePositions 返回所有当前可翻的位置
func (s *GameState) AvailablePositions() []int {
	out := make([]int, 0, len(s.Cards))
	for i := range s.Cards {
		if s.Cards[i].Available() {
			out = append(out, i)
		}
	}
	return out
}

// FindHint 在可用牌中扫描一对满足配对规则的位置。
// 只读查询，不修改状态；找不到时第三个返回值为 false。
func (s *GameState) FindHint() (int, int, bool) {
	avail := s.AvailablePositions()
	for i := 0; i < len(avail)-1; i++ {
		for j := i + 1; j < len(avail); j++ {
			if Matches(s.Cards[avail[i]], s.Cards[avail[j]], s.MatchType) {
				return avail[i], avail[j], true
			}
		}
	}
	return 0, 0, false
}

// CardByID 按ID查找牌；找不到返回 nil
func (s *GameState) CardByID(id string) *Card {
	for i := range s.Cards {
		if s.Cards[i].ID == id {
			return &s.Cards[i]
		}
	}
	return nil
}

// Scores 两个席位的当前得分
func (s *GameState) Scores() map[string]int {
	return map[string]int{
		s.Players[0].ID: s.Players[0].Score,
		s.Players[1].ID: s.Players[1].Score,
	}
}
