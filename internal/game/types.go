package game

import (
	"time"

	"github.com/wfunc/memory-game/internal/game/memory"
)

// CreateGameRequest 开局请求
type CreateGameRequest struct {
	Mode        string `json:"mode" binding:"required,oneof=ai local ai_vs_ai"`
	MatchType   string `json:"match_type" binding:"required,oneof=color rank suit"`
	BoardSize   string `json:"board_size" binding:"required,oneof=4x4 4x6 6x6"`
	Player1Name string `json:"player1_name"`
	Player2Name string `json:"player2_name"`
	Difficulty  string `json:"difficulty"`  // 模式为 ai / ai_vs_ai 时必填
	Difficulty2 string `json:"difficulty2"` // 模式为 ai_vs_ai 时必填
}

// FlipResponse 翻牌响应
type FlipResponse struct {
	SessionID    string          `json:"session_id"`
	Position     int             `json:"position"`
	Card         memory.Card     `json:"card"`
	PairResolved bool            `json:"pair_resolved"`
	Matched      bool            `json:"matched"`
	Finished     bool            `json:"finished"`
	NextPlayer   string          `json:"next_player"`
	Scores       map[string]int  `json:"scores"`
	Board        *BoardView      `json:"board,omitempty"`
	Winners      []memory.Player `json:"winners,omitempty"`
}

// BoardView 牌局视图。未翻开的牌不下发花色和点数，
// 客户端永远拿不到背面牌的内容。
type BoardView struct {
	Mode          string          `json:"mode"`
	MatchType     string          `json:"match_type"`
	BoardSize     string          `json:"board_size"`
	Status        string          `json:"status"`
	CurrentPlayer string          `json:"current_player"`
	Players       []memory.Player `json:"players"`
	Cards         []CardView      `json:"cards"`
	MatchedPairs  int             `json:"matched_pairs"`
	TotalMoves    int             `json:"total_moves"`
	StartedAt     time.Time       `json:"started_at"`
}

// CardView 单张牌的客户端视图
type CardView struct {
	ID       string       `json:"id"`
	Position int          `json:"position"`
	Flipped  bool         `json:"is_flipped"`
	Matched  bool         `json:"is_matched"`
	Suit     memory.Suit  `json:"suit,omitempty"`
	Rank     memory.Rank  `json:"rank,omitempty"`
	Color    memory.Color `json:"color,omitempty"`
}

// NewBoardView 从牌局状态构建客户端视图
func NewBoardView(board *memory.GameState) *BoardView {
	cards := make([]CardView, len(board.Cards))
	for i, c := range board.Cards {
		view := CardView{
			ID:       c.ID,
			Position: c.Position,
			Flipped:  c.Flipped,
			Matched:  c.Matched,
		}
		// 只有正面朝上的牌才下发内容
		if c.Flipped || c.Matched {
			view.Suit = c.Suit
			view.Rank = c.Rank
			view.Color = c.Color
		}
		cards[i] = view
	}

	return &BoardView{
		Mode:          string(board.Mode),
		MatchType:     string(board.MatchType),
		BoardSize:     string(board.BoardSize),
		Status:        string(board.Status),
		CurrentPlayer: board.CurrentPlayer,
		Players:       board.Players[:],
		Cards:         cards,
		MatchedPairs:  len(board.MatchedPairs),
		TotalMoves:    len(board.Moves),
		StartedAt:     board.StartedAt,
	}
}

// SessionInfo 会话信息
type SessionInfo struct {
	SessionID   string         `json:"session_id"`
	UserID      uint           `json:"user_id"`
	State       LifecycleState `json:"state"`
	Mode        string         `json:"mode"`
	StartTime   time.Time      `json:"start_time"`
	Duration    float64        `json:"duration"`
	TotalMoves  int            `json:"total_moves"`
	Scores      map[string]int `json:"scores"`
	Board       *BoardView     `json:"board"`
	ValidEvents []string       `json:"valid_events"`
}

// HintResponse 提示响应
type HintResponse struct {
	First  int  `json:"first"`
	Second int  `json:"second"`
	Found  bool `json:"found"`
}

// UserGameStats 用户对局统计
type UserGameStats struct {
	UserID       uint    `json:"user_id"`
	TotalGames   int64   `json:"total_games"`
	TotalWins    int64   `json:"total_wins"`
	TotalDraws   int64   `json:"total_draws"`
	WinRate      float64 `json:"win_rate"`
	AverageMoves float64 `json:"average_moves"`
	TotalMinutes int64   `json:"total_minutes"`
}
