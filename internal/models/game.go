package models

import (
	"time"
)

// GameSession 对局会话表
type GameSession struct {
	BaseModel
	UserID     uint       `gorm:"index" json:"user_id"`
	SessionID  string     `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	Mode       string     `gorm:"size:20;not null" json:"mode"`       // ai, local, ai_vs_ai
	MatchType  string     `gorm:"size:20;not null" json:"match_type"` // color, rank, suit
	BoardSize  string     `gorm:"size:10;not null" json:"board_size"` // 4x4, 4x6, 6x6
	Difficulty string     `gorm:"size:20" json:"difficulty"`
	Status     string     `gorm:"size:20;default:'playing'" json:"status"` // playing, paused, finished, abandoned
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	Duration   int        `json:"duration"` // 秒
	TotalMoves int        `gorm:"default:0" json:"total_moves"`
	GameData   JSONMap    `gorm:"type:json" json:"game_data"`

	// 关联
	Results []MatchResult `gorm:"foreignKey:SessionID;references:ID" json:"results,omitempty"`
}

// MatchResult 对局结果表，一局结束写一条
type MatchResult struct {
	BaseModel
	SessionID    uint      `gorm:"not null;index" json:"session_id"`
	RoundID      string    `gorm:"uniqueIndex;size:64;not null" json:"round_id"`
	WinnerSeat   string    `gorm:"size:20" json:"winner_seat"` // player_1, player_2, 平局为空
	IsDraw       bool      `gorm:"default:false" json:"is_draw"`
	Player1Score int       `gorm:"default:0" json:"player1_score"`
	Player2Score int       `gorm:"default:0" json:"player2_score"`
	TotalPairs   int       `gorm:"default:0" json:"total_pairs"`
	TotalMoves   int       `gorm:"default:0" json:"total_moves"`
	FinishedAt   time.Time `json:"finished_at"`

	// 关联
	Session GameSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}

// MoveRecord 翻牌记录表
type MoveRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;index" json:"session_id"`
	MoveIndex int       `json:"move_index"`
	Seat      string    `gorm:"size:20;not null" json:"seat"`
	FirstPos  int       `json:"first_pos"`
	SecondPos int       `json:"second_pos"`
	IsMatch   bool      `gorm:"default:false" json:"is_match"`
	PlayedAt  time.Time `json:"played_at"`

	// 关联
	Session GameSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}
