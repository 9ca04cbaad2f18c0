package game

import (
	"time"
)

// EventType 对局事件类型
type EventType string

const (
	EventCardFlipped    EventType = "card_flipped"    // 翻开一张牌
	EventPairMatched    EventType = "pair_matched"    // 配对成功
	EventPairMismatched EventType = "pair_mismatched" // 配对失败
	EventBoardReset     EventType = "board_reset"     // 失配牌翻回背面
	EventTurnChanged    EventType = "turn_changed"    // 手番切换
	EventGameFinished   EventType = "game_finished"   // 对局结束
	EventGamePaused     EventType = "game_paused"     // 对局暂停
	EventGameResumed    EventType = "game_resumed"    // 对局继续
	EventStateChanged   EventType = "state_changed"   // 生命周期状态变更
)

// Event 对局事件。Payload 按事件类型携带不同数据，
// 由订阅方（WebSocket推送层等）按需取用。
type Event struct {
	Type      EventType              `json:"type"`
	SessionID string                 `json:"session_id"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventListener 事件监听器。回调在触发事件的goroutine中执行，
// 监听方不得阻塞，耗时处理应自行转交到独立goroutine。
type EventListener func(event Event)

// newEvent 构造事件
func newEvent(eventType EventType, sessionID string, payload map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
