package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wfunc/memory-game/internal/models"
	"github.com/wfunc/memory-game/internal/repository"
)

// MemoryStatePersister 内存持久化，作为缓存层或测试替身使用
type MemoryStatePersister struct {
	states map[string]*StateMachineData
	mu     sync.RWMutex
}

// NewMemoryStatePersister 创建内存持久化器
func NewMemoryStatePersister() *MemoryStatePersister {
	return &MemoryStatePersister{states: make(map[string]*StateMachineData)}
}

// Save 保存状态快照的副本
func (p *MemoryStatePersister) Save(ctx context.Context, sessionID string, state *StateMachineData) error {
	snapshot := *state

	p.mu.Lock()
	p.states[sessionID] = &snapshot
	p.mu.Unlock()
	return nil
}

// Load 取出状态快照的副本
func (p *MemoryStatePersister) Load(ctx context.Context, sessionID string) (*StateMachineData, error) {
	p.mu.RLock()
	state, exists := p.states[sessionID]
	p.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("状态不存在: %s", sessionID)
	}
	snapshot := *state
	return &snapshot, nil
}

// Delete 删除状态
func (p *MemoryStatePersister) Delete(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	delete(p.states, sessionID)
	p.mu.Unlock()
	return nil
}

// DatabaseStatePersister 把状态机快照以JSON形式落到game_states表
type DatabaseStatePersister struct {
	repo repository.GameStateRepository
}

// NewDatabaseStatePersister 创建数据库持久化器
func NewDatabaseStatePersister(repo repository.GameStateRepository) *DatabaseStatePersister {
	return &DatabaseStatePersister{repo: repo}
}

// Save 序列化并保存状态
func (p *DatabaseStatePersister) Save(ctx context.Context, sessionID string, state *StateMachineData) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("序列化状态失败: %w", err)
	}

	record := &models.GameState{
		SessionID:    sessionID,
		UserID:       state.UserID,
		StateData:    string(stateJSON),
		CurrentState: string(state.CurrentState),
		UpdatedAt:    time.Now(),
	}
	if err := p.repo.Save(ctx, record); err != nil {
		return fmt.Errorf("保存状态失败: %w", err)
	}
	return nil
}

// Load 读取并反序列化状态
func (p *DatabaseStatePersister) Load(ctx context.Context, sessionID string) (*StateMachineData, error) {
	record, err := p.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("查询状态失败: %w", err)
	}
	if record == nil {
		return nil, fmt.Errorf("游戏状态不存在: %s", sessionID)
	}

	var state StateMachineData
	if err := json.Unmarshal([]byte(record.StateData), &state); err != nil {
		return nil, fmt.Errorf("反序列化状态失败: %w", err)
	}
	return &state, nil
}

// Delete 删除状态记录
func (p *DatabaseStatePersister) Delete(ctx context.Context, sessionID string) error {
	if err := p.repo.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("删除状态失败: %w", err)
	}
	return nil
}

// CacheStatePersister 缓存层叠加存储层。写入以存储层为准，
// 读取优先走缓存，缓存操作失败不影响主流程。
type CacheStatePersister struct {
	cache   StatePersister
	storage StatePersister
}

// NewCacheStatePersister 创建带缓存的持久化器
func NewCacheStatePersister(cache, storage StatePersister) *CacheStatePersister {
	return &CacheStatePersister{cache: cache, storage: storage}
}

// Save 先写存储层，成功后回填缓存
func (p *CacheStatePersister) Save(ctx context.Context, sessionID string, state *StateMachineData) error {
	if err := p.storage.Save(ctx, sessionID, state); err != nil {
		return err
	}
	_ = p.cache.Save(ctx, sessionID, state)
	return nil
}

// Load 缓存命中直接返回，未命中回源并回填
func (p *CacheStatePersister) Load(ctx context.Context, sessionID string) (*StateMachineData, error) {
	if state, err := p.cache.Load(ctx, sessionID); err == nil {
		return state, nil
	}

	state, err := p.storage.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	_ = p.cache.Save(ctx, sessionID, state)
	return state, nil
}

// Delete 两层一起删，以存储层结果为准
func (p *CacheStatePersister) Delete(ctx context.Context, sessionID string) error {
	_ = p.cache.Delete(ctx, sessionID)
	return p.storage.Delete(ctx, sessionID)
}
