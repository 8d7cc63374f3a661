package store

import (
	"encoding/json"
	"fmt"
	"time"

	"robot_crypt/internal/domain"
)

// SchemaVersion 当前快照结构版本
const SchemaVersion = 2

// State 持久化快照：运行统计 + 未平仓持仓 + 待对账订单 + 上次检查时间
type State struct {
	SchemaVersion int                            `json:"schema_version"`
	Stats         domain.RunningStats            `json:"stats"`
	Positions     map[string]domain.Position     `json:"positions"`
	Pending       map[string]domain.PendingOrder `json:"pending"`
	LastCheck     time.Time                      `json:"last_check"`
	SavedAt       time.Time                      `json:"saved_at"`
}

// migration 把 from 版本的原始 JSON 升级到 from+1
type migration func(raw map[string]json.RawMessage) error

var migrations = map[int]migration{
	1: migrateV1,
}

// migrateV1 v1 没有版本号，持仓键为 open_positions，时间键为 last_check_time
func migrateV1(raw map[string]json.RawMessage) error {
	rename(raw, "open_positions", "positions")
	rename(raw, "last_check_time", "last_check")
	if _, ok := raw["pending"]; !ok {
		raw["pending"] = json.RawMessage(`{}`)
	}
	return nil
}

func rename(raw map[string]json.RawMessage, from, to string) {
	if v, ok := raw[from]; ok {
		if _, exists := raw[to]; !exists {
			raw[to] = v
		}
		delete(raw, from)
	}
}

// EncodeState 以当前版本序列化
func EncodeState(s State) ([]byte, error) {
	s.SchemaVersion = SchemaVersion
	return json.Marshal(s)
}

// DecodeState 读取任意历史版本的快照并逐级迁移到当前版本
func DecodeState(data []byte) (State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return State{}, fmt.Errorf("decode snapshot: %w", err)
	}

	version := 1
	if v, ok := raw["schema_version"]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return State{}, fmt.Errorf("decode schema_version: %w", err)
		}
	}
	if version > SchemaVersion {
		return State{}, fmt.Errorf("snapshot schema_version %d is newer than supported %d", version, SchemaVersion)
	}
	for ; version < SchemaVersion; version++ {
		m, ok := migrations[version]
		if !ok {
			return State{}, fmt.Errorf("no migration from schema_version %d", version)
		}
		if err := m(raw); err != nil {
			return State{}, fmt.Errorf("migrate snapshot v%d: %w", version, err)
		}
	}
	raw["schema_version"] = json.RawMessage(fmt.Sprintf("%d", SchemaVersion))

	upgraded, err := json.Marshal(raw)
	if err != nil {
		return State{}, err
	}
	var s State
	if err := json.Unmarshal(upgraded, &s); err != nil {
		return State{}, fmt.Errorf("decode snapshot v%d: %w", SchemaVersion, err)
	}
	if s.Positions == nil {
		s.Positions = map[string]domain.Position{}
	}
	if s.Pending == nil {
		s.Pending = map[string]domain.PendingOrder{}
	}
	if s.Stats.ProfitHistory == nil {
		s.Stats.ProfitHistory = []float64{}
	}
	return s, nil
}
