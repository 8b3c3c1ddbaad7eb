// Package identity 单次导入运行内的 (类型, 数据源, 外部ID) -> 内部ID 映射
//
// Map 只在内存中存活一次导入；每次运行开始必须调用 Clear，不做持久化也没有TTL。
// 并发导入不能共享同一个实例。
package identity

import (
	"GamePriceSync/internal/model"
)

type Map struct {
	ids map[string]uint64
}

func New() *Map {
	return &Map{ids: make(map[string]uint64)}
}

func key(entity model.EntityType, provider, externalID string) string {
	return model.CanonicalEntityKey{Type: entity, Provider: provider, ExternalID: externalID}.String()
}

// Put 重复写入同一键时后写覆盖
func (m *Map) Put(entity model.EntityType, provider, externalID string, internalID uint64) {
	m.ids[key(entity, provider, externalID)] = internalID
}

func (m *Map) Get(entity model.EntityType, provider, externalID string) (uint64, bool) {
	id, ok := m.ids[key(entity, provider, externalID)]
	return id, ok
}

// Clear 清空映射，开始新的导入前调用
func (m *Map) Clear() {
	m.ids = make(map[string]uint64)
}

func (m *Map) Len() int {
	return len(m.ids)
}
