// internal/adapter/adapter.go
package adapter

import (
	"GamePriceSync/internal/interfaces"
	"GamePriceSync/internal/model"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// ========== 全局工厂函数注册表（零售商抓取器在 init 中注册） ==========
var (
	factoryMu       sync.RWMutex
	factoryRegistry = make(map[model.RetailerType]interfaces.Factory)
)

// Register 供抓取器init函数调用，注册工厂函数
func Register(retailer model.RetailerType, factory interfaces.Factory) {
	if factory == nil {
		panic(fmt.Sprintf("零售商%s的工厂函数不能为nil", retailer))
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	if _, exists := factoryRegistry[retailer]; exists {
		logrus.Warnf("零售商%s的抓取器已注册，将覆盖原有实现", retailer)
	}
	factoryRegistry[retailer] = factory
}

// GetFactory 获取指定零售商的工厂函数
func GetFactory(retailer model.RetailerType) (interfaces.Factory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	factory, ok := factoryRegistry[retailer]
	return factory, ok
}

// ListFactories 列出所有已注册的零售商
func ListFactories() []model.RetailerType {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	var retailers []model.RetailerType
	for r := range factoryRegistry {
		retailers = append(retailers, r)
	}
	return retailers
}
