// Пакет service — бизнес-логика Linkgate: конвейер токен → ссылка →
// авторизация → локация → отдача → учёт.
// CacheService — LRU-кэш метаданных активов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/linkgate/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных активов.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных активов.",
	})
)

// CacheService — LRU-кэш метаданных активов (asset + volume) с автоматическим TTL.
// Каждый экземпляр Linkgate имеет собственный in-memory кэш (per-instance).
// Токены и счётчики скачиваний НЕ кэшируются: квота проверяется по
// актуальному состоянию хранилища.
type CacheService struct {
	cache *expirable.LRU[string, *model.AssetInfo]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.AssetInfo](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// Get возвращает AssetInfo из кэша по assetID.
// Возвращает (запись, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(assetID string) (*model.AssetInfo, bool) {
	val, ok := c.cache.Get(assetID)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *CacheService) Set(assetID string, info *model.AssetInfo) {
	c.cache.Add(assetID, info)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(assetID string) {
	c.cache.Remove(assetID)
}
