// common/service.go
package common

import (
	"github.com/YaganovValera/dataset-api/common/backoff"
	producer "github.com/YaganovValera/dataset-api/common/kafka/producer"
)

// ServiceNameKey — ключ лейбла для метрик всех подсистем.
const ServiceNameKey = "service"

// InitServiceName задаёт единое имя сервиса для backoff и Kafka-producer.
// Нужно вызывать до первого Execute/Publish, иначе метрики уйдут с лейблом "unknown".
func InitServiceName(name string) {
	backoff.SetServiceLabel(name)
	producer.SetServiceLabel(name)
}
