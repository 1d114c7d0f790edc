// common/kafka/interface.go
//
// Пакет kafka задаёт минимальный контракт публикации, не тянет
// за собой Sarama и никак не зависит от конкретной реализации.
package kafka

import "context"

// Producer публикует сообщения в Kafka.
type Producer interface {
	// Publish гарантирует, что сообщение будет доставлено согласно политике
	// RequiredAcks; возможен внутренний retry согласно стратегии back-off.
	Publish(ctx context.Context, topic string, key, value []byte) error
	// Ping проверяет достижимость кластера (обновление метаданных).
	Ping(ctx context.Context) error
	Close() error
}
