//go:build integration

// Package containers starts Postgres and Kafka for integration suites. Each
// container is started at most once per test binary and shared by every
// suite; Ryuk removes them when the process exits.
package containers

import (
	"sync"
	"testing"
)

type Manager struct {
	mu       sync.Mutex
	postgres *PostgresContainer
	kafka    *KafkaContainer
}

var manager = sync.OnceValue(func() *Manager { return &Manager{} })

func GetManager() *Manager {
	return manager()
}

func (m *Manager) GetPostgres(t *testing.T) *PostgresContainer {
	t.Helper()
	return shared(m, &m.postgres, func() *PostgresContainer { return NewPostgresContainer(t) })
}

func (m *Manager) GetKafka(t *testing.T) *KafkaContainer {
	t.Helper()
	return shared(m, &m.kafka, func() *KafkaContainer { return NewKafkaContainer(t) })
}

func shared[T any](m *Manager, slot **T, start func() *T) *T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if *slot == nil {
		*slot = start()
	}
	return *slot
}
