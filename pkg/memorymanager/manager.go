// Package memorymanager names the interface an agent consults for its
// memory-note tool, decoupling pkg/agent from the concrete store.
package memorymanager

import (
	"context"

	"github.com/docker/local-rag-engine/pkg/memory/database"
)

type Manager interface {
	AddMemory(ctx context.Context, memory database.UserMemory) error
	GetMemories(ctx context.Context) ([]database.UserMemory, error)
	DeleteMemory(ctx context.Context, memory database.UserMemory) error
}
