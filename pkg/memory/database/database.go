// Package database defines the storage contract behind the per-agent
// memory tool: plain CRUD over user-visible memory notes.
package database

import (
	"context"
	"errors"
)

var ErrEmptyID = errors.New("memory ID cannot be empty")

// UserMemory is one note an agent chose to remember about the user.
type UserMemory struct {
	ID        string
	CreatedAt string
	Memory    string
}

// Database stores memory notes. The sqlite implementation lives in the
// sqlite subpackage.
type Database interface {
	AddMemory(ctx context.Context, memory UserMemory) error
	GetMemories(ctx context.Context) ([]UserMemory, error)
	DeleteMemory(ctx context.Context, memory UserMemory) error
}
