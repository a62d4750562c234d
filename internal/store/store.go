package store

import (
	"errors"

	"github.com/yourorg/promptlog/pkg/types"
)

var ErrNotFound = errors.New("run not found")

type Store interface {
	SaveRun(run *types.Run) error
	GetRun(id string) (*types.Run, error)
	ListRuns(limit int) ([]types.Run, error)
	DeleteRun(id string) error

	Close() error
}
