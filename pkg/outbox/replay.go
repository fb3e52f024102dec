package outbox

import (
	"context"
)

// ReplayStore 管理端重放需要的 outbox 操作
type ReplayStore interface {
	GetEvent(ctx context.Context, tenantID, eventID int64) (*Event, error)
	FailedEvents(ctx context.Context, tenantID int64, limit int) ([]*Event, error)
	Requeue(ctx context.Context, tenantID, eventID int64) error
	RequeueFailed(ctx context.Context, tenantID int64, limit int) (int64, error)
}

// ReplayService 重放只把事件放回待发送状态，真正的发布仍由 Dispatcher 完成
type ReplayService struct {
	store ReplayStore
}

func NewReplayService(store ReplayStore) *ReplayService {
	return &ReplayService{store: store}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func (s *ReplayService) ListFailed(ctx context.Context, tenantID int64, limit int) ([]*Event, error) {
	return s.store.FailedEvents(ctx, tenantID, clampLimit(limit))
}

// Replay 重放单个失败事件
func (s *ReplayService) Replay(ctx context.Context, tenantID, eventID int64) (*Event, error) {
	if err := s.store.Requeue(ctx, tenantID, eventID); err != nil {
		return nil, err
	}
	return s.store.GetEvent(ctx, tenantID, eventID)
}

func (s *ReplayService) ReplayFailed(ctx context.Context, tenantID int64, limit int) (int64, error) {
	return s.store.RequeueFailed(ctx, tenantID, clampLimit(limit))
}
