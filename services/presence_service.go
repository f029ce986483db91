//go:generate go run go.uber.org/mock/mockgen -source=presence_service.go -destination=../mocks/mock_presence_service.go -package=mocks
package services

import (
	"call-lab/domain"
	"call-lab/runtime"
)

type IPresenceService interface {
	SetStatus(identity domain.Identity, status domain.Status, customStatus string) (<-chan struct{}, error)
	HandleOnline(identity domain.Identity) <-chan struct{}
	HandleOffline(identity domain.Identity) <-chan struct{}
	Snapshot() []domain.PresenceRecord
	Get(identity domain.IdentityID) (domain.PresenceRecord, bool)
}

type PresenceService struct {
	store *runtime.PresenceStore
}

func NewPresenceService(store *runtime.PresenceStore) *PresenceService {
	return &PresenceService{store: store}
}

func (s *PresenceService) SetStatus(identity domain.Identity, status domain.Status,
	customStatus string) (<-chan struct{}, error) {
	return s.store.SetStatus(identity, status, customStatus)
}

func (s *PresenceService) HandleOnline(identity domain.Identity) <-chan struct{} {
	return s.store.HandleOnline(identity)
}

func (s *PresenceService) HandleOffline(identity domain.Identity) <-chan struct{} {
	return s.store.HandleOffline(identity)
}

func (s *PresenceService) Snapshot() []domain.PresenceRecord {
	return s.store.Snapshot()
}

func (s *PresenceService) Get(identity domain.IdentityID) (domain.PresenceRecord, bool) {
	return s.store.Get(identity)
}
