//go:generate go run go.uber.org/mock/mockgen -source=call_service.go -destination=../mocks/mock_call_service.go -package=mocks
package services

import (
	"call-lab/domain"
	"call-lab/runtime"
)

type ICallService interface {
	Initiate(caller domain.Connection, callee domain.IdentityID, kind domain.CallKind) (domain.CallSession, error)
	Accept(conn domain.Connection, callID domain.CallID) error
	Reject(conn domain.Connection, callID domain.CallID) error
	MarkConnected(conn domain.Connection, callID domain.CallID) error
	RelaySignal(conn domain.Connection, callID domain.CallID, kind domain.SignalKind, payload []byte) error
	End(conn domain.Connection, callID domain.CallID, reason domain.EndReason) error
	HandleConnectionClosed(conn domain.Connection)
}

type CallService struct {
	coordinator *runtime.Coordinator
}

func NewCallService(coordinator *runtime.Coordinator) *CallService {
	return &CallService{coordinator: coordinator}
}

func (s *CallService) Initiate(caller domain.Connection, callee domain.IdentityID,
	kind domain.CallKind) (domain.CallSession, error) {
	return s.coordinator.Initiate(caller, callee, kind)
}

func (s *CallService) Accept(conn domain.Connection, callID domain.CallID) error {
	return s.coordinator.Accept(conn, callID)
}

func (s *CallService) Reject(conn domain.Connection, callID domain.CallID) error {
	return s.coordinator.Reject(conn, callID)
}

func (s *CallService) MarkConnected(conn domain.Connection, callID domain.CallID) error {
	return s.coordinator.MarkConnected(conn, callID)
}

func (s *CallService) RelaySignal(conn domain.Connection, callID domain.CallID,
	kind domain.SignalKind, payload []byte) error {
	return s.coordinator.RelaySignal(conn, callID, kind, payload)
}

func (s *CallService) End(conn domain.Connection, callID domain.CallID, reason domain.EndReason) error {
	return s.coordinator.End(conn, callID, reason)
}

func (s *CallService) HandleConnectionClosed(conn domain.Connection) {
	s.coordinator.HandleConnectionClosed(conn)
}
