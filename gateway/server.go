package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"call-lab/auth"
	"call-lab/contract"
	"call-lab/domain"
	"call-lab/domain/event"
	"call-lab/errors"
	"call-lab/services"
	"call-lab/sink"
)

// Server upgrades authenticated HTTP requests to websocket connections and
// bridges them to the engine. One connection equals one registry entry and
// one sink; closing the socket tears all of it down, including any call the
// connection was bound to.
type Server struct {
	log        *slog.Logger
	verifier   auth.IVerifier
	registry   contract.IRegistry
	presence   services.IPresenceService
	calls      services.ICallService
	bufferSize int
	grace      time.Duration
	upgrader   websocket.Upgrader
}

func NewServer(log *slog.Logger, verifier auth.IVerifier, registry contract.IRegistry,
	presence services.IPresenceService, calls services.ICallService,
	bufferSize int, grace time.Duration) *Server {
	return &Server{
		log:        log,
		verifier:   verifier,
		registry:   registry,
		presence:   presence,
		calls:      calls,
		bufferSize: bufferSize,
		grace:      grace,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// handleWS is the admission path: token first, upgrade second. A bad token
// never gets a socket.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.verifier.Verify(bearerToken(r))
	if err != nil {
		s.log.Warn("Connection refused", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := domain.Connection{
		ID:            domain.ConnectionID(uuid.NewString()),
		Identity:      identity,
		EstablishedAt: time.Now().UTC(),
	}
	connSink := sink.NewConnSink(s.log, s.bufferSize)
	client := newClient(s.log, ws, conn, connSink)

	if becameOnline := s.registry.AddConnection(conn, connSink); becameOnline {
		s.presence.HandleOnline(identity)
	}

	// The snapshot rides the same sink as everything else, so it is the
	// first frame the client sees.
	snapshotCtx, cancel := context.WithTimeout(context.Background(), s.grace)
	connSink.Consume(snapshotCtx, event.PresenceSnapshot{Records: s.presence.Snapshot()})
	cancel()

	s.log.Info("Connection admitted", "identity", identity.ID, "conn", conn.ID)

	go client.writePump()
	s.readPump(client)
}

// readPump owns the connection lifecycle: it dispatches every inbound
// envelope and runs teardown when the socket dies, whatever the cause.
func (s *Server) readPump(client *Client) {
	defer s.closeConnection(client)

	client.ws.SetReadLimit(maxMessageSize)
	client.ws.SetReadDeadline(time.Now().Add(pongWait))
	client.ws.SetPongHandler(func(string) error {
		client.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := client.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Connection read error", "conn", client.conn.ID, "error", err)
			}
			return
		}
		s.dispatch(client, data)
	}
}

// dispatch decodes one envelope and applies it. Every refusal becomes an
// OperationFailed frame on the issuing connection; the socket stays open.
func (s *Server) dispatch(client *Client, data []byte) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		s.fail(client, "", fmt.Errorf("%w: malformed envelope", errors.ErrInvalidState))
		return
	}

	var err error
	switch envelope.Type {
	case TypeSetPresence:
		err = s.handleSetPresence(client, envelope.Payload)
	case TypeCallInitiate:
		err = s.handleCallInitiate(client, envelope.Payload)
	case TypeCallAccept:
		var payload CallAcceptPayload
		if payload, err = decodePayload[CallAcceptPayload](envelope.Payload); err == nil {
			err = s.calls.Accept(client.conn, payload.CallID)
		}
	case TypeCallReject:
		var payload CallRejectPayload
		if payload, err = decodePayload[CallRejectPayload](envelope.Payload); err == nil {
			err = s.calls.Reject(client.conn, payload.CallID)
		}
	case TypeCallConnected:
		var payload CallConnectedPayload
		if payload, err = decodePayload[CallConnectedPayload](envelope.Payload); err == nil {
			err = s.calls.MarkConnected(client.conn, payload.CallID)
		}
	case TypeCallSignal:
		var payload CallSignalPayload
		if payload, err = decodePayload[CallSignalPayload](envelope.Payload); err == nil {
			err = s.calls.RelaySignal(client.conn, payload.CallID, payload.Kind, payload.Payload)
		}
	case TypeCallEnd:
		var payload CallEndPayload
		if payload, err = decodePayload[CallEndPayload](envelope.Payload); err == nil {
			reason := payload.Reason
			if reason == "" {
				reason = domain.ReasonHangup
			}
			err = s.calls.End(client.conn, payload.CallID, reason)
		}
	default:
		err = fmt.Errorf("%w: unknown envelope type %q", errors.ErrInvalidState, envelope.Type)
	}

	if err != nil {
		s.fail(client, envelope.CorrelationID, err)
	}
}

func (s *Server) handleSetPresence(client *Client, raw json.RawMessage) error {
	payload, err := decodePayload[SetPresencePayload](raw)
	if err != nil {
		return err
	}
	done, err := s.presence.SetStatus(client.conn.Identity, payload.Status, payload.CustomStatus)
	if err != nil {
		return err
	}
	client.trackPresenceAck(done)
	return nil
}

func (s *Server) handleCallInitiate(client *Client, raw json.RawMessage) error {
	payload, err := decodePayload[CallInitiatePayload](raw)
	if err != nil {
		return err
	}
	_, err = s.calls.Initiate(client.conn, payload.Callee, payload.Kind)
	return err
}

// closeConnection tears a connection down in a fixed order: confirm the
// last explicit presence broadcast (bounded by the grace deadline), drop
// the registry entry, let presence infer offline on the last connection,
// then end any call this connection was bound to.
func (s *Server) closeConnection(client *Client) {
	client.closeOnce.Do(func() {
		client.awaitPresenceAck(s.grace)

		removed, becameOffline := s.registry.RemoveConnection(client.conn.Identity.ID, client.conn.ID)
		if removed && becameOffline {
			s.presence.HandleOffline(client.conn.Identity)
		}
		s.calls.HandleConnectionClosed(client.conn)

		close(client.closed)
		client.ws.Close()
		s.log.Info("Connection closed", "identity", client.conn.Identity.ID, "conn", client.conn.ID)
	})
}

// fail pushes a typed rejection back on the issuing connection.
func (s *Server) fail(client *Client, correlationID string, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	client.sink.Consume(ctx, event.OperationFailed{
		CorrelationID: correlationID,
		ErrorKind:     errors.KindOf(err),
		Detail:        err.Error(),
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
