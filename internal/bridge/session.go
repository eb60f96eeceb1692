package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/wifiprov/internal/logging"
	"github.com/muurk/wifiprov/internal/metrics"
	"github.com/muurk/wifiprov/internal/protocol"
	"github.com/muurk/wifiprov/internal/provision"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Outbound messages queued per session
	sendBuffer = 64
)

var errBinaryMessage = errors.New("binary messages are not supported")

type outbound struct {
	kind protocol.EventType
	data []byte
}

// Session couples one WebSocket connection with one provisioning workflow.
//
// A single reader dispatches commands and a single writer owns every write.
// Phase operations run in their own goroutines so cancel keeps working while
// a scan or verification is in flight.
type Session struct {
	id         string
	remoteAddr string
	conn       *websocket.Conn
	wf         *provision.Workflow
	transcript *Transcript

	ctx    context.Context
	cancel context.CancelFunc

	send       chan outbound
	done       chan struct{}
	writerDone chan struct{}
	ops        sync.WaitGroup
	closeOnce  sync.Once
}

func newSession(conn *websocket.Conn, remoteAddr string, dev provision.Device, opts provision.Options,
	collector *metrics.Collector, transcriptDir string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		remoteAddr: remoteAddr,
		conn:       conn,
		ctx:        ctx,
		cancel:     cancel,
		send:       make(chan outbound, sendBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}

	listeners := []provision.Listener{provision.ListenerFunc(s.onStateChange)}
	if collector != nil {
		opts.Observer = collector
		listeners = append(listeners, collector)
	}
	s.wf = provision.New(dev, opts, listeners...)
	s.id = s.wf.ID()
	s.transcript = NewTranscript(transcriptDir, s.id, remoteAddr)
	return s
}

// ID returns the workflow session identifier
func (s *Session) ID() string {
	return s.id
}

// Close drops the connection. The reader notices and tears the session down.
func (s *Session) Close() {
	_ = s.conn.Close()
}

// run blocks until the connection ends.
func (s *Session) run() {
	defer s.teardown()

	go s.writePump()

	logging.Info("Session opened",
		zap.String("session", s.id),
		zap.String("remote_addr", s.remoteAddr),
	)
	s.enqueue(protocol.NewHello(s.wf.Snapshot()))
	s.readPump()
}

func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		s.cancel()
		_ = s.wf.Close()
		s.ops.Wait()
		close(s.done)
		<-s.writerDone
		_ = s.conn.Close()
		logging.Info("Session closed", zap.String("session", s.id))
	})
}

func (s *Session) readPump() {
	s.conn.SetReadLimit(protocol.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Info("Connection closed or error reading message",
					zap.String("remote_addr", s.remoteAddr),
					zap.Error(err),
				)
			} else {
				logging.Info("Connection closed by browser", zap.String("remote_addr", s.remoteAddr))
			}
			return
		}

		if messageType != websocket.TextMessage {
			logging.LogWebSocketMessage(s.remoteAddr, "received", messageType, "unsupported", len(data))
			s.transcript.RecordInvalid(len(data))
			s.enqueue(protocol.NewError(s.id, "", errBinaryMessage))
			continue
		}

		cmd, err := protocol.ParseCommand(data)
		if err != nil {
			logging.LogWebSocketMessage(s.remoteAddr, "received", messageType, "invalid", len(data))
			s.transcript.RecordInvalid(len(data))
			s.enqueue(protocol.NewError(s.id, "", err))
			continue
		}

		logging.LogWebSocketMessage(s.remoteAddr, "received", messageType, string(cmd.Type), len(data))
		s.transcript.RecordCommand(cmd, len(data))
		s.dispatch(cmd)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(s.writerDone)
	}()

	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				s.writeFailed(err)
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.writeFailed(err)
				return
			}
		case <-s.done:
			s.flush()
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is still queued when the session stops.
func (s *Session) flush() {
	for {
		select {
		case msg := <-s.send:
			if err := s.write(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *Session) write(msg outbound) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	s.transcript.RecordEvent(msg.kind, msg.data)
	if err := s.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
		return err
	}
	logging.LogWebSocketMessage(s.remoteAddr, "sent", websocket.TextMessage, string(msg.kind), len(msg.data))
	return nil
}

func (s *Session) writeFailed(err error) {
	logging.Warn("Failed to write to browser",
		zap.String("remote_addr", s.remoteAddr),
		zap.Error(err),
	)
	// Unblock the reader so the session tears down
	_ = s.conn.Close()
}

// enqueue queues ev for the writer and waits for room.
func (s *Session) enqueue(ev *protocol.Event) {
	msg, ok := encode(ev)
	if !ok {
		return
	}
	select {
	case s.send <- msg:
	case <-s.writerDone:
	}
}

// onStateChange runs under the workflow lock, so it never waits.
func (s *Session) onStateChange(pe provision.Event) {
	msg, ok := encode(protocol.NewStateEvent(pe))
	if !ok {
		return
	}
	select {
	case s.send <- msg:
	case <-s.writerDone:
	default:
		logging.Warn("Dropped state event, browser is not reading",
			zap.String("session", s.id),
			zap.String("state", pe.State.String()),
			zap.Bool("transition", pe.Transition()),
		)
	}
}

func encode(ev *protocol.Event) (outbound, bool) {
	data, err := protocol.Marshal(ev)
	if err != nil {
		logging.Error("Failed to marshal event",
			zap.String("event", ev.String()),
			zap.Error(err),
		)
		return outbound{}, false
	}
	return outbound{kind: ev.Type, data: data}, true
}

// dispatch maps a command onto the workflow. Phase commands run in the
// background; the rest answer immediately.
func (s *Session) dispatch(cmd *protocol.Command) {
	if !cmd.Type.Blocking() {
		s.reply(cmd, s.runImmediate(cmd))
		return
	}

	creds := cmd.Credentials()
	cmd.Password = ""

	s.ops.Add(1)
	go func() {
		defer s.ops.Done()

		var err error
		switch cmd.Type {
		case protocol.CmdScan:
			_, err = s.wf.StartScan(s.ctx)
		case protocol.CmdRetryScan:
			_, err = s.wf.RetryScan(s.ctx)
		case protocol.CmdConnect:
			_, err = s.wf.SelectAndConnect(s.ctx, creds)
		case protocol.CmdRetryConnect:
			_, err = s.wf.RetryConnect(s.ctx, creds)
		case protocol.CmdResume:
			_, err = s.wf.ResumeVerification(s.ctx)
		}
		s.reply(cmd, err)
	}()
}

func (s *Session) runImmediate(cmd *protocol.Command) error {
	switch cmd.Type {
	case protocol.CmdCancel:
		return s.wf.Cancel()
	case protocol.CmdAck:
		return s.wf.Acknowledge()
	case protocol.CmdSnapshot:
		s.enqueue(protocol.NewStateEvent(s.wf.Snapshot()))
		return nil
	}
	return nil
}

func (s *Session) reply(cmd *protocol.Command, err error) {
	if err != nil {
		logging.Debug("Command finished with error",
			zap.String("session", s.id),
			zap.String("command", cmd.String()),
			zap.String("kind", provision.KindOf(err).String()),
			zap.Error(err),
		)
	}
	s.enqueue(protocol.NewResult(s.id, cmd, err))
}
