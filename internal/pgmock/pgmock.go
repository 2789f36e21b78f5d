// Package pgmock provides the ability to mock a PostgreSQL server. A
// scripted server is enough to test client behavior against exact message
// sequences without a running database.
package pgmock

import (
	"io"
	"net"
	"reflect"

	"github.com/pkg/errors"

	"github.com/pgkit/pgsql/pgproto"
)

// Server listens on a local TCP port and serves a single connection with
// its Controller.
type Server struct {
	ln         net.Listener
	controller Controller
}

func NewServer(controller Controller) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return nil, err
	}

	server := &Server{
		ln:         ln,
		controller: controller,
	}

	return server, nil
}

func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// ServeOne accepts one connection, stops listening, and runs the controller
// against the accepted connection.
func (s *Server) ServeOne() error {
	conn, err := s.ln.Accept()
	if err != nil {
		return err
	}
	defer conn.Close()

	s.Close()

	backend := pgproto.NewBackend(conn, conn)

	return s.controller.Serve(backend)
}

func (s *Server) Close() error {
	return s.ln.Close()
}

type Controller interface {
	Serve(backend *pgproto.Backend) error
}

// Step is one scripted exchange with the client.
type Step interface {
	Step(*pgproto.Backend) error
}

// Script is an ordered list of steps. It implements Controller and Step so
// scripts can nest.
type Script struct {
	Steps []Step
}

func (s *Script) Run(backend *pgproto.Backend) error {
	for _, step := range s.Steps {
		err := step.Step(backend)
		if err != nil {
			return err
		}
	}

	return nil
}

func (s *Script) Serve(backend *pgproto.Backend) error {
	return s.Run(backend)
}

func (s *Script) Step(backend *pgproto.Backend) error {
	return s.Run(backend)
}

type expectMessageStep struct {
	want pgproto.FrontendMessage
	any  bool
}

func (e *expectMessageStep) Step(backend *pgproto.Backend) error {
	msg, err := backend.Receive()
	if err != nil {
		return err
	}

	if e.any && reflect.TypeOf(msg) == reflect.TypeOf(e.want) {
		return nil
	}

	if !reflect.DeepEqual(msg, e.want) {
		return errors.Errorf("msg => %#v, e.want => %#v", msg, e.want)
	}

	return nil
}

type expectStartupMessageStep struct {
	want *pgproto.StartupMessage
	any  bool
}

func (e *expectStartupMessageStep) Step(backend *pgproto.Backend) error {
	msg, err := backend.ReceiveStartupMessage()
	if err != nil {
		return err
	}

	if e.any {
		return nil
	}

	if !reflect.DeepEqual(msg, e.want) {
		return errors.Errorf("msg => %#v, e.want => %#v", msg, e.want)
	}

	return nil
}

// ExpectMessage builds a Step that fails unless the exact message want is
// received.
func ExpectMessage(want pgproto.FrontendMessage) Step {
	return expectMessage(want, false)
}

// ExpectAnyMessage builds a Step that fails unless a message of the same
// type as want is received.
func ExpectAnyMessage(want pgproto.FrontendMessage) Step {
	return expectMessage(want, true)
}

func expectMessage(want pgproto.FrontendMessage, any bool) Step {
	if want, ok := want.(*pgproto.StartupMessage); ok {
		return &expectStartupMessageStep{want: want, any: any}
	}

	return &expectMessageStep{want: want, any: any}
}

type sendMessageStep struct {
	msg pgproto.BackendMessage
}

func (e *sendMessageStep) Step(backend *pgproto.Backend) error {
	return backend.Send(e.msg)
}

// SendMessage builds a Step that sends msg to the client.
func SendMessage(msg pgproto.BackendMessage) Step {
	return &sendMessageStep{msg: msg}
}

type setAuthTypeStep struct {
	authType uint32
}

func (e *setAuthTypeStep) Step(backend *pgproto.Backend) error {
	backend.SetAuthType(e.authType)
	return nil
}

// SetAuthType builds a Step that tells the backend which authentication
// challenge was issued, so the following 'p' message decodes correctly.
func SetAuthType(authType uint32) Step {
	return &setAuthTypeStep{authType: authType}
}

type waitForCloseMessageStep struct{}

func (e *waitForCloseMessageStep) Step(backend *pgproto.Backend) error {
	for {
		msg, err := backend.Receive()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		if _, ok := msg.(*pgproto.Terminate); ok {
			return nil
		}
	}
}

// WaitForClose builds a Step that consumes messages until the client sends
// Terminate or closes the connection.
func WaitForClose() Step {
	return &waitForCloseMessageStep{}
}

// AcceptUnauthenticatedConnRequestSteps returns the steps of a handshake
// that accepts any client without authentication.
func AcceptUnauthenticatedConnRequestSteps() []Step {
	return []Step{
		ExpectAnyMessage(&pgproto.StartupMessage{ProtocolVersion: pgproto.ProtocolVersionNumber, Parameters: map[string]string{}}),
		SendMessage(&pgproto.Authentication{Type: pgproto.AuthTypeOk}),
		SendMessage(&pgproto.BackendKeyData{ProcessID: 0, SecretKey: 0}),
		SendMessage(&pgproto.ReadyForQuery{TxStatus: 'I'}),
	}
}
