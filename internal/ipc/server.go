package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"reel/internal/logging"
)

// Backend is the daemon surface the IPC service drives. The daemon
// implements it; tests supply fakes.
type Backend interface {
	StartRecording(ctx context.Context, project, profile string) (StartResponse, error)
	StopRecording(ctx context.Context) (StopResponse, error)
	Status(ctx context.Context) StatusResponse
	Sessions(ctx context.Context, project string, limit int) ([]SessionSummary, error)
	Provision(ctx context.Context, profile string) error
	TestNotification(ctx context.Context) (bool, string, error)
	Shutdown()
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	backend   Backend
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("ipc server requires backend")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{backend: backend, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Reel", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		backend:   backend,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String("impact", "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String("impact", "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun reel daemon stop"))
	}
}

type service struct {
	backend Backend
	logger  *slog.Logger
	ctx     context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(req StartRequest, resp *StartResponse) error {
	s.log().Debug("recording start requested",
		logging.String("project", req.Project),
		logging.String("profile", req.Profile))
	result, err := s.backend.StartRecording(s.ctx, req.Project, req.Profile)
	if err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	*resp = result
	s.log().Info("recording started via IPC",
		logging.String(logging.FieldEventType, "recording_start"),
		logging.String(logging.FieldSessionID, result.SessionID))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("recording stop requested")
	result, err := s.backend.StopRecording(s.ctx)
	if err != nil {
		resp.Stopped = false
		resp.Message = err.Error()
		return nil
	}
	*resp = result
	s.log().Info("recording stopped via IPC",
		logging.String(logging.FieldEventType, "recording_stop"),
		logging.Int("artifact_count", len(result.Artifacts)))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.backend.Status(s.ctx)
	return nil
}

func (s *service) Sessions(req SessionsRequest, resp *SessionsResponse) error {
	sessions, err := s.backend.Sessions(s.ctx, req.Project, req.Limit)
	if err != nil {
		return err
	}
	resp.Sessions = sessions
	return nil
}

func (s *service) Provision(req ProvisionRequest, resp *ProvisionResponse) error {
	s.log().Debug("provision requested", logging.String("profile", req.Profile))
	if err := s.backend.Provision(s.ctx, req.Profile); err != nil {
		resp.Applied = false
		resp.Message = err.Error()
		return nil
	}
	resp.Applied = true
	resp.Message = "capture layout converged"
	s.log().Info("capture layout provisioned via IPC",
		logging.String(logging.FieldEventType, "provision"),
		logging.String("profile", req.Profile))
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.backend.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	resp.ShuttingDown = true
	s.backend.Shutdown()
	return nil
}
