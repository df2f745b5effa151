package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cruciblehq/lambdad/internal/build"
	"github.com/cruciblehq/lambdad/internal/metrics"
	"github.com/cruciblehq/lambdad/internal/paths"
	"github.com/cruciblehq/lambdad/internal/protocol"
	"github.com/cruciblehq/lambdad/internal/runtime"
	"github.com/cruciblehq/lambdad/internal/settings"
)

const (

	// Group name used to grant socket access. Members of this group can
	// connect to the daemon socket without owning the process.
	socketGroup = "lambdad"

	// File mode applied to the Unix socket. Owner and group get read-write
	// (required for connect); others get no access.
	socketMode = 0660

	// Upper bound on removing sandboxes left by a previous daemon.
	pruneTimeout = 30 * time.Second

	// Upper bound on draining the metrics endpoint at shutdown.
	metricsShutdownTimeout = 5 * time.Second

	// Upper bound on waiting for in-flight commands to tear down their
	// sandboxes at shutdown.
	drainTimeout = 30 * time.Second
)

// Container operations the daemon needs. Satisfied by [*runtime.Runtime].
type engine interface {
	build.Runner
	ImportImage(ctx context.Context, path, ref string) error
	Sandboxes(ctx context.Context) ([]string, error)
	Prune(ctx context.Context) (int, error)
	Close() error
}

// Listens on a Unix domain socket and dispatches commands.
type Server struct {
	settings   settings.Settings  // Daemon settings.
	socketPath string             // Path to the Unix socket file.
	pidFile    string             // Path to the PID file.
	scratch    string             // Parent of per-build scratch directories.
	engine     engine             // Containerd-backed sandbox runtime.
	listener   net.Listener       // Listener for incoming connections.
	metrics    *http.Server       // Metrics endpoint, nil when disabled.
	startedAt  time.Time          // Timestamp when the server started.
	builds     int                // Total number of build commands served.
	done       chan struct{}      // Channel to signal server shutdown.
	ctx        context.Context    // Parent of every command context.
	cancel     context.CancelFunc // Cancels ctx. Called by Stop.
	handlers   sync.WaitGroup     // In-flight connections.
	stopping   bool               // Set by Stop. No connections are admitted after.
	stopOnce   sync.Once          // Guards Stop against repeated calls.
	mu         sync.Mutex         // Mutex to protect shared state.
}

// Creates a new server instance connected to containerd.
//
// The socket is not opened until [Start] is called.
func New(cfg settings.Settings) (*Server, error) {
	rt, err := runtime.New(cfg.Containerd.Address, cfg.Containerd.Namespace, runtime.Options{
		Snapshotter: cfg.Containerd.Snapshotter,
		Platform:    cfg.Containerd.Platform,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	return newServer(cfg, rt), nil
}

func newServer(cfg settings.Settings, eng engine) *Server {
	socketPath := cfg.Socket
	if socketPath == "" {
		socketPath = paths.Socket()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		ctx:        ctx,
		cancel:     cancel,
		settings:   cfg,
		socketPath: socketPath,
		pidFile:    paths.PIDFile(),
		scratch:    paths.Scratch(),
		engine:     eng,
		done:       make(chan struct{}),
	}
}

// Opens the Unix socket and begins accepting connections.
//
// Sandboxes left behind by a previous daemon are removed first.
func (s *Server) Start() error {
	s.prune()

	listener, err := listen(s.socketPath)
	if err != nil {
		return err
	}

	if err := s.serveMetrics(); err != nil {
		listener.Close()
		return err
	}

	s.listener = listener
	s.startedAt = time.Now()

	if err := writePID(s.pidFile); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("server listening on socket", "path", s.socketPath)

	go s.accept()
	return nil
}

func (s *Server) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
	defer cancel()

	n, err := s.engine.Prune(ctx)
	if err != nil {
		slog.Warn("failed to remove stale sandboxes", "error", err)
		return
	}
	if n > 0 {
		slog.Info("removed stale sandboxes", "count", n)
	}
}

// Creates the Unix socket listener, removes any stale socket from a previous
// run, and applies permissions.
func listen(socketPath string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrServer, err)
	}

	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, socketPath, err)
	}

	if err := setSocketPermissions(socketPath); err != nil {
		listener.Close()
		return nil, err
	}

	return listener, nil
}

// Restricts socket access to owner and group. The daemon does not run as
// root; any user in the lambdad group can also connect.
func setSocketPermissions(socketPath string) error {
	if err := os.Chmod(socketPath, socketMode); err != nil {
		return fmt.Errorf("%w: failed to chmod socket %s: %w", ErrServer, socketPath, err)
	}

	if g, err := user.LookupGroup(socketGroup); err == nil {
		if gid, err := strconv.Atoi(g.Gid); err == nil {
			if err := os.Chown(socketPath, -1, gid); err != nil {
				slog.Warn("failed to chgrp socket", "group", socketGroup, "error", err)
			}
		}
	} else {
		slog.Warn("socket group not found, socket accessible to owner only", "group", socketGroup)
	}

	return nil
}

// Starts the Prometheus endpoint when a metrics address is configured.
func (s *Server) serveMetrics() error {
	addr := s.settings.Metrics.Address
	if addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: failed to listen on %s: %w", ErrServer, addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())

	s.metrics = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("metrics listening", "address", ln.Addr().String())
		if err := s.metrics.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
		}
	}()

	return nil
}

// Shuts down the server and cleans up resources. Safe to call more than
// once.
//
// In-flight commands are cancelled and given [drainTimeout] to remove their
// sandboxes before the containerd connection is closed.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.stopping = true
		s.mu.Unlock()

		if s.listener != nil {
			s.listener.Close()
		}

		s.cancel()
		s.drain()

		if s.metrics != nil {
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := s.metrics.Shutdown(ctx); err != nil {
				slog.Warn("metrics shutdown failed", "error", err)
			}
		}

		if s.engine != nil {
			s.engine.Close()
		}

		os.Remove(s.socketPath)
		os.Remove(s.pidFile)
	})

	return nil
}

// Waits for in-flight connections to finish, up to drainTimeout.
func (s *Server) drain() {
	drained := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(drainTimeout):
		slog.Warn("commands still running at shutdown")
	}
}

// Blocks until the server stops.
func (s *Server) Wait() {
	<-s.done
}

// Returns a channel closed when the server stops.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.handlers.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.handlers.Done()
			s.handle(conn)
		}()
	}
}

// Processes a single connection.
//
// Reads one newline-delimited JSON message, dispatches the command, and
// writes the response. The connection is closed after one exchange.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	line, err := reader.ReadBytes('\n')
	if err != nil {
		slog.Error("read error", "error", err)
		return
	}

	env, payload, err := protocol.Decode(line)
	if err != nil {
		s.fail(conn, err)
		return
	}

	slog.Info("command received", "command", env.Command)

	ctx, cancel := contextWithDisconnect(s.ctx, reader)
	defer cancel()

	s.dispatch(ctx, conn, env.Command, payload)
}

// Routes a command to the appropriate handler.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, cmd protocol.Command, payload json.RawMessage) {
	switch cmd {
	case protocol.CmdBuild:
		s.handleBuild(ctx, conn, payload)
	case protocol.CmdImport:
		s.handleImport(ctx, conn, payload)
	case protocol.CmdStatus:
		s.handleStatus(ctx, conn)
	case protocol.CmdShutdown:
		s.handleShutdown(conn)
	default:
		s.respond(conn, protocol.CmdError, &protocol.ErrorResult{
			Kind:    protocol.KindInvalidRequest,
			Message: fmt.Sprintf("unknown command: %s", cmd),
		})
	}
}

// Writes a JSON envelope response to the connection.
func (s *Server) respond(conn net.Conn, cmd protocol.Command, payload any) {
	data, err := protocol.Encode(cmd, payload)
	if err != nil {
		slog.Error("encode response failed", "error", err)
		return
	}
	data = append(data, '\n')
	conn.Write(data)
}

// Writes an error response classified from err.
func (s *Server) fail(conn net.Conn, err error) {
	s.respond(conn, protocol.CmdError, errorResult(err))
}

// Writes the daemon PID to the PID file so the CLI can detect whether the
// daemon is already running and send it signals.
func writePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), paths.DefaultFileMode)
}

// Returns a derived context that is cancelled when the remote end of the
// connection closes.
//
// Detection works by reading from r in a background goroutine. The read blocks
// until the peer closes the connection, at which point it returns an error and
// the derived context is cancelled. The caller must ensure that no further data
// is expected on r for the lifetime of the returned context. If data arrives
// unexpectedly, it will be discarded and the context will be cancelled
// prematurely. The returned [context.CancelFunc] must always be called to
// release resources, even if the connection closes on its own.
func contextWithDisconnect(parent context.Context, r io.Reader) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		buf := make([]byte, 1)
		r.Read(buf)
		cancel()
	}()

	return ctx, cancel
}
