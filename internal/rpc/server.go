package rpc

import (
	"context"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/oriys/bur/internal/lang/ast"
	"github.com/oriys/bur/internal/lang/compiler"
	"github.com/oriys/bur/internal/lang/token"
	"github.com/oriys/bur/internal/logging"
	"github.com/oriys/bur/internal/runtime"
)

// Server exposes a Runtime over gRPC using the JSON codec registered
// in codec.go, in place of the protobuf wire format a protoc-generated
// stub would use — grounded on oriys-nova's grpc.Server listen/serve/
// stop lifecycle, without its novapb generated stub.
type Server struct {
	cfg    runtime.Config
	loader runtime.SourceLoader

	server *grpc.Server
}

// NewServer constructs a Server. Each Execute call gets its own
// throwaway Runtime (cfg, loader) so concurrent RPCs never share
// object or string pools.
func NewServer(cfg runtime.Config, loader runtime.SourceLoader) *Server {
	return &Server{cfg: cfg, loader: loader}
}

// Start listens on addr and serves RPCs until Stop is called.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listening on %s: %w", addr, err)
	}
	s.server = grpc.NewServer()
	RegisterRuntimeServer(s.server, s)

	logging.Op().Info("rpc: server listening", "addr", addr, "codec", codecName)
	go func() {
		if err := s.server.Serve(lis); err != nil {
			logging.Op().Error("rpc: serve exited", "error", err)
		}
	}()
	return nil
}

// Stop gracefully drains in-flight RPCs and stops the server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	logging.Op().Info("rpc: server stopping")
	s.server.GracefulStop()
}

// Compile lowers req.Source into bytecode and reports its shape
// without executing it.
func (s *Server) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	scanner := token.New(req.Source)
	prog, err := ast.Parse(scanner)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "parsing %q: %v", req.Path, err)
	}
	module, err := compiler.Compile(prog, req.Path)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "compiling %q: %v", req.Path, err)
	}
	return &CompileResponse{
		Path:          req.Path,
		FunctionCount: len(module.Funcs) + 1, // + the module's init function
		Disassembly:   module.Disassemble(),
	}, nil
}

// Execute compiles and runs req.Source against a fresh, single-use
// Runtime, returning a summary of its export value.
func (s *Server) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	loader := s.loader
	if loader == nil {
		loader = runtime.NoLoader{}
	}
	rt := runtime.New(s.cfg, loader)
	defer rt.Close()

	result, err := rt.Run(req.Path, req.Source)
	if err != nil {
		return nil, status.Errorf(codes.Aborted, "executing %q: %v", req.Path, err)
	}
	return &ExecuteResponse{
		Path:   req.Path,
		Kind:   result.Kind().String(),
		Result: result.String(),
	}, nil
}
