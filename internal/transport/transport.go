// Package transport provides the default Network collaborator: a
// minimal gRPC service exchanging node IDs on connect, following the
// standard grpc.NewServer / registered-service / Serve/GracefulStop
// server pattern but trimmed to handshake framing only — no mTLS, no
// raft, no leader election or task routing.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cuemby/p2p-agent/internal/log"
)

// handshakeServiceDesc mirrors what protoc-gen-go-grpc would emit for a
// single unary Exchange(StringValue) returns (StringValue) RPC: a peer
// presents its node ID and receives the local one in response.
var handshakeServiceDesc = grpc.ServiceDesc{
	ServiceName: "p2pagent.Handshake",
	HandlerType: (*handshakeServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Exchange", Handler: handshakeExchangeHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/handshake.proto",
}

type handshakeServer interface {
	Exchange(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

func handshakeExchangeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(handshakeServer).Exchange(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/p2pagent.Handshake/Exchange"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(handshakeServer).Exchange(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Network is the default gRPC-based Network collaborator. It answers
// handshake RPCs with the local node ID and tracks how many distinct
// peers have completed one, inbound or outbound.
type Network struct {
	nodeID string

	server   *grpc.Server
	listener net.Listener

	peerCount int32
	peers     sync.Map
}

// New creates a Network collaborator that advertises nodeID in
// handshakes.
func New(nodeID string) *Network {
	return &Network{nodeID: nodeID}
}

// Exchange implements handshakeServer.
func (n *Network) Exchange(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	n.notePeer(in.GetValue())
	return wrapperspb.String(n.nodeID), nil
}

func (n *Network) notePeer(key string) {
	if key == "" {
		return
	}
	if _, loaded := n.peers.LoadOrStore(key, struct{}{}); !loaded {
		atomic.AddInt32(&n.peerCount, 1)
	}
}

// Start binds addr and begins serving handshake RPCs in a background
// goroutine.
func (n *Network) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	n.listener = ln

	n.server = grpc.NewServer()
	n.server.RegisterService(&handshakeServiceDesc, n)

	go func() {
		if err := n.server.Serve(ln); err != nil {
			log.WithComponent("transport").Debug().Err(err).Msg("grpc server stopped serving")
		}
	}()
	return nil
}

// Addr returns the address the server is bound to, or nil if Start has
// not been called.
func (n *Network) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}
	return n.listener.Addr()
}

// Dial performs an outbound handshake against a bootstrap peer address.
func (n *Network) Dial(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	defer conn.Close()

	reply := new(wrapperspb.StringValue)
	if err := conn.Invoke(ctx, "/p2pagent.Handshake/Exchange", wrapperspb.String(n.nodeID), reply); err != nil {
		return fmt.Errorf("transport: handshake with %s: %w", addr, err)
	}

	n.notePeer(reply.GetValue())
	return nil
}

// PeerCount returns the number of peers that have completed a
// handshake.
func (n *Network) PeerCount() int {
	return int(atomic.LoadInt32(&n.peerCount))
}

// GracefulShutdown stops accepting new connections and waits for
// in-flight RPCs to finish, bounded by ctx's deadline. If the deadline
// is exceeded, remaining connections are forcibly closed.
func (n *Network) GracefulShutdown(ctx context.Context) error {
	if n.server == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		n.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		n.server.Stop()
		return fmt.Errorf("transport: graceful shutdown deadline exceeded: %w", ctx.Err())
	}
}
