// Package stream carries presence and message pushes over a gRPC
// server-streaming call, for clients that prefer gRPC to websockets.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"google.golang.org/grpc"

	"quickchat/internal/chat/presence"
)

const (
	serviceName      = "quickchat.v1.Presence"
	subscribeMethod  = "Subscribe"
	SubscribeFullRPC = "/" + serviceName + "/" + subscribeMethod
)

// SubscribeRequest is empty; identity comes from the authorization metadata.
type SubscribeRequest struct{}

// StreamEvent is the client-side view of presence.Event.
type StreamEvent struct {
	Type presence.EventType `json:"type"`
	Data json.RawMessage    `json:"data"`
}

type PresenceServer interface {
	Subscribe(req *SubscribeRequest, stream grpc.ServerStream) error
}

// PresenceServiceDesc is written by hand in place of protoc-gen-go-grpc
// output; messages travel through the JSON codec in codec.go, so there are no
// generated protobuf types.
var PresenceServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PresenceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    subscribeMethod,
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "quickchat/v1/presence",
}

func RegisterPresenceServer(s grpc.ServiceRegistrar, srv PresenceServer) {
	s.RegisterService(&PresenceServiceDesc, srv)
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(PresenceServer).Subscribe(req, stream)
}

// PresenceClient opens Subscribe streams using the JSON codec.
type PresenceClient struct {
	cc grpc.ClientConnInterface
}

func NewPresenceClient(cc grpc.ClientConnInterface) *PresenceClient {
	return &PresenceClient{cc: cc}
}

type Subscription struct {
	stream grpc.ClientStream
}

func (c *PresenceClient) Subscribe(ctx context.Context, opts ...grpc.CallOption) (*Subscription, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	cs, err := c.cc.NewStream(ctx, &PresenceServiceDesc.Streams[0], SubscribeFullRPC, opts...)
	if err != nil {
		return nil, err
	}
	// io.EOF means the server already ended the call; Recv reports its status
	if err := cs.SendMsg(&SubscribeRequest{}); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return &Subscription{stream: cs}, nil
}

// Recv blocks for the next event. io.EOF means the server ended the stream.
func (s *Subscription) Recv() (*StreamEvent, error) {
	evt := new(StreamEvent)
	if err := s.stream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}
