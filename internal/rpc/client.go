package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a thin wrapper over a grpc.ClientConn configured with the
// JSON codec, for hosts that want to drive a remote Server instead of
// an in-process Runtime.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a Server at addr.
func Dial(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpc: dialing %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// Compile invokes the remote Server's Compile method.
func (c *Client) Compile(ctx context.Context, req *CompileRequest) (*CompileResponse, error) {
	resp := new(CompileResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/Compile", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Execute invokes the remote Server's Execute method.
func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	resp := new(ExecuteResponse)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/Execute", req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}
