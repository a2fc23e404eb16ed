package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region client-struct

// Client wraps a gRPC connection to a triggerd Pipeline service.
type Client struct {
	conn grpc.ClientConnInterface
	own  *grpc.ClientConn
}

// #endregion client-struct

// #region constructor

// Dial connects to a triggerd gRPC listener.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, own: conn}, nil
}

// NewClientWithConn creates a Client over an existing connection, which the
// caller keeps ownership of.
func NewClientWithConn(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Close shuts down the connection if Dial created it.
func (c *Client) Close() error {
	if c.own == nil {
		return nil
	}
	return c.own.Close()
}

// #endregion constructor

// #region invoke

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := toStruct(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return fmt.Errorf("%s rpc: %w", method, err)
	}
	return fromStruct(out, resp)
}

// #endregion invoke

// #region sessions

// OpenSession starts a session for userID and returns its ID.
func (c *Client) OpenSession(ctx context.Context, userID string) (string, error) {
	var resp OpenSessionResponse
	if err := c.invoke(ctx, "OpenSession", OpenSessionRequest{UserID: userID}, &resp); err != nil {
		return "", err
	}
	return resp.SessionID, nil
}

// CloseSession ends a session.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	return c.invoke(ctx, "CloseSession", CloseSessionRequest{SessionID: sessionID}, &Empty{})
}

// #endregion sessions

// #region pipeline

// Ingest sends one detection through the session's pipeline.
func (c *Client) Ingest(ctx context.Context, sessionID string, d detection.Detection) (IngestResponse, error) {
	var resp IngestResponse
	err := c.invoke(ctx, "Ingest", IngestRequest{SessionID: sessionID, Detection: d}, &resp)
	return resp, err
}

// Feedback reports a viewer reaction.
func (c *Client) Feedback(ctx context.Context, sessionID string, fb threshold.Feedback) (FeedbackResponse, error) {
	var resp FeedbackResponse
	err := c.invoke(ctx, "Feedback", FeedbackRequest{SessionID: sessionID, Feedback: fb}, &resp)
	return resp, err
}

// Seek reports a playback seek and returns the new epoch.
func (c *Client) Seek(ctx context.Context, sessionID string, to float64) (uint64, error) {
	var resp DiscontinuityResponse
	req := DiscontinuityRequest{SessionID: sessionID, Kind: orchestrator.EventSeek, SeekTo: to}
	if err := c.invoke(ctx, "Discontinuity", req, &resp); err != nil {
		return 0, err
	}
	return resp.Epoch, nil
}

// MediaChanged reports a switch to other media and returns the new epoch.
func (c *Client) MediaChanged(ctx context.Context, sessionID, mediaID string) (uint64, error) {
	var resp DiscontinuityResponse
	req := DiscontinuityRequest{SessionID: sessionID, Kind: orchestrator.EventMediaChange, MediaID: mediaID}
	if err := c.invoke(ctx, "Discontinuity", req, &resp); err != nil {
		return 0, err
	}
	return resp.Epoch, nil
}

// #endregion pipeline

// #region thresholds

// ExportThresholds returns every category threshold of userID.
func (c *Client) ExportThresholds(ctx context.Context, userID string) (map[detection.Category]float64, error) {
	var resp ThresholdsResponse
	if err := c.invoke(ctx, "ExportThresholds", ThresholdsRequest{UserID: userID}, &resp); err != nil {
		return nil, err
	}
	return resp.Thresholds, nil
}

// ImportThresholds replaces userID's thresholds from snapshot.
func (c *Client) ImportThresholds(ctx context.Context, userID string, snapshot map[detection.Category]float64) (map[detection.Category]float64, error) {
	var resp ThresholdsResponse
	if err := c.invoke(ctx, "ImportThresholds", ThresholdsRequest{UserID: userID, Thresholds: snapshot}, &resp); err != nil {
		return nil, err
	}
	return resp.Thresholds, nil
}

// #endregion thresholds
