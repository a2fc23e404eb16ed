// Package rpc exposes the pipeline to detector processes over gRPC. Messages
// travel as google.protobuf.Struct values whose fields mirror the JSON form
// of the request and response types below.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

// #region messages

type OpenSessionRequest struct {
	UserID string `json:"user_id"`
}

type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
	Epoch     uint64 `json:"epoch"`
}

type CloseSessionRequest struct {
	SessionID string `json:"session_id"`
}

type IngestRequest struct {
	SessionID string              `json:"session_id"`
	Detection detection.Detection `json:"detection"`
}

// IngestResponse reports what the pipeline did with one detection.
// Warning is set only for emit and merge.
type IngestResponse struct {
	Epoch      uint64            `json:"epoch"`
	Action     decision.Action   `json:"action"`
	Reason     decision.Reason   `json:"reason,omitempty"`
	Confidence float64           `json:"confidence"`
	Threshold  float64           `json:"threshold"`
	Warning    *decision.Warning `json:"warning,omitempty"`
}

type FeedbackRequest struct {
	SessionID string             `json:"session_id"`
	Feedback  threshold.Feedback `json:"feedback"`
}

type FeedbackResponse struct {
	Category  detection.Category `json:"category"`
	Old       float64            `json:"old"`
	New       float64            `json:"new"`
	Reasoning string             `json:"reasoning"`
	Converged bool               `json:"converged"`
}

// DiscontinuityRequest reports a seek or a media change. Kind is either
// orchestrator.EventSeek or orchestrator.EventMediaChange.
type DiscontinuityRequest struct {
	SessionID string                 `json:"session_id"`
	Kind      orchestrator.EventKind `json:"kind"`
	SeekTo    float64                `json:"seek_to,omitempty"`
	MediaID   string                 `json:"media_id,omitempty"`
}

type DiscontinuityResponse struct {
	Epoch uint64 `json:"epoch"`
}

type ThresholdsRequest struct {
	UserID     string                         `json:"user_id"`
	Thresholds map[detection.Category]float64 `json:"thresholds,omitempty"`
}

type ThresholdsResponse struct {
	UserID     string                         `json:"user_id"`
	Thresholds map[detection.Category]float64 `json:"thresholds"`
}

type Empty struct{}

// #endregion messages

// #region struct-codec

// toStruct encodes v through its JSON form.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	return s, nil
}

// fromStruct decodes s into v through its JSON form. A nil s leaves v
// unchanged.
func fromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

// #endregion struct-codec
