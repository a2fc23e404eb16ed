package mongostore

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

func TestThresholdDocBSON(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := threshold.CategoryThreshold{
		Category: detection.Blood, Current: 71.5, Default: 65, LearningCount: 2,
		RecentSteps: []float64{0.5, 1.5},
	}

	raw, err := bson.Marshal(toThresholdDoc("u1", rec, now))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded thresholdDoc
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.UserID != "u1" || decoded.Category != "blood" {
		t.Errorf("unexpected keys %+v", decoded)
	}

	got, ok := fromThresholdDoc(decoded)
	if !ok {
		t.Fatal("expected valid category")
	}
	if got.Current != 71.5 || got.LearningCount != 2 || len(got.RecentSteps) != 2 {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestFromThresholdDocSkipsUnknownCategory(t *testing.T) {
	if _, ok := fromThresholdDoc(thresholdDoc{Category: "kittens"}); ok {
		t.Error("expected unknown category to be skipped")
	}
}

func TestAdjustmentDocDefaultsTime(t *testing.T) {
	doc := toAdjustmentDoc("u1", threshold.Adjustment{
		ID: "a1", Category: detection.Gore, Old: 65, New: 66.5, Feedback: threshold.FeedbackDismissed,
	})
	if doc.CreatedAt.IsZero() {
		t.Error("expected created time to be filled")
	}
	back := fromAdjustmentDoc(doc)
	if back.ID != "a1" || back.Feedback != threshold.FeedbackDismissed || back.New != 66.5 {
		t.Errorf("unexpected adjustment %+v", back)
	}
}

func TestThresholdFilter(t *testing.T) {
	f := thresholdFilter("u1", detection.Spiders)
	if len(f) != 2 || f[0].Key != "userId" || f[1].Value != "spiders" {
		t.Errorf("unexpected filter %v", f)
	}
}

func TestConnectRejectsEmptyURI(t *testing.T) {
	if _, err := Connect(context.Background(), "", "triggerguard"); err == nil {
		t.Error("expected error for empty uri")
	}
}
