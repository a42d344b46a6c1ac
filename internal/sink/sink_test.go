package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/alfredjeanlab/fieldship/internal/model"
)

func testEvents(entities ...string) []model.Event {
	var evs []model.Event
	for i, e := range entities {
		evs = append(evs, model.Event{
			Environment: "test",
			EntityName:  e,
			EventType:   model.EventImportEntity,
			OccurredAt:  time.Date(2024, 6, 1, 0, 0, i, 0, time.UTC),
			Data:        []model.DataPair{{Key: "note", Value: []string{"<b>&</b>"}}},
		})
	}
	return evs
}

func TestEncodeJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeJSONL(&buf, testEvents("candidates", "candidates")); err != nil {
		t.Fatalf("EncodeJSONL: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], `"value":["<b>&</b>"]`) {
		t.Errorf("HTML should not be escaped: %s", lines[0])
	}
	var ev model.Event
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.EntityName != "candidates" || ev.OccurredAt.Second() != 1 {
		t.Errorf("decoded %+v", ev)
	}
}

// fakeS3 records PutObject calls.
type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func newTestS3Sink(client putObjectAPI) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: "analytics",
		prefix: "events/",
		now:    func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestS3Sink_Send(t *testing.T) {
	fake := &fakeS3{}
	s := newTestS3Sink(fake)
	if err := s.Send(context.Background(), testEvents("candidates", "candidates", "candidates")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected 1 PutObject, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if *in.Bucket != "analytics" {
		t.Errorf("bucket = %q", *in.Bucket)
	}
	if !strings.HasPrefix(*in.Key, "events/candidates/2024/06/01/") || !strings.HasSuffix(*in.Key, ".jsonl") {
		t.Errorf("key = %q", *in.Key)
	}
	if *in.ContentType != "application/x-ndjson" {
		t.Errorf("content type = %q", *in.ContentType)
	}
	if n := strings.Count(fake.bodies[0], "\n"); n != 3 {
		t.Errorf("body has %d lines, want 3", n)
	}
}

func TestS3Sink_MixedEntities(t *testing.T) {
	fake := &fakeS3{}
	s := newTestS3Sink(fake)
	if err := s.Send(context.Background(), testEvents("candidates", "schools")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.HasPrefix(*fake.inputs[0].Key, "events/mixed/") {
		t.Errorf("key = %q", *fake.inputs[0].Key)
	}
}

func TestS3Sink_Empty(t *testing.T) {
	fake := &fakeS3{}
	if err := newTestS3Sink(fake).Send(context.Background(), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fake.inputs) != 0 {
		t.Fatal("empty batch should not upload")
	}
}

func TestS3Sink_Failures(t *testing.T) {
	for _, tc := range []struct {
		name          string
		err           error
		wantPermanent bool
	}{
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}, true},
		{"no such bucket", &smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{"slow down", &smithy.GenericAPIError{Code: "SlowDown"}, false},
		{"network", errors.New("dial tcp: connection refused"), false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestS3Sink(&fakeS3{err: tc.err})
			err := s.Send(context.Background(), testEvents("candidates"))
			var df *model.DispatchFailure
			if !errors.As(err, &df) {
				t.Fatalf("expected DispatchFailure, got %v", err)
			}
			if df.Permanent != tc.wantPermanent {
				t.Errorf("Permanent = %v, want %v", df.Permanent, tc.wantPermanent)
			}
			if df.Events != 1 {
				t.Errorf("Events = %d", df.Events)
			}
			if !errors.Is(err, tc.err) {
				t.Error("cause should be preserved")
			}
		})
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	if err := s.Send(context.Background(), testEvents("candidates", "schools")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	out := buf.String()
	if strings.Count(out, "log sink: event") != 2 {
		t.Fatalf("expected two log lines, got:\n%s", out)
	}
	if !strings.Contains(out, `"entity":"schools"`) {
		t.Errorf("missing entity attribute:\n%s", out)
	}
}
