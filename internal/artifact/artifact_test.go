package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doclatex/doclatex/internal/api"
	"github.com/doclatex/doclatex/internal/config"
	"github.com/doclatex/doclatex/internal/events"
	"github.com/doclatex/doclatex/internal/logging"
)

type fakeSource struct {
	calls    int32
	fileName string
	body     string
	err      error
}

func (f *fakeSource) FetchArchive(ctx context.Context, jobID string) (*api.Archive, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return &api.Archive{
		Body:     io.NopCloser(strings.NewReader(f.body)),
		FileName: f.fileName,
		Size:     int64(len(f.body)),
	}, nil
}

type recordingTracker struct {
	started  string
	location string
	err      error
	done     bool
}

func (r *recordingTracker) Start(name string, size int64) Tracker {
	r.started = name
	return r
}
func (r *recordingTracker) ProxyReader(rd io.Reader) io.Reader { return rd }
func (r *recordingTracker) Complete(location string, err error) {
	r.location, r.err, r.done = location, err, true
}

func TestFetchArchive_InvalidJobID(t *testing.T) {
	src := &fakeSource{body: "PK"}
	r := NewRetriever(src, NewLocalSink(t.TempDir(), nil), nil, nil, logging.NewNopLogger())

	for _, id := range []string{"", "../etc", "a/b", "job id", strings.Repeat("x", 129)} {
		if _, err := r.FetchArchive(context.Background(), id, ""); !errors.Is(err, ErrInvalidJobID) {
			t.Errorf("FetchArchive(%q) = %v, want ErrInvalidJobID", id, err)
		}
	}
	if atomic.LoadInt32(&src.calls) != 0 {
		t.Errorf("invalid ids must not reach the service, got %d calls", src.calls)
	}
}

func TestFetchArchive_NameResolution(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		fallback   string
		wantSuffix string
	}{
		{"header wins", "server.zip", "fallback.zip", "server.zip"},
		{"fallback used", "", "fallback.zip", "fallback.zip"},
		{"job id default", "", "", "job-42.zip"},
		{"unsafe header skipped", "..", "fallback.zip", "fallback.zip"},
		{"unsafe fallback skipped", "", "a/b.zip", "job-42.zip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			src := &fakeSource{fileName: tt.header, body: "PK-archive"}
			r := NewRetriever(src, NewLocalSink(dir, nil), nil, nil, logging.NewNopLogger())

			d, err := r.FetchArchive(context.Background(), "job-42", tt.fallback)
			if err != nil {
				t.Fatalf("FetchArchive() error = %v", err)
			}
			if d.FileName != tt.wantSuffix {
				t.Errorf("FileName = %q, want %q", d.FileName, tt.wantSuffix)
			}
			if d.Location != filepath.Join(dir, tt.wantSuffix) {
				t.Errorf("Location = %q", d.Location)
			}
			data, err := os.ReadFile(d.Location)
			if err != nil || string(data) != "PK-archive" {
				t.Errorf("unexpected file content %q, %v", data, err)
			}
		})
	}
}

func TestFetchArchive_TwiceProducesTwoFiles(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{fileName: "paper.zip", body: "PK"}
	r := NewRetriever(src, NewLocalSink(dir, nil), nil, nil, logging.NewNopLogger())

	first, err := r.FetchArchive(context.Background(), "job1", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.FetchArchive(context.Background(), "job1", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Location == second.Location {
		t.Fatalf("both fetches wrote %s", first.Location)
	}
	if filepath.Base(second.Location) != "paper (1).zip" {
		t.Errorf("second file = %s, want paper (1).zip", filepath.Base(second.Location))
	}
	if atomic.LoadInt32(&src.calls) != 2 {
		t.Errorf("expected two requests, got %d", src.calls)
	}
}

func TestFetchArchive_ServiceError(t *testing.T) {
	src := &fakeSource{err: &api.ServiceError{Status: 404, Message: "Không tìm thấy file"}}
	r := NewRetriever(src, NewLocalSink(t.TempDir(), nil), nil, nil, logging.NewNopLogger())

	_, err := r.FetchArchive(context.Background(), "job1", "")
	if !api.IsServiceError(err) {
		t.Errorf("expected wrapped service error, got %v", err)
	}
	if atomic.LoadInt32(&src.calls) != 1 {
		t.Errorf("retriever must not retry, got %d calls", src.calls)
	}
}

func TestFetchArchive_EventAndProgress(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	downloads := bus.Subscribe(events.EventArtifactDownloaded)

	tracker := &recordingTracker{}
	src := &fakeSource{fileName: "out.zip", body: "12345"}
	r := NewRetriever(src, NewLocalSink(t.TempDir(), nil), bus, tracker, logging.NewNopLogger())

	d, err := r.FetchArchive(context.Background(), "job7", "")
	if err != nil {
		t.Fatal(err)
	}
	if tracker.started != "out.zip" || !tracker.done || tracker.err != nil || tracker.location != d.Location {
		t.Errorf("unexpected tracker state %+v", tracker)
	}

	select {
	case ev := <-downloads:
		e := ev.(*events.ArtifactDownloadedEvent)
		if e.JobID != "job7" || e.Bytes != 5 || e.Location != d.Location {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for download event")
	}
}

func TestLocalSink_TruncatedBody(t *testing.T) {
	dir := t.TempDir()
	sink := NewLocalSink(dir, nil)
	_, _, err := sink.Deliver(context.Background(), DeliverRequest{
		JobID: "j", FileName: "a.zip", Body: strings.NewReader("abc"), Size: 10,
	})
	if err == nil {
		t.Fatal("expected truncation error")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("partial file left behind: %v", entries)
	}
}

func TestLocalSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewLocalSink(t.TempDir(), nil).Deliver(ctx, DeliverRequest{
		JobID: "j", FileName: "a.zip", Body: strings.NewReader("abc"), Size: -1,
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, job, name, want string
	}{
		{"", "j1", "a.zip", "j1/a.zip"},
		{"exports", "j1", "a.zip", "exports/j1/a.zip"},
		{"/exports/", "j1", "a.zip", "exports/j1/a.zip"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.job, tt.name); got != tt.want {
			t.Errorf("objectKey(%q,%q,%q) = %q, want %q", tt.prefix, tt.job, tt.name, got, tt.want)
		}
	}
}

func TestStripQuery(t *testing.T) {
	got := stripQuery("https://acct.blob.core.windows.net/?sv=2024&sig=secret")
	if got != "https://acct.blob.core.windows.net" {
		t.Errorf("stripQuery() = %q", got)
	}
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(context.Background(), config.DeliveryConfig{Sink: "local"}, t.TempDir(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(*LocalSink); !ok {
		t.Errorf("expected *LocalSink, got %T", sink)
	}

	if _, err := NewSink(context.Background(), config.DeliveryConfig{Sink: "ftp"}, "", nil, nil); !errors.Is(err, config.ErrInvalidDeliverySink) {
		t.Errorf("expected ErrInvalidDeliverySink, got %v", err)
	}
	if _, err := NewSink(context.Background(), config.DeliveryConfig{Sink: "s3"}, "", nil, nil); !errors.Is(err, config.ErrMissingBucket) {
		t.Errorf("expected ErrMissingBucket, got %v", err)
	}
	if _, err := NewSink(context.Background(), config.DeliveryConfig{Sink: "azure"}, "", nil, nil); !errors.Is(err, config.ErrMissingAzureContainer) {
		t.Errorf("expected ErrMissingAzureContainer, got %v", err)
	}
}

func TestNewAzureSink(t *testing.T) {
	sink, err := NewAzureSink(config.DeliveryConfig{
		AzureAccountURL: "https://acct.blob.core.windows.net/?sv=x&sig=y",
		AzureContainer:  "archives",
		Prefix:          "doclatex",
	}, nil)
	if err != nil {
		t.Fatalf("NewAzureSink() error = %v", err)
	}
	if sink.baseURL != "https://acct.blob.core.windows.net" || sink.container != "archives" {
		t.Errorf("unexpected sink %+v", sink)
	}
}
