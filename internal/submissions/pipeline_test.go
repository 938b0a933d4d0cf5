package submissions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"picture-backend/internal/delivery"
	"picture-backend/internal/queue"
)

type fakeQueue struct {
	mu   sync.Mutex
	msgs []queue.Message
	err  error
}

func (f *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	return f.err
}

func newPipeline(t *testing.T, repo Repo, endpoint string, timeout time.Duration) *Pipeline {
	t.Helper()
	return &Pipeline{
		Intake:   NewIntake(repo),
		Delivery: delivery.NewService(delivery.Config{EndpointURL: endpoint, Timeout: timeout}, repo),
	}
}

func TestSubmitEndToEndDelivered(t *testing.T) {
	for name, factory := range repoFactories() {
		t.Run(name, func(t *testing.T) {
			quietLogs(t)
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			repo := factory(t)
			resp := newPipeline(t, repo, srv.URL, time.Second).Submit(context.Background(), validCandidate())

			if !resp.Success || resp.Message != MessageAccepted || resp.SubmissionID <= 0 {
				t.Fatalf("unexpected response: %+v", resp)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one outbound call, got %d", calls.Load())
			}
			stored, err := repo.GetByID(context.Background(), resp.SubmissionID)
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if !stored.ExternalRequestSent {
				t.Fatalf("expected external_request_sent=true after 200")
			}
		})
	}
}

func TestSubmitEndToEndEndpointFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		reason  delivery.Reason
	}{
		{
			name:    "bad request",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			timeout: time.Second,
			reason:  delivery.ReasonHTTPStatus,
		},
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			timeout: time.Second,
			reason:  delivery.ReasonHTTPStatus,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 50 * time.Millisecond,
			reason:  delivery.ReasonTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quietLogs(t)
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			repo := NewMemoryRepo()
			result := newPipeline(t, repo, srv.URL, tt.timeout).SubmitDetailed(context.Background(), validCandidate())

			if !result.Response.Success || result.Response.Message != MessageAccepted || result.Response.SubmissionID <= 0 {
				t.Fatalf("delivery failure must not fail the submission: %+v", result.Response)
			}
			if result.Err != nil {
				t.Fatalf("unexpected error: %v", result.Err)
			}
			if result.Outcome.OK() || result.Outcome.Reason != tt.reason {
				t.Fatalf("unexpected outcome: %+v", result.Outcome)
			}
			stored, _ := repo.GetByID(context.Background(), result.Response.SubmissionID)
			if stored.ExternalRequestSent {
				t.Fatalf("flag must stay false")
			}
		})
	}
}

func TestSubmitUnreachableEndpoint(t *testing.T) {
	quietLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	repo := NewMemoryRepo()
	resp := newPipeline(t, repo, url, time.Second).Submit(context.Background(), validCandidate())
	if !resp.Success || resp.SubmissionID <= 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	stored, _ := repo.GetByID(context.Background(), resp.SubmissionID)
	if stored.ExternalRequestSent {
		t.Fatalf("flag must stay false")
	}
}

func TestSubmitWithoutEndpoint(t *testing.T) {
	quietLogs(t)
	repo := NewMemoryRepo()
	result := newPipeline(t, repo, "", 0).SubmitDetailed(context.Background(), validCandidate())
	if !result.Response.Success || result.Outcome.Reason != delivery.ReasonNotConfigured {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestSubmitValidationFailure(t *testing.T) {
	quietLogs(t)
	tests := map[string]func(*Candidate){
		"missing email":  func(c *Candidate) { c.Email = "" },
		"non-image mime": func(c *Candidate) { c.PictureMimeType = "text/plain" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
			}))
			defer srv.Close()

			repo := NewMemoryRepo()
			c := validCandidate()
			mutate(&c)
			resp := newPipeline(t, repo, srv.URL, time.Second).Submit(context.Background(), c)

			want := SubmissionResponse{Success: false, Message: MessageFailed, SubmissionID: 0}
			if resp != want {
				t.Fatalf("got %+v, want %+v", resp, want)
			}
			if calls.Load() != 0 {
				t.Fatalf("no delivery may be attempted")
			}
			rows, _ := repo.List(context.Background())
			if len(rows) != 0 {
				t.Fatalf("no row may be written")
			}
		})
	}
}

func TestSubmitStorageFailure(t *testing.T) {
	quietLogs(t)
	p := &Pipeline{Intake: NewIntake(failingRepo{err: errors.New("db down")})}
	result := p.SubmitDetailed(context.Background(), validCandidate())
	if result.Response.Success || result.Response.SubmissionID != 0 || result.Response.Message != MessageFailed {
		t.Fatalf("unexpected response: %+v", result.Response)
	}
	if !errors.Is(result.Err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", result.Err)
	}
}

func TestSubmitEnqueuesRetriableFailures(t *testing.T) {
	quietLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	q := &fakeQueue{}
	p := newPipeline(t, NewMemoryRepo(), srv.URL, time.Second)
	p.Queue = q

	resp := p.Submit(context.Background(), validCandidate())
	if len(q.msgs) != 1 || q.msgs[0].SubmissionID != resp.SubmissionID {
		t.Fatalf("expected one redelivery message for %d, got %+v", resp.SubmissionID, q.msgs)
	}
	if q.msgs[0].Reason != string(delivery.ReasonHTTPStatus) {
		t.Fatalf("unexpected reason %q", q.msgs[0].Reason)
	}
}

func TestSubmitDoesNotEnqueuePermanentFailures(t *testing.T) {
	quietLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	q := &fakeQueue{}
	p := newPipeline(t, NewMemoryRepo(), srv.URL, time.Second)
	p.Queue = q
	p.Submit(context.Background(), validCandidate())

	if len(q.msgs) != 0 {
		t.Fatalf("4xx answers must not be enqueued, got %+v", q.msgs)
	}
}

func TestSubmitEnqueueFailureStillSucceeds(t *testing.T) {
	quietLogs(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newPipeline(t, NewMemoryRepo(), srv.URL, time.Second)
	p.Queue = &fakeQueue{err: errors.New("queue down")}
	if resp := p.Submit(context.Background(), validCandidate()); !resp.Success {
		t.Fatalf("enqueue failure must not fail the submission: %+v", resp)
	}
}

func TestSubmitIgnoresCallerCancellation(t *testing.T) {
	quietLogs(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := NewMemoryRepo()
	resp := newPipeline(t, repo, "", 0).Submit(ctx, validCandidate())
	if !resp.Success {
		t.Fatalf("expected the submission to be stored, got %+v", resp)
	}
}

func TestSubmitConcurrentIDsAreDistinct(t *testing.T) {
	quietLogs(t)
	repo := NewMemoryRepo()
	p := newPipeline(t, repo, "", 0)

	const n = 20
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- p.Submit(context.Background(), validCandidate()).SubmissionID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		if id <= 0 || seen[id] {
			t.Fatalf("duplicate or invalid id %d", id)
		}
		seen[id] = true
	}
}
