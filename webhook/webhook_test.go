package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeliver_Signed(t *testing.T) {
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	n := New(srv.URL, "s3cret")
	ev := &Event{Type: RunCompleted, RunID: "r1", Timestamp: 1, Data: RunData{Option: "1", Value: "UCS503"}}
	if err := n.Deliver(context.Background(), ev); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotSig != Sign("s3cret", gotBody) {
		t.Errorf("signature %q does not match body", gotSig)
	}
	var back Event
	if err := json.Unmarshal(gotBody, &back); err != nil || back.RunID != "r1" || back.Type != RunCompleted {
		t.Errorf("body = %s (err %v)", gotBody, err)
	}
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := New(srv.URL, "").Deliver(context.Background(), &Event{Type: RunFailed}); err == nil {
		t.Error("expected an error for a 502 endpoint")
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := New(srv.URL, "")
	n.delays = []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond}

	select {
	case <-n.DeliverAsync(&Event{Type: RunCompleted}):
	case <-time.After(5 * time.Second):
		t.Fatal("delivery never finished")
	}
	if calls.Load() != 3 {
		t.Errorf("attempts = %d, want 3", calls.Load())
	}
}

func TestNilNotifier(t *testing.T) {
	n := New("", "x")
	if n != nil {
		t.Fatal("empty url should disable notifications")
	}
	if err := n.Deliver(context.Background(), &Event{}); err != nil {
		t.Errorf("nil Deliver = %v", err)
	}
	<-n.DeliverAsync(&Event{})
}
