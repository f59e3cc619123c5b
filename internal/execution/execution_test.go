package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"gapsniper-go/internal/signal"
)

func TestLogEmitterLogsBase(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewLogEmitter(zerolog.New(&buf))

	out, err := emitter.Emit(context.Background(), "ADA")
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("log emitter should always accept")
	}
	if !strings.Contains(buf.String(), "ADA") {
		t.Fatalf("log does not contain base: %s", buf.String())
	}
}

func TestBaseAsset(t *testing.T) {
	cases := map[[2]string]string{
		{"ADAUSDT", "USDT"}:   "ADA",
		{"ognusdt", "USDT"}:   "OGN",
		{"USDTUSDT", "USDT"}:  "USDT",
		{"BTCEUR", "USDT"}:    "BTCEUR",
		{"USDT", "USDT"}:      "USDT",
		{" ETHUSDT ", "usdt"}: "ETH",
	}
	for in, want := range cases {
		if got := BaseAsset(in[0], in[1]); got != want {
			t.Fatalf("BaseAsset(%q,%q): expected %s got %s", in[0], in[1], want, got)
		}
	}
}

func TestWebhookEmitterPostsCommand(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte("queued"))
	}))
	defer server.Close()

	emitter := NewWebhookEmitter(server.URL, "", time.Second)
	out, err := emitter.Emit(context.Background(), "ADA")
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if !out.Accepted {
		t.Fatalf("expected acceptance, got %+v", out)
	}
	if got["text"] != "اشتري ADA" {
		t.Fatalf("unexpected payload %+v", got)
	}
	if !strings.Contains(out.Detail, "queued") {
		t.Fatalf("detail should carry the response, got %s", out.Detail)
	}
}

func TestWebhookEmitterNonAcceptance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	emitter := NewWebhookEmitter(server.URL, "buy %s", time.Second)
	out, err := emitter.Emit(context.Background(), "OGN")
	if err != nil {
		t.Fatalf("non-2xx must not be an error: %v", err)
	}
	if out.Accepted {
		t.Fatalf("expected non-acceptance")
	}
	if !strings.Contains(out.Detail, "503") {
		t.Fatalf("detail should carry status, got %s", out.Detail)
	}
}

func TestWebhookEmitterTransportFault(t *testing.T) {
	emitter := NewWebhookEmitter("http://127.0.0.1:1", "buy %s", 200*time.Millisecond)
	if _, err := emitter.Emit(context.Background(), "OGN"); err == nil {
		t.Fatalf("expected transport error")
	}
}

func TestRenderText(t *testing.T) {
	if got := renderText("buy %s now", "ADA"); got != "buy ADA now" {
		t.Fatalf("unexpected %s", got)
	}
	if got := renderText("buy", "ADA"); got != "buy ADA" {
		t.Fatalf("unexpected %s", got)
	}
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaEmitterWritesKeyedMessage(t *testing.T) {
	w := &fakeWriter{}
	emitter := NewKafkaEmitterWithWriter(w, "signals", "buy %s")
	out, err := emitter.Emit(context.Background(), "ADA")
	if err != nil {
		t.Fatalf("Emit returned error: %v", err)
	}
	if !out.Accepted || out.Detail != "topic=signals" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "ADA" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var payload kafkaPayload
	if err := json.Unmarshal(w.msgs[0].Value, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Text != "buy ADA" || payload.Base != "ADA" {
		t.Fatalf("unexpected payload %+v", payload)
	}

	w.err = errors.New("broker down")
	if _, err := emitter.Emit(context.Background(), "ADA"); err == nil {
		t.Fatalf("expected write error to surface")
	}
}

type blockingEmitter struct {
	release chan struct{}
	calls   chan string
}

func (b *blockingEmitter) Name() string { return "blocking" }

func (b *blockingEmitter) Emit(ctx context.Context, base string) (signal.Outcome, error) {
	b.calls <- base
	select {
	case <-b.release:
		return signal.Outcome{Accepted: true}, nil
	case <-ctx.Done():
		return signal.Outcome{}, ctx.Err()
	}
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	em := &blockingEmitter{release: make(chan struct{}), calls: make(chan string, 4)}
	d := NewDispatcher(em, zerolog.Nop(), time.Second, 1)

	if !d.Dispatch(context.Background(), signal.Signal{Symbol: "AUSDT", Base: "A"}) {
		t.Fatalf("first dispatch should be accepted")
	}
	<-em.calls
	if d.Dispatch(context.Background(), signal.Signal{Symbol: "BUSDT", Base: "B"}) {
		t.Fatalf("second dispatch should be dropped while the slot is busy")
	}
	close(em.release)
	d.Wait()

	if !d.Dispatch(context.Background(), signal.Signal{Symbol: "CUSDT", Base: "C"}) {
		t.Fatalf("slot should be free again")
	}
	<-em.calls
	d.Wait()
}

func TestDispatcherTimesOutSlowEmitter(t *testing.T) {
	em := &blockingEmitter{release: make(chan struct{}), calls: make(chan string, 1)}
	d := NewDispatcher(em, zerolog.Nop(), 50*time.Millisecond, 2)

	outcomes := make(chan error, 1)
	d.OnOutcome = func(_ signal.Signal, _ signal.Outcome, err error) { outcomes <- err }

	start := time.Now()
	if !d.Dispatch(context.Background(), signal.Signal{Symbol: "AUSDT", Base: "A"}) {
		t.Fatalf("dispatch should start")
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Fatalf("Dispatch must not block on the emitter")
	}
	select {
	case err := <-outcomes:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("delivery never finished")
	}
	d.Wait()
}
