package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/loykin/appconnect/internal/address"
	"github.com/loykin/appconnect/internal/event"
	"github.com/loykin/appconnect/internal/oserr"
	"github.com/loykin/appconnect/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// freshRegistry registers the collectors with a new registry regardless of
// what earlier tests did.
func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := freshRegistry(t)
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncQuery(ResultOK)
	IncLaunch(ResultCantLaunch)
	IncSend(ResultOK, "wait")
	ObserveLaunchDuration(1.25)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"appconnect_transport_queries_total":           false,
		"appconnect_transport_launches_total":          false,
		"appconnect_transport_sends_total":             false,
		"appconnect_transport_launch_duration_seconds": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncLaunch(ResultOK)

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "appconnect_transport_launches_total") {
		t.Fatalf("metrics output missing launches_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := freshRegistry(t)
	before := testutil.ToFloat64(sends.WithLabelValues(ResultOK, "none"))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncQuery(ResultNotRunning)
			IncSend(ResultOK, "none")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
	if got := testutil.ToFloat64(sends.WithLabelValues(ResultOK, "none")) - before; got != 50 {
		t.Fatalf("sends delta = %v, want 50", got)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	before := testutil.ToFloat64(queries.WithLabelValues(ResultOK))
	IncQuery(ResultOK)
	IncLaunch(ResultOK)
	IncSend(ResultOK, "wait")
	ObserveLaunchDuration(1.0)
	if after := testutil.ToFloat64(queries.WithLabelValues(ResultOK)); after != before {
		t.Fatalf("query counter moved before Register: %v -> %v", before, after)
	}
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{shouldError: true})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestResult(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ResultOK},
		{oserr.New("query", oserr.CodeProcNotFound, nil), ResultNotRunning},
		{oserr.New("send", oserr.CodeTimeout, nil), ResultTimeout},
		{oserr.Translate(oserr.CodeLaunchInProgress), ResultCantLaunch},
		{oserr.New("send", oserr.CodeConnectionFailed, nil), ResultError},
		{errors.New("plain"), ResultError},
	}
	for _, c := range cases {
		if got := Result(c.err); got != c.want {
			t.Errorf("Result(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

type fakeTransport struct{ err error }

func (f fakeTransport) QueryProcessByPath(string) (address.ProcessHandle, error) {
	return address.ProcessHandle{}, f.err
}

func (f fakeTransport) Launch(string, event.Event, transport.LaunchFlags) (address.ProcessHandle, error) {
	return address.ProcessHandle{High: 1, Low: 2}, nil
}

func (f fakeTransport) Send(event.Event, address.Descriptor, time.Duration, event.ReplyMode) (event.Reply, error) {
	return event.Reply{}, nil
}

func TestInstrumentCounts(t *testing.T) {
	freshRegistry(t)
	notRunning := queries.WithLabelValues(ResultNotRunning)
	launched := launches.WithLabelValues(ResultOK)
	sent := sends.WithLabelValues(ResultOK, "none")
	q0, l0, s0 := testutil.ToFloat64(notRunning), testutil.ToFloat64(launched), testutil.ToFloat64(sent)

	tr := Instrument(fakeTransport{err: oserr.New("query", oserr.CodeProcNotFound, nil)})
	if _, err := tr.QueryProcessByPath("/Applications/X.app"); !oserr.IsProcNotFound(err) {
		t.Fatalf("query error not passed through: %v", err)
	}
	h, err := tr.Launch("/Applications/X.app", event.Run, transport.LaunchContinue)
	if err != nil || h.Low != 2 {
		t.Fatalf("launch result not passed through: %v %v", h, err)
	}
	if _, err := tr.Send(event.LaunchNotify, address.CurrentProcess, time.Second, event.NoReply); err != nil {
		t.Fatal(err)
	}

	if d := testutil.ToFloat64(notRunning) - q0; d != 1 {
		t.Errorf("queries not_running delta = %v", d)
	}
	if d := testutil.ToFloat64(launched) - l0; d != 1 {
		t.Errorf("launches ok delta = %v", d)
	}
	if d := testutil.ToFloat64(sent) - s0; d != 1 {
		t.Errorf("sends ok/none delta = %v", d)
	}
}

type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
