package driver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedtracer/breaky/internal/browser"
	"github.com/speedtracer/breaky/internal/config"
	"github.com/speedtracer/breaky/internal/resultserver"
)

var errScriptDone = errors.New("fake server script exhausted")

type step struct {
	outcome  resultserver.RequestOutcome
	requests int
	verdict  *resultserver.Verdict
}

func handled(requests int) step { return step{outcome: resultserver.OutcomeHandled, requests: requests} }
func timedOut() step           { return step{outcome: resultserver.OutcomeTimedOut} }
func posted(status resultserver.Status, detail string) step {
	return step{outcome: resultserver.OutcomeHandled, requests: 1, verdict: &resultserver.Verdict{Status: status, Detail: detail}}
}

type fakeServer struct {
	steps     []step
	calls     int
	count     int
	verdict   resultserver.Verdict
	exhausted error
}

func (f *fakeServer) ServeOneRequest(ctx context.Context, timeout time.Duration) (resultserver.RequestOutcome, error) {
	if ctx.Err() != nil {
		return resultserver.OutcomeNone, context.Cause(ctx)
	}
	if f.calls >= len(f.steps) {
		if f.exhausted != nil {
			return resultserver.OutcomeNone, f.exhausted
		}
		return resultserver.OutcomeNone, errScriptDone
	}
	s := f.steps[f.calls]
	f.calls++
	f.count += s.requests
	if s.verdict != nil && !f.verdict.Decided() {
		f.verdict = *s.verdict
	}
	return s.outcome, nil
}

func (f *fakeServer) Verdict() resultserver.Verdict { return f.verdict }
func (f *fakeServer) Decided() bool                 { return f.verdict.Decided() }
func (f *fakeServer) Port() int                     { return 9033 }
func (f *fakeServer) TakeRequestCount() int {
	n := f.count
	f.count = 0
	return n
}

type fakeLauncher struct {
	mu       sync.Mutex
	starts   []string
	stops    int
	startErr error
	onStart  func(n int, url string)
}

func (l *fakeLauncher) Start(url string) error {
	l.mu.Lock()
	l.starts = append(l.starts, url)
	n := len(l.starts)
	l.mu.Unlock()
	if l.startErr != nil {
		return l.startErr
	}
	if l.onStart != nil {
		l.onStart(n, url)
	}
	return nil
}

func (l *fakeLauncher) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stops++
}

func testConfig() *config.DriverConfig {
	cfg := config.DefaultConfig()
	cfg.Server.Hostname = "testhost"
	cfg.Server.RequestTimeout = 50 * time.Millisecond
	return cfg
}

func TestValidVerdictStopsPolling(t *testing.T) {
	srv := &fakeServer{steps: []step{
		handled(1),
		posted(resultserver.StatusValid, ""),
		handled(1),
	}}
	l := &fakeLauncher{}
	d := New(testConfig(), srv, l)

	v, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, resultserver.StatusValid, v.Status)
	assert.Equal(t, 0, ExitCode(v, err))
	assert.Equal(t, 2, srv.calls)
	assert.Equal(t, []string{"http://testhost:9033/breaky.html"}, l.starts)
	assert.Equal(t, 1, l.stops)
}

func TestInvalidVerdictExitsWithFailure(t *testing.T) {
	srv := &fakeServer{steps: []step{posted(resultserver.StatusInvalid, "assertion failed at line 10")}}
	l := &fakeLauncher{}

	v, err := New(testConfig(), srv, l).Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "assertion failed at line 10", v.Detail)
	assert.Equal(t, 1, ExitCode(v, err))
	assert.Equal(t, 1, l.stops)
}

func TestHangRestartsBrowserWithSameURL(t *testing.T) {
	srv := &fakeServer{steps: []step{
		timedOut(),
		handled(2),
		timedOut(),
		posted(resultserver.StatusValid, ""),
	}}
	l := &fakeLauncher{}
	d := New(testConfig(), srv, l)

	v, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(v, err))
	assert.Equal(t, 1, d.Restarts())
	require.Len(t, l.starts, 2)
	assert.Equal(t, l.starts[0], l.starts[1])
	// One stop for the restart, one on the way out.
	assert.Equal(t, 2, l.stops)
}

func TestTimeoutWithEarlierRequestsIsNotAHang(t *testing.T) {
	// Requests handled since the last check keep the browser alive.
	srv := &fakeServer{steps: []step{
		handled(1),
		{outcome: resultserver.OutcomeTimedOut, requests: 3},
		posted(resultserver.StatusValid, ""),
	}}
	l := &fakeLauncher{}
	d := New(testConfig(), srv, l)

	_, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Zero(t, d.Restarts())
	assert.Len(t, l.starts, 1)
}

func TestRestartResetsRequestCount(t *testing.T) {
	srv := &fakeServer{steps: []step{timedOut(), timedOut(), posted(resultserver.StatusValid, "")}}
	l := &fakeLauncher{}
	l.onStart = func(n int, url string) {
		// Requests racing the restart must not count for the next window.
		if n > 1 {
			srv.count += 5
		}
	}
	d := New(testConfig(), srv, l)

	_, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, d.Restarts())
}

func TestUnboundedRestartsByDefault(t *testing.T) {
	steps := make([]step, 0, 26)
	for i := 0; i < 25; i++ {
		steps = append(steps, timedOut())
	}
	steps = append(steps, posted(resultserver.StatusValid, ""))
	srv := &fakeServer{steps: steps}
	l := &fakeLauncher{}
	d := New(testConfig(), srv, l)

	v, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, resultserver.StatusValid, v.Status)
	assert.Equal(t, 25, d.Restarts())
	assert.Len(t, l.starts, 26)
}

func TestMaxRestarts(t *testing.T) {
	srv := &fakeServer{steps: []step{timedOut(), timedOut(), timedOut(), timedOut()}}
	l := &fakeLauncher{}
	cfg := testConfig()
	cfg.Restart.MaxRestarts = 2
	d := New(cfg, srv, l)

	v, err := d.Run(context.Background())

	assert.ErrorIs(t, err, ErrTooManyRestarts)
	assert.Equal(t, 1, ExitCode(v, err))
	assert.Len(t, l.starts, 3)
	assert.Equal(t, 3, l.stops)
}

func TestRestartInterval(t *testing.T) {
	srv := &fakeServer{steps: []step{timedOut(), timedOut(), posted(resultserver.StatusValid, "")}}
	l := &fakeLauncher{}
	cfg := testConfig()
	cfg.Restart.MinInterval = 150 * time.Millisecond
	d := New(cfg, srv, l)

	start := time.Now()
	_, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, d.Restarts())
	// The first restart uses the burst; the second waits out the interval.
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestManualModeKeepsPollingAfterVerdict(t *testing.T) {
	srv := &fakeServer{
		steps: []step{
			timedOut(),
			posted(resultserver.StatusValid, ""),
			handled(1),
			timedOut(),
		},
		exhausted: ErrInterrupted,
	}
	l := &fakeLauncher{}
	cfg := testConfig()
	cfg.ManualMode = true

	v, err := New(cfg, srv, l).Run(context.Background())

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 4, srv.calls)
	assert.Empty(t, l.starts)
	assert.Zero(t, l.stops)
	assert.Equal(t, 0, ExitCode(v, err))
}

func TestInterruptWithoutVerdictFails(t *testing.T) {
	srv := &fakeServer{}
	l := &fakeLauncher{}
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(ErrInterrupted)

	v, err := New(testConfig(), srv, l).Run(ctx)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 1, ExitCode(v, err))
	assert.Equal(t, 1, l.stops)
}

func TestSpawnErrorIsFatal(t *testing.T) {
	srv := &fakeServer{steps: []step{timedOut(), timedOut()}}
	ctx, cancel := context.WithCancelCause(context.Background())
	l := &fakeLauncher{onStart: func(int, string) {
		cancel(&browser.SpawnError{Path: "/opt/google/chrome/chrome", Err: os.ErrNotExist})
	}}

	v, err := New(testConfig(), srv, l).Run(ctx)

	var spawnErr *browser.SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, 1, ExitCode(v, err))
	assert.Equal(t, 1, l.stops)
}

func TestStartErrorIsFatal(t *testing.T) {
	srv := &fakeServer{}
	l := &fakeLauncher{startErr: errors.New("no temp dir")}

	v, err := New(testConfig(), srv, l).Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(v, err))
	assert.Zero(t, srv.calls)
}

func TestExitCode(t *testing.T) {
	valid := resultserver.Verdict{Status: resultserver.StatusValid}
	invalid := resultserver.Verdict{Status: resultserver.StatusInvalid}

	assert.Equal(t, 0, ExitCode(valid, nil))
	assert.Equal(t, 1, ExitCode(invalid, nil))
	assert.Equal(t, 1, ExitCode(resultserver.Verdict{}, nil))
	assert.Equal(t, 0, ExitCode(valid, ErrInterrupted))
	assert.Equal(t, 1, ExitCode(valid, errors.New("boom")))
	assert.Equal(t, 1, ExitCode(valid, &resultserver.BindError{Addr: "localhost:9033", Err: errors.New("in use")}))
}

// fakeBrowser stands in for Chrome: it loads the page and posts a result.
func fakeBrowser(t *testing.T, base, resultPath, body string) {
	t.Helper()
	go func() {
		resp, err := http.Get(base + "/breaky.html")
		if err != nil {
			t.Errorf("GET page: %v", err)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		resp, err = http.Post(base+resultPath, "text/plain", strings.NewReader(body))
		if err != nil {
			t.Errorf("POST result: %v", err)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
}

func startServer(t *testing.T) (*resultserver.Server, *config.DriverConfig) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "breaky.html"), []byte("<html></html>"), 0o644))
	cfg := config.DefaultConfig()
	cfg.Server.BindAddress = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.DocRoot = root
	cfg.Server.RequestTimeout = 300 * time.Millisecond

	srv, err := resultserver.Start(cfg.Server)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })
	return srv, cfg
}

func TestEndToEndInvalid(t *testing.T) {
	srv, cfg := startServer(t)
	base := "http://" + srv.Addr().String()
	l := &fakeLauncher{onStart: func(int, string) {
		fakeBrowser(t, base, resultserver.InvalidPath, "assertion failed at line 10")
	}}
	d := New(cfg, srv, l)
	assert.Equal(t, base+"/breaky.html", d.URL())

	v, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, resultserver.StatusInvalid, v.Status)
	assert.Equal(t, "assertion failed at line 10", v.Detail)
	assert.Equal(t, 1, ExitCode(v, err))
}

func TestEndToEndRestartAfterHang(t *testing.T) {
	srv, cfg := startServer(t)
	base := "http://" + srv.Addr().String()
	l := &fakeLauncher{onStart: func(n int, _ string) {
		// The first browser never reports back.
		if n > 1 {
			fakeBrowser(t, base, resultserver.ValidPath, "")
		}
	}}
	d := New(cfg, srv, l)

	v, err := d.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, ExitCode(v, err))
	assert.Equal(t, 1, d.Restarts())
	assert.Equal(t, 2, l.stops)
}
