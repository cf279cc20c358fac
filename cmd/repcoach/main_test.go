package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/odvcencio/repcoach/pkg/agent"
	"github.com/odvcencio/repcoach/pkg/config"
	rcerrors "github.com/odvcencio/repcoach/pkg/errors"
	"github.com/odvcencio/repcoach/pkg/logging"
	"github.com/odvcencio/repcoach/pkg/memory"
	"github.com/odvcencio/repcoach/pkg/model"
	"github.com/odvcencio/repcoach/pkg/storage"
	"github.com/odvcencio/repcoach/pkg/telemetry"
	"github.com/odvcencio/repcoach/pkg/tool"
	"github.com/odvcencio/repcoach/pkg/tool/builtin"
	"github.com/odvcencio/repcoach/pkg/workout"
)

func testApp(t *testing.T) *app {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "repcoach.db")
	cfg.Logging.Dir = filepath.Join(dir, "logs")
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Telemetry.MetricsEnabled = false
	return &app{cfg: cfg, logger: zap.NewNop()}
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "repcoach dev (none)\n", out.String())
}

func TestRootRejectsMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--config", filepath.Join(t.TempDir(), "missing.yaml")})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, exitConfig, exitCodeForError(err))
}

func TestExitCodes(t *testing.T) {
	assert.Equal(t, 0, exitCodeForError(nil))
	assert.Equal(t, exitFailure, exitCodeForError(errors.New("boom")))
	assert.Equal(t, exitConfig, exitCodeForError(withExitCode(errors.New("bad"), exitConfig)))
	assert.Nil(t, withExitCode(nil, exitConfig))

	wrapped := withExitCode(context.Canceled, 0)
	assert.Equal(t, exitFailure, exitCodeForError(wrapped))
	assert.ErrorIs(t, wrapped, context.Canceled)

	tierErr := fmt.Errorf("fast tier: %w", rcerrors.New(rcerrors.CodeConfigInvalid, "model name is required"))
	assert.Equal(t, exitConfig, exitCodeForError(tierErr))
	assert.Equal(t, exitFailure, exitCodeForError(rcerrors.New(rcerrors.CodeStorageWrite, "disk full")))
}

func TestBuildTiers(t *testing.T) {
	cfg := config.DefaultConfig()
	tiers, err := buildTiers(cfg, zap.NewNop(), telemetry.NewHub())
	require.NoError(t, err)
	assert.False(t, tiers.Available(), "no credentials means no tiers")

	cfg.Providers.OpenRouter.APIKey = "sk-test"
	cfg.Models.Capable = config.TierConfig{Provider: config.ProviderOllama, Model: "llama3", BaseURL: "http://127.0.0.1:11434/v1"}
	tiers, err = buildTiers(cfg, zap.NewNop(), telemetry.NewHub())
	require.NoError(t, err)
	require.NotNil(t, tiers.Fast)
	require.NotNil(t, tiers.Capable)
	assert.Equal(t, "openrouter/"+cfg.Models.Fast.Model, tiers.Fast.(*model.Client).ID())
	assert.Equal(t, "ollama/llama3", tiers.Capable.(*model.Client).ID())

	cfg.Models.Fast = config.TierConfig{Provider: "mystery", Model: "m"}
	cfg.Providers.OpenRouter.APIKey = ""
	tiers, err = buildTiers(cfg, zap.NewNop(), telemetry.NewHub())
	require.NoError(t, err)
	assert.Nil(t, tiers.Fast)
}

type generatorFunc func(ctx context.Context, req workout.Request) (*workout.Workout, string, error)

func (f generatorFunc) Generate(ctx context.Context, req workout.Request) (*workout.Workout, string, error) {
	return f(ctx, req)
}

func TestNewRegistryRetriesGeneration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tools.RetryDelay = time.Millisecond
	var calls int
	gen := generatorFunc(func(ctx context.Context, req workout.Request) (*workout.Workout, string, error) {
		calls++
		if calls == 1 {
			return nil, "", errors.New("upstream timeout")
		}
		return &workout.Workout{ID: "w1", Name: "Leg Day"}, "Here's your Leg Day", nil
	})

	reg := newRegistry(cfg, telemetry.NewHub(), gen)
	res, err := reg.Execute(context.Background(), tool.Call{
		Name:   createWorkoutTool,
		Params: map[string]any{builtin.ParamRequest: "leg workout"},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 2, calls)
	assert.Equal(t, createWorkoutTool, reg.List()[0].Name())
}

func TestNewRegistryBoundsGeneration(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tools.CreateWorkoutTimeout = 50 * time.Millisecond
	gen := generatorFunc(func(ctx context.Context, req workout.Request) (*workout.Workout, string, error) {
		<-ctx.Done()
		return nil, "", ctx.Err()
	})

	reg := newRegistry(cfg, telemetry.NewHub(), gen)
	start := time.Now()
	_, err := reg.Execute(context.Background(), tool.Call{
		Name:   createWorkoutTool,
		Params: map[string]any{builtin.ParamRequest: "leg workout"},
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewRegistryWithoutGenerator(t *testing.T) {
	reg := newRegistry(config.DefaultConfig(), telemetry.NewHub(), nil)
	_, ok := reg.Get(createWorkoutTool)
	assert.False(t, ok)
	_, ok = reg.Get("exercise_info")
	assert.True(t, ok)
}

func TestAuditLevel(t *testing.T) {
	assert.Equal(t, logging.LevelDebug, auditLevel("debug"))
	assert.Equal(t, logging.LevelInfo, auditLevel("info"))
	assert.Equal(t, logging.LevelWarn, auditLevel("warn"))
	assert.Equal(t, logging.LevelError, auditLevel("fatal"))
	assert.Equal(t, logging.LevelInfo, auditLevel(""))
}

func TestRunServeStopsOnCancel(t *testing.T) {
	a := testApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, a) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRunChatPersistsTranscript(t *testing.T) {
	a := testApp(t)
	var out bytes.Buffer
	in := strings.NewReader("hello\n\n/quit\nnever sent\n")
	require.NoError(t, runChat(context.Background(), a, "u1", "", in, &out))
	assert.Contains(t, out.String(), "Ask me for a workout")

	store, err := storage.New(a.cfg.Storage.Path)
	require.NoError(t, err)
	defer store.Close()
	sessions, err := store.ListSessions(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	msgs, err := store.GetMessages(context.Background(), sessions[0].ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Content)

	entries, err := os.ReadDir(a.cfg.Logging.Dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, strings.Join(names, " "), "transcript-")

	// Resume the stored session.
	out.Reset()
	require.NoError(t, runChat(context.Background(), a, "u1", sessions[0].ID, strings.NewReader("thanks\n"), &out))
	msgs, err = store.GetMessages(context.Background(), sessions[0].ID, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

// blockingStreamer emits one chunk and waits to be cancelled.
type blockingStreamer struct {
	started chan struct{}
}

func (b *blockingStreamer) StreamMessage(ctx context.Context, sess *memory.Session, input string, onChunk model.ChunkFunc) (*agent.Reply, error) {
	_ = onChunk("Squats are")
	close(b.started)
	<-ctx.Done()
	return &agent.Reply{Text: "Squats are", Truncated: true}, ctx.Err()
}

func TestChatLoopInterruptCancelsReply(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	streamer := &blockingStreamer{started: make(chan struct{})}
	var out syncBuffer
	transcript, err := logging.NewTranscriptLogger(t.TempDir())
	require.NoError(t, err)
	defer transcript.Close()

	done := make(chan error, 1)
	go func() {
		done <- chatLoop(context.Background(), chatOptions{
			in:         strings.NewReader("how do I squat\n"),
			out:        &out,
			coach:      streamer,
			session:    memory.NewSession("s1", "u1", 10),
			interrupts: interrupts,
			transcript: transcript,
		})
	}()

	<-streamer.started
	interrupts <- os.Interrupt
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("chat loop did not finish")
	}
	assert.Equal(t, "Squats are [interrupted]\n", out.String())

	data, err := os.ReadFile(transcript.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "coach [interrupted]: Squats are")
}

func TestChatLoopInterruptAtPromptExits(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	interrupts <- os.Interrupt
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	var out syncBuffer
	err = chatLoop(context.Background(), chatOptions{
		in:         r,
		out:        &out,
		coach:      &blockingStreamer{started: make(chan struct{})},
		session:    memory.NewSession("s1", "u1", 10),
		interrupts: interrupts,
	})
	require.NoError(t, err)
}

// syncBuffer is a bytes.Buffer safe to write from the chat goroutine while
// the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
