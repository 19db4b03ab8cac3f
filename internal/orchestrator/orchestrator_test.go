package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/get2knowio/deacon/internal/config"
	"github.com/get2knowio/deacon/internal/feature"
	"github.com/get2knowio/deacon/internal/runtime"
	"github.com/get2knowio/deacon/internal/state"
	"github.com/get2knowio/deacon/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine is a minimal in-memory runtime.Engine for exercising the
// orchestrator's reconcile policy without a real container runtime.
type fakeEngine struct {
	containers map[string]runtime.ContainerInfo
	nextID     int
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{containers: make(map[string]runtime.ContainerInfo)}
}

func (f *fakeEngine) Ping(ctx context.Context) error { return nil }

func (f *fakeEngine) ListContainers(ctx context.Context, labelSelector map[string]string) ([]runtime.ContainerInfo, error) {
	var out []runtime.ContainerInfo
	for _, c := range f.containers {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeEngine) InspectContainer(ctx context.Context, id string) (*runtime.ContainerInfo, error) {
	c, ok := f.containers[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeEngine) Exec(ctx context.Context, id string, args []string, opts runtime.ExecOptions) (*runtime.ExecResult, error) {
	return &runtime.ExecResult{ExitCode: 0}, nil
}

func (f *fakeEngine) StopContainer(ctx context.Context, id string, timeoutSeconds *int) error {
	return nil
}

func (f *fakeEngine) BuildImage(ctx context.Context, contextDir, dockerfile string, buildArgs map[string]string, out io.Writer) (string, error) {
	return "built-image", nil
}

func (f *fakeEngine) FindMatchingContainers(ctx context.Context, identity runtime.ContainerIdentity) ([]runtime.ContainerInfo, error) {
	var out []runtime.ContainerInfo
	for _, c := range f.containers {
		if c.Labels["deacon.workspace-hash"] == identity.WorkspaceHash {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeEngine) CreateContainer(ctx context.Context, identity runtime.ContainerIdentity, cfg runtime.ContainerCreateConfig, workspacePath string) (string, error) {
	f.nextID++
	id := "container-" + string(rune('0'+f.nextID))
	f.containers[id] = runtime.ContainerInfo{ID: id, Image: cfg.Image, State: "created", Labels: cfg.Labels}
	return id, nil
}

func (f *fakeEngine) StartContainer(ctx context.Context, id string) error {
	c := f.containers[id]
	c.State = "running"
	f.containers[id] = c
	return nil
}

func (f *fakeEngine) RemoveContainer(ctx context.Context, id string, force bool) error {
	delete(f.containers, id)
	return nil
}

func (f *fakeEngine) GetContainerImage(ctx context.Context, id string) (string, error) {
	return f.containers[id].Image, nil
}

func (f *fakeEngine) ComposeUp(ctx context.Context, req runtime.ComposeRequest, services []string, detach bool, out io.Writer) error {
	return nil
}
func (f *fakeEngine) ComposeDown(ctx context.Context, req runtime.ComposeRequest, out io.Writer) error {
	return nil
}
func (f *fakeEngine) ComposePS(ctx context.Context, req runtime.ComposeRequest) ([]byte, error) {
	return nil, nil
}

var _ runtime.Engine = (*fakeEngine)(nil)

func workspaceHash(t *testing.T, cfg *config.DevContainerConfig, workspacePath string) string {
	t.Helper()
	canonical, err := workspace.Resolve(workspacePath)
	require.NoError(t, err)
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	return workspace.Fingerprint(canonical, data)
}

func TestUpCreatesNewContainerWhenNoneMatch(t *testing.T) {
	eng := newFakeEngine()
	mgr, err := state.NewManagerAt(t.TempDir())
	require.NoError(t, err)

	orch := New(eng, mgr)
	cfg := &config.DevContainerConfig{}
	plan := &feature.InstallationPlan{}
	workspacePath := t.TempDir()

	res, err := orch.Up(context.Background(), cfg, plan, workspacePath, "my-image:latest", UpOptions{SkipNonBlockingCommands: true})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.ContainerID)

	hash := workspaceHash(t, cfg, workspacePath)
	got, err := mgr.Get(hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, res.ContainerID, got.ContainerID)
}

func TestUpReusesRunningContainer(t *testing.T) {
	eng := newFakeEngine()
	mgr, err := state.NewManagerAt(t.TempDir())
	require.NoError(t, err)
	orch := New(eng, mgr)
	cfg := &config.DevContainerConfig{}
	plan := &feature.InstallationPlan{}
	workspacePath := t.TempDir()

	first, err := orch.Up(context.Background(), cfg, plan, workspacePath, "my-image:latest", UpOptions{SkipNonBlockingCommands: true})
	require.NoError(t, err)

	second, err := orch.Up(context.Background(), cfg, plan, workspacePath, "my-image:latest", UpOptions{SkipNonBlockingCommands: true})
	require.NoError(t, err)

	assert.Equal(t, first.ContainerID, second.ContainerID)
	assert.True(t, second.Reused)
}

func TestDownRemovesMatchingContainer(t *testing.T) {
	eng := newFakeEngine()
	mgr, err := state.NewManagerAt(t.TempDir())
	require.NoError(t, err)
	orch := New(eng, mgr)
	cfg := &config.DevContainerConfig{}
	plan := &feature.InstallationPlan{}
	workspacePath := t.TempDir()

	res, err := orch.Up(context.Background(), cfg, plan, workspacePath, "my-image:latest", UpOptions{SkipNonBlockingCommands: true})
	require.NoError(t, err)

	require.NoError(t, orch.Down(context.Background(), cfg, workspacePath, true))

	_, ok := eng.containers[res.ContainerID]
	assert.False(t, ok)

	hash := workspaceHash(t, cfg, workspacePath)
	got, err := mgr.Get(hash)
	require.NoError(t, err)
	assert.Nil(t, got)
}
