package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
	"github.com/rs/zerolog"
)

// DockerHarness runs the search tool in a container. The repo checkout
// is bind-mounted read-only at /workspace so the tool cannot mutate the
// shared worktree; the tool writes its response JSON to
// /out/result.json in a writable scratch mount. A result file left
// behind by a timed-out container is scored as a partial answer.
type DockerHarness struct {
	image   string
	command []string
	log     zerolog.Logger
}

func (h *DockerHarness) Invoke(ctx context.Context, req *Request) (*Response, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	outDir, err := os.MkdirTemp("", "locbench-out-")
	if err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: req.RepoPath, Target: "/workspace", ReadOnly: true},
			{Type: mount.TypeBind, Source: outDir, Target: "/out"},
		},
		Init:       &initTrue,
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
	}
	containerCfg := &container.Config{
		Image:      h.image,
		Cmd:        h.command,
		WorkingDir: "/workspace",
		Env: []string{
			"LOCBENCH_QUERY=" + req.Query,
			"LOCBENCH_MAX_TURNS=" + strconv.Itoa(req.MaxTurns),
			"LOCBENCH_TEMPERATURE=" + strconv.FormatFloat(req.Temperature, 'f', -1, 64),
			"LOCBENCH_BUDGET_SECONDS=" + strconv.Itoa(int(req.Budget.Seconds())),
			"LOCBENCH_OUTPUT=/out/result.json",
		},
		Labels: map[string]string{"locbench": "true"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	budget := req.Budget
	if budget <= 0 {
		budget = 5 * time.Minute
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	timedOut := false
	waitResult := cli.ContainerWait(timeoutCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
wait:
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				timedOut = true
				break wait
			}
			// nil error means no error on this channel; wait for result
		case status := <-waitResult.Result:
			h.drainLogs(cli, containerID)
			if status.StatusCode != 0 && !resultExists(outDir) {
				return nil, fmt.Errorf("harness container exited with status %d", status.StatusCode)
			}
			break wait
		}
	}

	resp, err := readResult(outDir)
	if err != nil {
		if timedOut {
			return nil, fmt.Errorf("harness container exceeded %s budget with no result", budget)
		}
		return nil, err
	}
	if timedOut {
		resp.Partial = true
	}
	return resp, nil
}

func (h *DockerHarness) drainLogs(cli *client.Client, containerID string) {
	reader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{
		ShowStdout: true, ShowStderr: true, Tail: "100",
	})
	if err != nil || reader == nil {
		return
	}
	defer reader.Close()
	if data, err := io.ReadAll(reader); err == nil && len(data) > 0 {
		h.log.Debug().Str("logs", truncate(string(data), 2000)).Msg("harness container logs")
	}
}

func resultExists(outDir string) bool {
	_, err := os.Stat(filepath.Join(outDir, "result.json"))
	return err == nil
}

func readResult(outDir string) (*Response, error) {
	data, err := os.ReadFile(filepath.Join(outDir, "result.json"))
	if err != nil {
		return nil, fmt.Errorf("reading harness result: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding harness result: %w", err)
	}
	return &resp, nil
}
