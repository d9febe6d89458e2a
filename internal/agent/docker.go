package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/playwright-community/playwright-go"
)

const chromeImage = "browserless/chrome:latest"

// DockerDriver launches each agent as a browserless/chrome container and
// attaches to it over CDP. Containers have no display, so this driver only
// supports headless agents; deployments needing a visible window for manual
// second-factor login must use the local Playwright driver.
type DockerDriver struct {
	client *client.Client
	pw     *playwright.Playwright
}

// NewDockerDriver creates a docker-backed driver and ensures the Chrome
// image is available locally.
func NewDockerDriver(ctx context.Context) (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	pw, err := playwright.Run(&playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d := &DockerDriver{client: cli, pw: pw}
	if err := d.ensureImage(ctx); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

// Launch starts a Chrome container and connects to it.
func (d *DockerDriver) Launch(ctx context.Context, headless bool) (Agent, error) {
	if !headless {
		return nil, fmt.Errorf("docker driver cannot launch a visible browser; use the local driver for manual login")
	}

	containerConfig := &container.Config{
		Image: chromeImage,
		Labels: map[string]string{
			"managed-by": "promptgate",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{
					HostIP:   "0.0.0.0",
					HostPort: "0",
				},
			},
		},
		AutoRemove: false,
	}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.removeContainer(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := d.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		d.removeContainer(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	port, err := hostPortFor(inspect.NetworkSettings.Ports)
	if err != nil {
		d.removeContainer(resp.ID)
		return nil, err
	}

	if err := waitForBrowserReady(port); err != nil {
		d.removeContainer(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	browser, err := d.pw.Chromium.ConnectOverCDP(fmt.Sprintf("ws://localhost:%s", port))
	if err != nil {
		d.removeContainer(resp.ID)
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &dockerAgent{
		playwrightAgent: playwrightAgent{browser: browser},
		driver:          d,
		containerID:     resp.ID,
	}, nil
}

// Close closes the docker client and the Playwright runtime.
func (d *DockerDriver) Close() error {
	if err := d.pw.Stop(); err != nil {
		d.client.Close()
		return fmt.Errorf("failed to stop playwright: %w", err)
	}
	return d.client.Close()
}

func (d *DockerDriver) ensureImage(ctx context.Context) error {
	images, err := d.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == chromeImage {
				return nil
			}
		}
	}

	reader, err := d.client.ImagePull(ctx, chromeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (d *DockerDriver) removeContainer(containerID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	timeout := 10
	if err := d.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := d.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// dockerAgent is a playwright agent whose browser lives in a container.
// Closing it tears down the container as well as the CDP connection.
type dockerAgent struct {
	playwrightAgent
	driver      *DockerDriver
	containerID string
}

func (a *dockerAgent) Close() error {
	err := a.playwrightAgent.Close()
	if rmErr := a.driver.removeContainer(a.containerID); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// hostPortFor picks the published host port for the browser endpoint.
// Docker may not have populated the binding yet when the container is young.
func hostPortFor(ports nat.PortMap) (string, error) {
	bindings := ports["3000/tcp"]
	if len(bindings) == 0 {
		return "", fmt.Errorf("container has no published binding for 3000/tcp")
	}
	return bindings[0].HostPort, nil
}

// waitForBrowserReady polls the /json/version endpoint until the browser
// inside the container accepts connections.
func waitForBrowserReady(port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	maxRetries := 20 // 10 seconds total (20 * 500ms)

	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				// Give it a bit more time for WebSocket to be fully ready
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
