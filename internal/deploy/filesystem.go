package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/launchpad/internal/artifact"
	"github.com/fyrsmithlabs/launchpad/internal/logging"
	"github.com/fyrsmithlabs/launchpad/internal/sanitize"
)

// ManifestFile is written into every deployment directory.
const ManifestFile = "deployment.yaml"

// ErrNotReady is returned when the readiness check times out.
var ErrNotReady = errors.New("service not ready")

// Options configures the filesystem target.
type Options struct {
	// Root is the serving location; deployments live in Root/<name>/<id>
	Root string `koanf:"root"`

	// PlatformConfig is the platform's config file (default: Root/platform.yaml)
	PlatformConfig string `koanf:"platform_config"`

	// ReloadURL receives a POST after the platform config changes (optional)
	ReloadURL string `koanf:"reload_url"`

	// ReadinessURL is polled until it answers 2xx (optional)
	ReadinessURL string `koanf:"readiness_url"`

	// APIURL is checked during verify (default: ReadinessURL)
	APIURL string `koanf:"api_url"`

	// ReadinessTimeout bounds the readiness poll (default: 30s)
	ReadinessTimeout time.Duration `koanf:"readiness_timeout"`

	// ReadinessInterval is the pause between checks (default: 500ms)
	ReadinessInterval time.Duration `koanf:"readiness_interval"`
}

// Filesystem deploys bundles into a directory tree served by a platform that
// reads its template list from a YAML config file.
type Filesystem struct {
	opts   Options
	client *http.Client
	logger *logging.Logger

	// mu serializes platform config updates.
	mu sync.Mutex
}

var _ Target = (*Filesystem)(nil)

type manifest struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Owner       string    `yaml:"owner"`
	Description string    `yaml:"description,omitempty"`
	Files       []string  `yaml:"files"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// NewFilesystem creates a filesystem target. client and logger may be nil.
func NewFilesystem(opts Options, client *http.Client, logger *logging.Logger) (*Filesystem, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("deploy: root is required")
	}
	if opts.PlatformConfig == "" {
		opts.PlatformConfig = filepath.Join(opts.Root, "platform.yaml")
	}
	if opts.APIURL == "" {
		opts.APIURL = opts.ReadinessURL
	}
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = 30 * time.Second
	}
	if opts.ReadinessInterval <= 0 {
		opts.ReadinessInterval = 500 * time.Millisecond
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("deploy: failed to create root: %w", err)
	}
	return &Filesystem{opts: opts, client: client, logger: logger}, nil
}

// Deploy runs every sub-step. If one fails, the completed ones are undone
// before the error is returned.
func (f *Filesystem) Deploy(ctx context.Context, bundle *artifact.Bundle) (*Result, error) {
	if bundle == nil {
		return nil, &StepError{Step: StepPrepare, Err: errors.New("no bundle")}
	}
	name := sanitize.RepositoryName(bundle.Name)

	id := uuid.New().String()
	res := &Result{
		ID:       id,
		Name:     name,
		Owner:    bundle.Owner,
		Files:    bundle.Paths(),
		Location: filepath.Join(f.opts.Root, name, id),
	}

	steps := []struct {
		name string
		fn   func(context.Context, *artifact.Bundle, *Result) error
	}{
		{StepPrepare, f.prepare},
		{StepCopy, f.copyFiles},
		{StepPlatform, f.updatePlatform},
		{StepRestart, f.restart},
		{StepReadiness, f.waitReady},
	}
	for _, s := range steps {
		if err := s.fn(ctx, bundle, res); err != nil {
			stepErr := &StepError{Step: s.name, Err: err}
			if f.logger != nil {
				f.logger.Warn(ctx, "deployment step failed",
					zap.String("deployment_id", res.ID),
					zap.String("step", s.name),
					zap.Error(err))
			}
			if cleanupErr := f.Undeploy(context.WithoutCancel(ctx), res); cleanupErr != nil && f.logger != nil {
				f.logger.Error(ctx, "failed to clean up partial deployment",
					zap.String("deployment_id", res.ID),
					zap.Error(cleanupErr))
			}
			return res, stepErr
		}
		res.Steps = append(res.Steps, s.name)
	}

	res.Success = true
	res.DeployedAt = time.Now().UTC()
	if f.logger != nil {
		f.logger.Info(ctx, "deployment complete",
			zap.String("deployment_id", res.ID),
			zap.String("name", res.Name),
			zap.String("location", res.Location),
			zap.Int("files", len(res.Files)))
	}
	return res, nil
}

func (f *Filesystem) prepare(_ context.Context, bundle *artifact.Bundle, res *Result) error {
	if err := os.MkdirAll(res.Location, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(manifest{
		ID:          res.ID,
		Name:        res.Name,
		Owner:       res.Owner,
		Description: bundle.Description,
		Files:       res.Files,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(res.Location, ManifestFile), data, 0o644)
}

func (f *Filesystem) copyFiles(_ context.Context, bundle *artifact.Bundle, res *Result) error {
	for _, file := range bundle.Files {
		dst, err := sanitize.WithinRoot(res.Location, file.Path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(dst, file.Content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *Filesystem) updatePlatform(_ context.Context, _ *artifact.Bundle, res *Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	cfg, err := loadPlatform(f.opts.PlatformConfig)
	if err != nil {
		return err
	}
	if prev, ok := cfg.Templates[res.Name]; ok && prev.DeploymentID != res.ID {
		cp := *prev
		res.Previous = &cp
	}
	cfg.Templates[res.Name] = &PlatformEntry{
		DeploymentID: res.ID,
		Owner:        res.Owner,
		Path:         res.Location,
		UpdatedAt:    time.Now().UTC(),
	}
	return savePlatform(f.opts.PlatformConfig, cfg)
}

func (f *Filesystem) restart(ctx context.Context, _ *artifact.Bundle, res *Result) error {
	return f.reload(ctx, res)
}

func (f *Filesystem) reload(ctx context.Context, res *Result) error {
	if f.opts.ReloadURL == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{
		"template":      res.Name,
		"deployment_id": res.ID,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.opts.ReloadURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return &statusError{op: "reload", status: resp.StatusCode}
	}
	return nil
}

func (f *Filesystem) waitReady(ctx context.Context, _ *artifact.Bundle, _ *Result) error {
	if f.opts.ReadinessURL == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.opts.ReadinessTimeout)
	defer cancel()

	var lastErr error
	for {
		status, err := f.getStatus(ctx, f.opts.ReadinessURL)
		if err == nil && status >= 200 && status < 300 {
			return nil
		}
		lastErr = err
		if err == nil {
			lastErr = &statusError{op: "readiness", status: status}
		}

		timer := time.NewTimer(f.opts.ReadinessInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w after %s: %v", ErrNotReady, f.opts.ReadinessTimeout, lastErr)
		case <-timer.C:
		}
	}
}

func (f *Filesystem) getStatus(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// Verify reports whether Problems finds nothing.
func (f *Filesystem) Verify(ctx context.Context, res *Result) bool {
	problems := f.Problems(ctx, res)
	if len(problems) == 0 {
		return true
	}
	if f.logger != nil {
		id := ""
		if res != nil {
			id = res.ID
		}
		f.logger.Warn(ctx, "deployment verification failed",
			zap.String("deployment_id", id),
			zap.Strings("problems", problems))
	}
	return false
}

// Problems re-checks a deployment: every file is readable, the platform
// config points at it, the API answers, and the template instantiates with
// placeholder parameters.
func (f *Filesystem) Problems(ctx context.Context, res *Result) []string {
	if res == nil || res.ID == "" {
		return []string{"no deployment"}
	}
	var problems []string

	data, err := os.ReadFile(filepath.Join(res.Location, ManifestFile))
	var m manifest
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("manifest unreadable: %v", err))
	case yaml.Unmarshal(data, &m) != nil:
		problems = append(problems, "manifest corrupted")
	case m.ID != res.ID:
		problems = append(problems, fmt.Sprintf("manifest belongs to deployment %s", m.ID))
	default:
		for _, p := range m.Files {
			full, err := sanitize.WithinRoot(res.Location, p)
			if err != nil {
				problems = append(problems, fmt.Sprintf("file %s: %v", p, err))
				continue
			}
			if _, err := os.ReadFile(full); err != nil {
				problems = append(problems, fmt.Sprintf("file %s not accessible", p))
			}
		}
	}

	f.mu.Lock()
	cfg, err := loadPlatform(f.opts.PlatformConfig)
	f.mu.Unlock()
	switch {
	case err != nil:
		problems = append(problems, fmt.Sprintf("platform config unreadable: %v", err))
	case cfg.Templates[res.Name] == nil:
		problems = append(problems, fmt.Sprintf("platform config has no entry for %s", res.Name))
	case cfg.Templates[res.Name].DeploymentID != res.ID:
		problems = append(problems, fmt.Sprintf("platform config serves deployment %s", cfg.Templates[res.Name].DeploymentID))
	}

	if f.opts.APIURL != "" {
		status, err := f.getStatus(ctx, f.opts.APIURL)
		if err != nil {
			problems = append(problems, fmt.Sprintf("api unreachable: %v", err))
		} else if status >= 500 {
			problems = append(problems, fmt.Sprintf("api answered %d", status))
		}
	}

	tmplPath, err := sanitize.WithinRoot(res.Location, artifact.DefaultTemplateFile)
	if err == nil {
		var raw []byte
		raw, err = os.ReadFile(tmplPath)
		if err == nil {
			var tmpl *artifact.Template
			tmpl, err = artifact.ParseTemplate(raw)
			if err == nil {
				_, err = tmpl.Instantiate(tmpl.PlaceholderParams())
			}
		}
	}
	if err != nil {
		problems = append(problems, fmt.Sprintf("dry-run instantiation failed: %v", err))
	}
	return problems
}

// Undeploy removes the deployment directory and restores the platform entry
// it replaced.
func (f *Filesystem) Undeploy(ctx context.Context, res *Result) error {
	if res == nil || res.ID == "" {
		return nil
	}
	var errs []error

	f.mu.Lock()
	cfg, err := loadPlatform(f.opts.PlatformConfig)
	changed := false
	if err != nil {
		errs = append(errs, err)
	} else if cur, ok := cfg.Templates[res.Name]; ok && cur.DeploymentID == res.ID {
		if res.Previous != nil {
			prev := *res.Previous
			cfg.Templates[res.Name] = &prev
		} else {
			delete(cfg.Templates, res.Name)
		}
		changed = true
		if err := savePlatform(f.opts.PlatformConfig, cfg); err != nil {
			errs = append(errs, err)
		}
	}
	f.mu.Unlock()

	if err := os.RemoveAll(res.Location); err != nil {
		errs = append(errs, err)
	}
	if changed {
		if err := f.reload(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}

	if f.logger != nil {
		f.logger.Info(ctx, "deployment removed",
			zap.String("deployment_id", res.ID),
			zap.Bool("platform_restored", res.Previous != nil))
	}
	return errors.Join(errs...)
}

// statusError carries an unexpected HTTP status so callers can classify it.
type statusError struct {
	op     string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.op, e.status)
}

func (e *statusError) StatusCode() int { return e.status }
