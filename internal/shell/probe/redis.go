package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/svcplan/internal/core/detect"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/xexec"
	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Redis Probe
// =============================================================================

type redisProbe struct {
	target  Target
	runner  xexec.Runner
	dialer  Dialer
	retries int
	timeout time.Duration
}

func newRedisProbe(target Target, deps Deps, retries int, timeout time.Duration) *redisProbe {
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	return &redisProbe{target: target, runner: deps.Runner, dialer: deps.Dialer, retries: retries, timeout: timeout}
}

func (p *redisProbe) Name() string { return "redis" }

func (p *redisProbe) Detect(ctx context.Context) ([]domain.DetectedService, error) {
	var notes []string
	outcome := detect.ProbeOutcome{
		Installed: installed(p.runner, "redis-server", "redis-cli"),
	}

	if err := p.dialer.Dial(ctx, p.target.Host, p.target.Port); err == nil {
		outcome.PortOpen = true
	}

	svc := domain.DetectedService{
		Name:         p.Name(),
		Type:         domain.TypeCacheStore,
		Version:      domain.VersionUnknown,
		Host:         p.target.Host,
		Port:         p.target.Port,
		DetectedBy:   p.Name(),
		Capabilities: map[string]bool{},
		Metadata:     map[string]string{},
	}

	var info map[string]string
	if outcome.PortOpen {
		client := redis.NewClient(&redis.Options{
			Addr:            fmt.Sprintf("%s:%d", p.target.Host, p.target.Port),
			Username:        p.target.User,
			Password:        p.target.Password,
			DialTimeout:     p.timeout,
			ReadTimeout:     p.timeout,
			WriteTimeout:    p.timeout,
			MaxRetries:      -1,
			DisableIdentity: true,
		})
		defer client.Close()

		if err := p.ping(ctx, client); err != nil {
			notes = append(notes, "ping: "+err.Error())
			svc.Capabilities["auth_required"] = isRedisAuthError(err)
		} else {
			outcome.Alive = true
			svc.Capabilities["auth_required"] = p.target.Password != ""
			if raw, err := client.Info(ctx, "server").Result(); err == nil {
				info = detect.ParseRedisInfo(raw)
			} else {
				notes = append(notes, "INFO server: "+err.Error())
			}
		}

		if outcome.Alive {
			p.metadata(ctx, client, info, &svc, &notes)
		}
	}

	status, ok := detect.NativeStatus(outcome)
	if !ok {
		return nil, nil
	}
	svc.Status = status

	version, vnotes, found := firstOf(ctx,
		candidate[string]{name: "INFO server", fn: func(context.Context) (string, error) {
			if v := info["redis_version"]; v != "" {
				return v, nil
			}
			return "", errors.New("redis_version not reported")
		}},
		cliBanner(p.runner, detect.RedisBannerVersion, "redis-server", "--version"),
		cliBanner(p.runner, detect.RedisBannerVersion, "redis-cli", "--version"),
	)
	if found {
		svc.Version = version
	} else {
		notes = append(notes, vnotes...)
	}
	svc.Notes = notes
	return []domain.DetectedService{svc.WithFingerprint()}, nil
}

// ping retries PING with exponential backoff. Authentication errors are not
// retried.
func (p *redisProbe) ping(ctx context.Context, client *redis.Client) error {
	op := func() error {
		err := client.Ping(ctx).Err()
		if err != nil && isRedisAuthError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	retries := max(p.retries, 0)
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx))
}

// metadata gathers best-effort paths and process facts. Permission errors
// leave the fields nil.
func (p *redisProbe) metadata(ctx context.Context, client *redis.Client, info map[string]string, svc *domain.DetectedService, notes *[]string) {
	if pid, err := strconv.Atoi(info["process_id"]); err == nil && pid > 0 {
		svc.PID = &pid
	}
	svc.ConfigPath = strPtr(info["config_file"])
	if mode := info["redis_mode"]; mode != "" {
		svc.Metadata["redis_mode"] = mode
	}
	if os := info["os"]; os != "" {
		svc.Metadata["os"] = os
	}

	dir, err := client.ConfigGet(ctx, "dir").Result()
	if err != nil {
		*notes = append(*notes, "CONFIG GET dir: "+err.Error())
		return
	}
	svc.DataPath = strPtr(dir["dir"])
}

func isRedisAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"NOAUTH", "WRONGPASS", "invalid password", "invalid username-password"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
