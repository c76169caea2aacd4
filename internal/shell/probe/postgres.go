package probe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/svcplan/internal/core/detect"
	"github.com/artpar/svcplan/internal/core/domain"
	"github.com/artpar/svcplan/internal/shell/xexec"
	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
)

// =============================================================================
// PostgreSQL Probe
// =============================================================================

// pqPermanent holds the SQLSTATE codes that mean the server is up but will
// not accept this login; retrying cannot help.
var pqPermanent = map[pq.ErrorCode]bool{
	"28P01": true, // invalid_password
	"28000": true, // invalid_authorization_specification
	"3D000": true, // invalid_catalog_name
}

type postgresProbe struct {
	target  Target
	runner  xexec.Runner
	dialer  Dialer
	retries int
	timeout time.Duration
}

func newPostgresProbe(target Target, deps Deps, retries int, timeout time.Duration) *postgresProbe {
	if timeout <= 0 {
		timeout = DefaultPortTimeout
	}
	if target.User == "" {
		target.User = "postgres"
	}
	if target.Database == "" {
		target.Database = "postgres"
	}
	return &postgresProbe{target: target, runner: deps.Runner, dialer: deps.Dialer, retries: retries, timeout: timeout}
}

func (p *postgresProbe) Name() string { return "postgres" }

// connString builds a key=value DSN for lib/pq. Every value is quoted.
func (p *postgresProbe) connString() string {
	secs := int(math.Ceil(p.timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	pairs := [][2]string{
		{"host", p.target.Host},
		{"port", strconv.Itoa(p.target.Port)},
		{"user", p.target.User},
		{"dbname", p.target.Database},
		{"sslmode", "disable"},
		{"connect_timeout", strconv.Itoa(secs)},
	}
	if p.target.Password != "" {
		pairs = append(pairs, [2]string{"password", p.target.Password})
	}
	parts := make([]string, len(pairs))
	for i, kv := range pairs {
		parts[i] = kv[0] + "=" + dsnQuote(kv[1])
	}
	return strings.Join(parts, " ")
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// dsnQuote single-quotes v with backslash and quote escaped.
func dsnQuote(v string) string {
	return "'" + dsnEscaper.Replace(v) + "'"
}

func (p *postgresProbe) Detect(ctx context.Context) ([]domain.DetectedService, error) {
	var notes []string
	outcome := detect.ProbeOutcome{
		Installed: installed(p.runner, "postgres", "psql", "pg_ctl"),
	}
	if err := p.dialer.Dial(ctx, p.target.Host, p.target.Port); err == nil {
		outcome.PortOpen = true
	}

	svc := domain.DetectedService{
		Name:         p.Name(),
		Type:         domain.TypeRelationalDB,
		Version:      domain.VersionUnknown,
		Host:         p.target.Host,
		Port:         p.target.Port,
		DetectedBy:   p.Name(),
		Capabilities: map[string]bool{},
		Metadata:     map[string]string{},
	}

	var db *sql.DB
	if outcome.PortOpen {
		var err error
		db, err = sql.Open("postgres", p.connString())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(1)

		if err := p.ping(ctx, db); err != nil {
			notes = append(notes, "ping: "+err.Error())
			var pqErr *pq.Error
			svc.Capabilities["auth_required"] = errors.As(err, &pqErr) && pqErr.Code.Class() == "28"
			db = nil
		} else {
			outcome.Alive = true
			svc.Capabilities["auth_required"] = p.target.Password != ""
		}
	}

	status, ok := detect.NativeStatus(outcome)
	if !ok {
		return nil, nil
	}
	svc.Status = status

	cands := []candidate[string]{}
	if db != nil {
		cands = append(cands,
			candidate[string]{name: "SHOW server_version", fn: func(ctx context.Context) (string, error) {
				return queryVersion(ctx, db, "SHOW server_version", detect.PostgresServerVersion)
			}},
			candidate[string]{name: "SELECT version()", fn: func(ctx context.Context) (string, error) {
				return queryVersion(ctx, db, "SELECT version()", detect.PostgresBannerVersion)
			}},
		)
	}
	cands = append(cands,
		cliBanner(p.runner, detect.PostgresBannerVersion, "postgres", "--version"),
		cliBanner(p.runner, detect.PostgresBannerVersion, "psql", "--version"),
	)
	version, vnotes, found := firstOf(ctx, cands...)
	if found {
		svc.Version = version
	} else {
		notes = append(notes, vnotes...)
	}

	if db != nil {
		svc.DataPath = showSetting(ctx, db, "data_directory", &notes)
		svc.ConfigPath = showSetting(ctx, db, "config_file", &notes)
		var pid int
		if err := db.QueryRowContext(ctx, "SELECT pg_backend_pid()").Scan(&pid); err == nil {
			svc.Metadata["backend_pid"] = fmt.Sprint(pid)
		}
	}

	svc.Notes = notes
	return []domain.DetectedService{svc.WithFingerprint()}, nil
}

// ping retries the connection with exponential backoff. Login failures are
// not retried.
func (p *postgresProbe) ping(ctx context.Context, db *sql.DB) error {
	op := func() error {
		err := db.PingContext(ctx)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqPermanent[pqErr.Code] {
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

func queryVersion(ctx context.Context, db *sql.DB, query string, parse func(string) (string, bool)) (string, error) {
	var raw string
	if err := db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		return "", err
	}
	v, ok := parse(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", errNoBanner, raw)
	}
	return v, nil
}

// showSetting reads a server setting that needs superuser or
// pg_read_all_settings. Permission errors yield nil.
func showSetting(ctx context.Context, db *sql.DB, name string, notes *[]string) *string {
	var v string
	if err := db.QueryRowContext(ctx, "SHOW "+name).Scan(&v); err != nil {
		*notes = append(*notes, fmt.Sprintf("SHOW %s: %v", name, err))
		return nil
	}
	return strPtr(v)
}
