package detect

import (
	"bufio"
	"regexp"
	"strings"
)

// =============================================================================
// Version Banners
// =============================================================================

var (
	// "Redis server v=7.2.4 sha=00000000:0 malloc=jemalloc-5.3.0 bits=64"
	redisServerBanner = regexp.MustCompile(`v=(\d+\.\d+(?:\.\d+)?)`)
	// "redis-cli 7.2.4"
	redisCLIBanner = regexp.MustCompile(`redis-cli\s+(\d+\.\d+(?:\.\d+)?)`)
	// "postgres (PostgreSQL) 16.2" / "psql (PostgreSQL) 16.2 (Ubuntu 16.2-1)"
	postgresBanner = regexp.MustCompile(`\(PostgreSQL\)\s+(\d+(?:\.\d+)*)`)
	// "16.2 (Debian 16.2-1.pgdg120+1)" from SHOW server_version
	leadingNumeric = regexp.MustCompile(`^\s*(\d+(?:\.\d+)*)`)
	// "temporal version 1.1.2 (Server 1.24.2, UI 2.28.0)"
	temporalServerBanner = regexp.MustCompile(`Server\s+v?(\d+\.\d+\.\d+)`)
	// "temporal version 0.13.1 (server 1.23.0)"
	temporalServerBannerLower = regexp.MustCompile(`(?i)server\s+v?(\d+\.\d+\.\d+)`)
	// "PostgreSQL 16.2 on x86_64-pc-linux-gnu" from SELECT version()
	postgresVersionFunc = regexp.MustCompile(`PostgreSQL\s+(\d+(?:\.\d+)*)`)
)

func firstGroup(re *regexp.Regexp, s string) (string, bool) {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// RedisBannerVersion parses the output of `redis-server --version` or
// `redis-cli --version`.
func RedisBannerVersion(out string) (string, bool) {
	if v, ok := firstGroup(redisServerBanner, out); ok {
		return v, true
	}
	return firstGroup(redisCLIBanner, out)
}

// PostgresBannerVersion parses `postgres --version`, `psql --version` or the
// result of SELECT version().
func PostgresBannerVersion(out string) (string, bool) {
	if v, ok := firstGroup(postgresBanner, out); ok {
		return v, true
	}
	return firstGroup(postgresVersionFunc, out)
}

// PostgresServerVersion parses the value of SHOW server_version.
func PostgresServerVersion(out string) (string, bool) {
	return firstGroup(leadingNumeric, out)
}

// TemporalBannerVersion parses the server version out of `temporal --version`.
// The CLI's own version is not the server version and is never returned.
func TemporalBannerVersion(out string) (string, bool) {
	if v, ok := firstGroup(temporalServerBanner, out); ok {
		return v, true
	}
	return firstGroup(temporalServerBannerLower, out)
}

// ParseRedisInfo parses the "key:value" lines of a Redis INFO reply.
// Section headers and blank lines are skipped.
func ParseRedisInfo(info string) map[string]string {
	out := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}
