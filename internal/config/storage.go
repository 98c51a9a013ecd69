package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// parseDatabaseURL splits a postgres:// URL into discrete connection
// fields, matching the shape most hosting providers export.
func parseDatabaseURL(raw string) (PostgresConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return PostgresConfig{}, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return PostgresConfig{}, fmt.Errorf("parse DATABASE_URL: unsupported scheme %q", u.Scheme)
	}

	pg := PostgresConfig{
		Host:     u.Hostname(),
		Port:     5432,
		Database: strings.TrimPrefix(u.Path, "/"),
		SSLMode:  "disable",
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return PostgresConfig{}, fmt.Errorf("parse DATABASE_URL port: %w", err)
		}
		pg.Port = port
	}
	if u.User != nil {
		pg.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			pg.Password = pw
		}
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		pg.SSLMode = mode
	}
	return pg, nil
}

// ConnectionString renders key=value DSN form for pgx.
func (p PostgresConfig) ConnectionString() string {
	parts := []string{
		fmt.Sprintf("host=%s", p.Host),
		fmt.Sprintf("port=%d", p.Port),
		fmt.Sprintf("user=%s", p.User),
		fmt.Sprintf("dbname=%s", p.Database),
		fmt.Sprintf("sslmode=%s", p.SSLMode),
	}
	if p.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", p.Password))
	}
	return strings.Join(parts, " ")
}

// URL renders postgres:// form for golang-migrate.
func (p PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	if p.Password != "" {
		u.User = url.UserPassword(p.User, p.Password)
	} else if p.User != "" {
		u.User = url.User(p.User)
	}
	return u.String()
}
