// Package dbconn provides endpoint parsing and a thin query/exec
// capability against one MySQL-compatible server.
package dbconn

import (
	"crypto/tls"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

const requiredTLSConfigName = "required"

var registerTLSOnce sync.Once

// DBConfig holds connection-level tunables. The defaults match the
// short timeouts a migration wants: a dead endpoint should fail the run
// quickly, not hang it.
type DBConfig struct {
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxOpenConnections int
}

func NewDBConfig() *DBConfig {
	return &DBConfig{
		ConnectTimeout:     5 * time.Second,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxOpenConnections: 2,
	}
}

// initRequiredTLS registers the TLS config used for ssl-mode=REQUIRED.
// REQUIRED means encryption only, no certificate verification, matching
// the semantics of the service URI option.
func initRequiredTLS() {
	registerTLSOnce.Do(func() {
		_ = mysql.RegisterTLSConfig(requiredTLSConfigName, &tls.Config{
			InsecureSkipVerify: true,
		})
	})
}

// newDSN builds the driver DSN for an endpoint. Parameters are
// interpolated client side because several replication statements
// (CHANGE REPLICATION SOURCE TO among them) cannot be prepared.
func (e *Endpoint) newDSN(config *DBConfig) string {
	cfg := mysql.NewConfig()
	cfg.User = e.Username
	cfg.Passwd = e.Password
	cfg.Net = "tcp"
	cfg.Addr = e.Addr()
	cfg.Timeout = config.ConnectTimeout
	cfg.ReadTimeout = config.ReadTimeout
	cfg.WriteTimeout = config.WriteTimeout
	cfg.InterpolateParams = true
	cfg.AllowNativePasswords = true
	if e.SSLRequired() {
		initRequiredTLS()
		cfg.TLSConfig = requiredTLSConfigName
	}
	return cfg.FormatDSN()
}
