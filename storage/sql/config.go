package sql

import (
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/coreoidc/authd/storage"
)

const (
	pgErrUniqueViolation = "23505" // unique_violation

	mysqlErrDupEntry            = 1062
	mysqlErrDupEntryWithKeyName = 1586
	mysqlErrUnknownSysVar       = 1193

	pgSSLVerifyFull = "verify-full"

	mysqlSSLTrue   = "true"
	mysqlSSLCustom = "custom"
)

// NetworkDB contains options common to SQL databases accessed over a network.
type NetworkDB struct {
	Database string
	User     string
	Password string
	Host     string
	Port     uint16

	ConnectionTimeout int // Seconds

	MaxOpenConns    int // default: 5
	MaxIdleConns    int // default: 5
	ConnMaxLifetime int // Seconds, default: not set
}

// SSL represents SSL options for network databases.
type SSL struct {
	Mode     string
	CAFile   string
	KeyFile  string
	CertFile string
}

// Postgres options for creating a Postgres-backed Store.
type Postgres struct {
	NetworkDB

	SSL SSL `json:"ssl" yaml:"ssl"`
}

// Open creates a new Store backed by Postgres.
func (p *Postgres) Open(logger *slog.Logger) (storage.Store, error) {
	return p.open(logger)
}

var strEsc = regexp.MustCompile(`([\\'])`)

func dataSourceStr(s string) string {
	return "'" + strEsc.ReplaceAllString(s, `\$1`) + "'"
}

func (p *Postgres) createDataSourceName() string {
	var params []string
	add := func(k, v string) { params = append(params, fmt.Sprintf("%s=%s", k, v)) }

	add("connect_timeout", strconv.Itoa(p.ConnectionTimeout))

	host, port, err := net.SplitHostPort(p.Host)
	if err != nil {
		host = p.Host
		if p.Port != 0 {
			port = strconv.Itoa(int(p.Port))
		}
	}
	if host != "" {
		add("host", dataSourceStr(host))
	}
	if port != "" {
		add("port", port)
	}
	if p.User != "" {
		add("user", dataSourceStr(p.User))
	}
	if p.Password != "" {
		add("password", dataSourceStr(p.Password))
	}
	if p.Database != "" {
		add("dbname", dataSourceStr(p.Database))
	}
	if p.SSL.Mode == "" {
		add("sslmode", dataSourceStr(pgSSLVerifyFull))
	} else {
		add("sslmode", dataSourceStr(p.SSL.Mode))
	}
	if p.SSL.CAFile != "" {
		add("sslrootcert", dataSourceStr(p.SSL.CAFile))
	}
	if p.SSL.CertFile != "" {
		add("sslcert", dataSourceStr(p.SSL.CertFile))
	}
	if p.SSL.KeyFile != "" {
		add("sslkey", dataSourceStr(p.SSL.KeyFile))
	}
	return strings.Join(params, " ")
}

func (p *Postgres) open(logger *slog.Logger) (*conn, error) {
	db, err := sql.Open("postgres", p.createDataSourceName())
	if err != nil {
		return nil, err
	}

	if p.ConnMaxLifetime != 0 {
		db.SetConnMaxLifetime(time.Duration(p.ConnMaxLifetime) * time.Second)
	}
	if p.MaxIdleConns == 0 {
		db.SetMaxIdleConns(5)
	} else {
		db.SetMaxIdleConns(p.MaxIdleConns)
	}
	if p.MaxOpenConns == 0 {
		db.SetMaxOpenConns(5)
	} else {
		db.SetMaxOpenConns(p.MaxOpenConns)
	}

	errCheck := func(err error) bool {
		pqErr, ok := err.(*pq.Error)
		return ok && pqErr.Code == pgErrUniqueViolation
	}

	c := &conn{db, &flavorPostgres, logger, errCheck}
	if _, err := c.migrate(); err != nil {
		return nil, fmt.Errorf("failed to perform migrations: %v", err)
	}
	return c, nil
}

// MySQL options for creating a MySQL-backed Store.
type MySQL struct {
	NetworkDB

	SSL SSL `json:"ssl" yaml:"ssl"`

	params map[string]string
}

// Open creates a new Store backed by MySQL.
func (s *MySQL) Open(logger *slog.Logger) (storage.Store, error) {
	return s.open(logger)
}

func (s *MySQL) open(logger *slog.Logger) (*conn, error) {
	cfg := mysql.Config{
		User:                 s.User,
		Passwd:               s.Password,
		DBName:               s.Database,
		AllowNativePasswords: true,
		Timeout:              time.Second * time.Duration(s.ConnectionTimeout),
		ParseTime:            true,
		Params: map[string]string{
			"transaction_isolation": "'SERIALIZABLE'",
		},
	}
	if s.Host != "" {
		if s.Host[0] != '/' {
			cfg.Net = "tcp"
			cfg.Addr = s.Host
			if s.Port != 0 {
				cfg.Addr = net.JoinHostPort(s.Host, strconv.Itoa(int(s.Port)))
			}
		} else {
			cfg.Net = "unix"
			cfg.Addr = s.Host
		}
	}

	switch {
	case s.SSL.CAFile != "" || s.SSL.CertFile != "" || s.SSL.KeyFile != "":
		if err := s.makeTLSConfig(); err != nil {
			return nil, fmt.Errorf("failed to make TLS config: %v", err)
		}
		cfg.TLSConfig = mysqlSSLCustom
	case s.SSL.Mode == "":
		cfg.TLSConfig = mysqlSSLTrue
	default:
		cfg.TLSConfig = s.SSL.Mode
	}

	for k, v := range s.params {
		cfg.Params[k] = v
	}

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	if s.MaxIdleConns == 0 {
		db.SetMaxIdleConns(0)
	} else {
		db.SetMaxIdleConns(s.MaxIdleConns)
	}

	if err := db.Ping(); err != nil {
		mysqlErr, ok := err.(*mysql.MySQLError)
		if !ok || mysqlErr.Number != mysqlErrUnknownSysVar {
			return nil, err
		}
		logger.Info("reconnecting with MySQL pre-5.7.20 compatibility mode")
		delete(cfg.Params, "transaction_isolation")
		cfg.Params["tx_isolation"] = "'SERIALIZABLE'"
		if db, err = sql.Open("mysql", cfg.FormatDSN()); err != nil {
			return nil, err
		}
	}

	errCheck := func(err error) bool {
		sqlErr, ok := err.(*mysql.MySQLError)
		return ok && (sqlErr.Number == mysqlErrDupEntry || sqlErr.Number == mysqlErrDupEntryWithKeyName)
	}

	c := &conn{db, &flavorMySQL, logger, errCheck}
	if _, err := c.migrate(); err != nil {
		return nil, fmt.Errorf("failed to perform migrations: %v", err)
	}
	return c, nil
}

func (s *MySQL) makeTLSConfig() error {
	cfg := &tls.Config{}
	if s.SSL.CAFile != "" {
		pool := x509.NewCertPool()
		pem, err := os.ReadFile(s.SSL.CAFile)
		if err != nil {
			return err
		}
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("failed to append PEM")
		}
		cfg.RootCAs = pool
	}
	if s.SSL.CertFile != "" && s.SSL.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.SSL.CertFile, s.SSL.KeyFile)
		if err != nil {
			return err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return mysql.RegisterTLSConfig(mysqlSSLCustom, cfg)
}
