package e2e

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/require"

	"github.com/hobeen-kim/postgres-mcp/internal/config"
	"github.com/hobeen-kim/postgres-mcp/internal/database"
	"github.com/hobeen-kim/postgres-mcp/internal/policy"
	"github.com/hobeen-kim/postgres-mcp/internal/proxy"
)

var (
	db    *database.DB
	dbCfg config.Database
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(0)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not connect to docker: %s", err)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_PASSWORD=password",
			"POSTGRES_USER=postgres",
			"POSTGRES_DB=app",
			"listen_addresses = '*'",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres resource: %s", err)
	}

	hostAndPort := resource.GetHostPort("5432/tcp")
	host, portStr, _ := strings.Cut(hostAndPort, ":")
	port, _ := strconv.Atoi(portStr)

	dbCfg = config.Database{
		Host:               host,
		Port:               port,
		User:               "postgres",
		Password:           "password",
		DBName:             "app",
		PoolMax:            5,
		CommandTimeoutS:    10,
		StatementTimeoutMS: 15000,
		MaxRows:            200,
	}

	if err := pool.Retry(func() error {
		var err error
		db, err = database.Connect(context.Background(), dbCfg)
		return err
	}); err != nil {
		log.Fatalf("Could not connect to database: %s", err)
	}

	code := m.Run()

	db.Close()
	if err := pool.Purge(resource); err != nil {
		log.Fatalf("Could not purge resource: %s", err)
	}
	os.Exit(code)
}

// startProxy brings up a wire proxy with its own gate on the given port and
// returns a connection string for it. Proxies have no shutdown; each test
// uses its own port and the process exit reaps them.
func startProxy(t *testing.T, mode policy.AccessMode, port int) string {
	t.Helper()

	gate, err := policy.NewGate(mode, 0)
	require.NoError(t, err)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	p := proxy.New(db.Pool(), gate, addr)
	go func() {
		if err := p.ListenAndServe(); err != nil {
			log.Printf("proxy on %s exited: %s", addr, err)
		}
	}()
	waitForPort(t, addr)

	// Simple protocol keeps each statement one round trip, the way psql
	// drives a session.
	return fmt.Sprintf("postgres://postgres:password@%s/app?sslmode=disable&default_query_exec_mode=simple_protocol", addr)
}

func waitForPort(t *testing.T, addr string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("proxy at %s never came up", addr)
}
