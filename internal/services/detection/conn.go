package detection

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrBackoff is returned while the connection waits out a failure streak.
var ErrBackoff = errors.New("vision service in backoff period after consecutive failures")

// Invoker sends one unary call with structpb bodies.
type Invoker interface {
	Invoke(ctx context.Context, method string, req, reply *structpb.Struct) error
}

// Conn is a gRPC connection to a vision service with exponential backoff
// after consecutive failures (1s, 2s, 4s ... capped at maxBackoff).
type Conn struct {
	name     string
	endpoint string
	conn     *grpc.ClientConn

	mu               sync.Mutex
	consecutiveFails int
	lastFailTime     time.Time
	maxBackoff       time.Duration
	now              func() time.Time
}

// Dial prepares a lazy connection; nothing is sent until the first call.
func Dial(name, endpoint string) (*Conn, error) {
	target, creds, err := ParseEndpoint(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s endpoint %s: %w", name, endpoint, err)
	}

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s at %s: %w", name, target, err)
	}

	log.Info().
		Str("service", name).
		Str("original_endpoint", endpoint).
		Str("normalized_endpoint", target).
		Bool("use_tls", creds.Info().SecurityProtocol == "tls").
		Msg("Vision gRPC connection initialized")

	return &Conn{
		name:       name,
		endpoint:   target,
		conn:       conn,
		maxBackoff: 30 * time.Second,
		now:        time.Now,
	}, nil
}

func (c *Conn) Invoke(ctx context.Context, method string, req, reply *structpb.Struct) error {
	if !c.shouldRetry() {
		return ErrBackoff
	}
	if err := c.conn.Invoke(ctx, method, req, reply); err != nil {
		c.recordFailure()
		return fmt.Errorf("%s call %s failed: %w", c.name, method, err)
	}

	c.mu.Lock()
	c.consecutiveFails = 0
	c.mu.Unlock()
	return nil
}

func (c *Conn) Endpoint() string {
	return c.endpoint
}

// Healthy is false while the channel is in a failure state.
func (c *Conn) Healthy() bool {
	state := c.conn.GetState()
	return state != connectivity.TransientFailure && state != connectivity.Shutdown
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) shouldRetry() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consecutiveFails == 0 {
		return true
	}
	return c.now().Sub(c.lastFailTime) >= backoffFor(c.consecutiveFails, c.maxBackoff)
}

func (c *Conn) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFails++
	c.lastFailTime = c.now()

	if c.consecutiveFails <= 5 {
		log.Warn().
			Str("service", c.name).
			Int("consecutive_fails", c.consecutiveFails).
			Msg("Vision service failure recorded")
	}
}

func backoffFor(fails int, max time.Duration) time.Duration {
	if fails <= 0 {
		return 0
	}
	if fails > 16 {
		return max
	}
	d := time.Duration(1<<uint(fails-1)) * time.Second
	if d > max {
		return max
	}
	return d
}

// ParseEndpoint normalizes host[:port] or http(s):// URLs into a dial target
// and picks TLS for https and the usual TLS ports.
func ParseEndpoint(endpoint string) (string, credentials.TransportCredentials, error) {
	if endpoint == "" {
		return "", nil, errors.New("empty endpoint")
	}

	if !strings.Contains(endpoint, "://") {
		if strings.Contains(endpoint, ".") && !strings.Contains(endpoint, ":") {
			endpoint = "https://" + endpoint + ":443"
		} else if strings.Contains(endpoint, ":") {
			parts := strings.Split(endpoint, ":")
			scheme := "http://"
			if len(parts) == 2 {
				if port, err := strconv.Atoi(parts[1]); err == nil && (port == 443 || port == 8443 || port == 9443) {
					scheme = "https://"
				}
			}
			endpoint = scheme + endpoint
		} else {
			endpoint = "http://" + endpoint + ":80"
		}
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", nil, fmt.Errorf("invalid endpoint URL: %w", err)
	}

	host := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "https":
			host = u.Hostname() + ":443"
		case "http":
			host = u.Hostname() + ":80"
		default:
			return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
		}
	}

	var creds credentials.TransportCredentials
	switch u.Scheme {
	case "https":
		creds = credentials.NewTLS(&tls.Config{ServerName: u.Hostname()})
	case "http":
		creds = insecure.NewCredentials()
	default:
		return "", nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}

	return host, creds, nil
}
