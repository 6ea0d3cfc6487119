// Package client provides the runtime client running decoded requests against
// a database, one transaction per request.
package client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/lib/pq"              // PostgreSQL driver

	"github.com/satishbabariya/contentql/internal/debug"
	"github.com/satishbabariya/contentql/query/acl"
	"github.com/satishbabariya/contentql/query/ast"
	"github.com/satishbabariya/contentql/query/executor"
	"github.com/satishbabariya/contentql/query/mutation"
	"github.com/satishbabariya/contentql/query/request"
)

// Client runs queries and mutations of one project
type Client struct {
	db          *sql.DB
	project     *Project
	isolation   IsolationLevel
	middlewares []Middleware
}

// Option configures a client
type Option func(*Client)

// WithIsolation sets the isolation level of request transactions
func WithIsolation(level IsolationLevel) Option {
	return func(c *Client) { c.isolation = level }
}

// WithMiddleware adds request middlewares
func WithMiddleware(m ...Middleware) Option {
	return func(c *Client) { c.middlewares = append(c.middlewares, m...) }
}

// WithMaxOpenConns limits the connection pool
func WithMaxOpenConns(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.db.SetMaxOpenConns(n)
		}
	}
}

// Open connects to the database with driver "postgres" (lib/pq) or "pgx"
func Open(driver, dsn string, project *Project, opts ...Option) (*Client, error) {
	driverName := getDriverName(driver)
	if driverName == "" {
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return New(db, project, opts...), nil
}

// New creates a client over an open database
func New(db *sql.DB, project *Project, opts ...Option) *Client {
	c := &Client{db: db, project: project, isolation: ReadCommitted}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getDriverName maps configured driver names to database/sql driver names
func getDriverName(driver string) string {
	switch driver {
	case "postgresql", "postgres", "":
		return "postgres"
	case "pgx":
		return "pgx"
	default:
		return ""
	}
}

// Ping verifies the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying database connection
func (c *Client) DB() *sql.DB {
	return c.db
}

// Project returns the loaded project
func (c *Client) Project() *Project {
	return c.project
}

// Data holds query results keyed by node alias
type Data map[string]any

// Query runs read nodes in one read-only transaction. List nodes yield a list
// of objects, get nodes an object or nil.
func (c *Client) Query(ctx context.Context, role string, variables acl.Variables, queries []request.Query) (Data, error) {
	factory, err := c.factory(role, variables)
	if err != nil {
		return nil, err
	}
	data := make(Data, len(queries))
	event := &RequestEvent{Operation: OperationQuery, Role: role, Nodes: len(queries)}
	err = c.run(ctx, event, func() error {
		return c.transaction(ctx, true, func(tx *sql.Tx) error {
			sb := executor.NewSelectBuilder(c.project.Schema, executor.NewConn(tx), factory)
			for _, q := range queries {
				result, err := c.query(ctx, sb, q)
				if err != nil {
					return fmt.Errorf("%s: %w", q.Node.NodeAlias(), err)
				}
				data[q.Node.NodeAlias()] = result
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) query(ctx context.Context, sb *executor.SelectBuilder, q request.Query) (any, error) {
	if q.Kind == request.QueryGet {
		obj, err := sb.Get(ctx, q.Entity, q.Node)
		if err != nil || obj == nil {
			return nil, err
		}
		return obj, nil
	}
	return sb.List(ctx, q.Entity, q.Node)
}

// MutationResponse holds mutation results keyed by node alias
type MutationResponse struct {
	OK      bool                       `json:"ok"`
	Results map[string]mutation.Result `json:"results"`
}

// Mutate runs write nodes in one transaction. The transaction is committed
// only when every node succeeds; the first failing node stops the request.
func (c *Client) Mutate(ctx context.Context, role string, variables acl.Variables, nodes []*ast.MutationNode) (MutationResponse, error) {
	factory, err := c.factory(role, variables)
	if err != nil {
		return MutationResponse{}, err
	}
	resp := MutationResponse{OK: true, Results: make(map[string]mutation.Result, len(nodes))}
	event := &RequestEvent{Operation: OperationMutation, Role: role, Nodes: len(nodes)}
	err = c.run(ctx, event, func() error {
		return c.transaction(ctx, false, func(tx *sql.Tx) error {
			exec := mutation.NewExecutor(c.project.Schema, executor.NewConn(tx), factory)
			for _, node := range nodes {
				result, err := exec.Execute(ctx, node)
				if err != nil {
					return fmt.Errorf("%s: %w", mutationAlias(node), err)
				}
				resp.Results[mutationAlias(node)] = result
				if !result.OK {
					resp.OK = false
					return errRollback
				}
			}
			return nil
		})
	})
	if err != nil && err != errRollback {
		return MutationResponse{}, err
	}
	return resp, nil
}

// Execute runs a decoded document. Queries and mutations use separate
// transactions; mutations run first.
func (c *Client) Execute(ctx context.Context, doc *request.Document) (Data, MutationResponse, error) {
	vars := acl.Variables(doc.Variables)
	var resp MutationResponse
	if len(doc.Mutations) > 0 {
		var err error
		if resp, err = c.Mutate(ctx, doc.Role, vars, doc.Mutations); err != nil {
			return nil, MutationResponse{}, err
		}
	}
	if len(doc.Queries) == 0 {
		return Data{}, resp, nil
	}
	data, err := c.Query(ctx, doc.Role, vars, doc.Queries)
	return data, resp, err
}

func (c *Client) factory(role string, variables acl.Variables) (*acl.PredicateFactory, error) {
	perms, err := c.project.Permissions(role)
	if err != nil {
		return nil, err
	}
	return acl.NewPredicateFactory(perms, acl.NewVariableInjector(variables)), nil
}

func (c *Client) run(ctx context.Context, event *RequestEvent, exec func() error) error {
	event.Start = time.Now()
	err := chain(ctx, c.middlewares, event, exec)
	if err != nil && err != errRollback {
		debug.Error("request failed", "operation", string(event.Operation), "role", event.Role, "error", err)
	}
	return err
}

func mutationAlias(node *ast.MutationNode) string {
	if node.Alias != "" {
		return node.Alias
	}
	return string(node.Kind) + node.Entity
}
