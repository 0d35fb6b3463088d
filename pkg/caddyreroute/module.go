package caddyreroute

import (
	"fmt"
	"net/http"
	"time"

	"github.com/caddyserver/caddy/v2"
	"github.com/caddyserver/caddy/v2/caddyconfig/httpcaddyfile"
	"github.com/caddyserver/caddy/v2/modules/caddyhttp"
	"go.uber.org/zap"

	"reroute/internal/docstore"
	"reroute/internal/reroute"
)

func init() {
	caddy.RegisterModule(Reroute{})
	httpcaddyfile.RegisterHandlerDirective("reroute", parseCaddyfile)
}

// stores shares one open document store per path across config reloads;
// goleveldb allows a single handle per directory.
var stores = caddy.NewUsagePool()

type pooledStore struct {
	client docstore.Client
}

func (p pooledStore) Destruct() error {
	if in, ok := p.client.(docstore.Initialized); ok {
		return in.Store.Close()
	}
	return nil
}

// Reroute answers requests whose path matches a stored redirect rule and
// passes everything else to the next handler.
type Reroute struct {
	StorePath    string         `json:"store_path,omitempty"`
	Collection   string         `json:"collection,omitempty"`
	StoreTimeout caddy.Duration `json:"store_timeout,omitempty"`
	// Exclude lists path prefixes that skip resolution. Nil means the
	// default set.
	Exclude []string `json:"exclude,omitempty"`

	logger *zap.Logger
	svc    *reroute.Service
}

// CaddyModule returns the Caddy module information.
func (Reroute) CaddyModule() caddy.ModuleInfo {
	return caddy.ModuleInfo{
		ID:  "http.handlers.reroute",
		New: func() caddy.Module { return new(Reroute) },
	}
}

// Provision implements caddy.Provisioner.
func (m *Reroute) Provision(ctx caddy.Context) error {
	m.logger = ctx.Logger()

	cfg, err := m.config()
	if err != nil {
		return err
	}

	client, err := m.loadStore()
	if err != nil {
		m.logger.Error("open redirect store, serving without redirects",
			zap.String("path", m.StorePath),
			zap.Error(err),
		)
		client = docstore.NotConfigured{Reason: err.Error()}
	}

	src := reroute.NewStoreSource(client, cfg.Store.Collection, m.logger)
	m.svc = reroute.NewService(cfg, src, m.logger)
	m.svc.Start()
	return nil
}

func (m *Reroute) config() (reroute.Config, error) {
	cfg := reroute.DefaultConfig()
	cfg.Store.Path = m.StorePath
	if m.Collection != "" {
		cfg.Store.Collection = m.Collection
	}
	if m.Exclude != nil {
		cfg.Redirects.Exclude = m.Exclude
	}
	if m.StoreTimeout != 0 {
		cfg.Store.Timeout = time.Duration(m.StoreTimeout).String()
	}
	if err := cfg.Normalize(); err != nil {
		return reroute.Config{}, err
	}
	return cfg, nil
}

func (m *Reroute) loadStore() (docstore.Client, error) {
	if m.StorePath == "" {
		return docstore.NotConfigured{Reason: "store_path is not set"}, nil
	}
	v, _, err := stores.LoadOrNew(m.StorePath, func() (caddy.Destructor, error) {
		client, err := docstore.Open(m.StorePath)
		if err != nil {
			return nil, err
		}
		return pooledStore{client: client}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(pooledStore).client, nil
}

// Validate implements caddy.Validator.
func (m *Reroute) Validate() error {
	for i, p := range m.Exclude {
		if p == "" || p[0] != '/' {
			return fmt.Errorf("exclude[%d]: must start with /, got %q", i, p)
		}
	}
	if m.StoreTimeout < 0 {
		return fmt.Errorf("store_timeout: must not be negative")
	}
	return nil
}

// Cleanup implements caddy.CleanerUpper.
func (m *Reroute) Cleanup() error {
	if m.svc != nil {
		m.svc.Close()
	}
	if m.StorePath != "" {
		_, err := stores.Delete(m.StorePath)
		return err
	}
	return nil
}

// ServeHTTP implements caddyhttp.MiddlewareHandler.
func (m *Reroute) ServeHTTP(w http.ResponseWriter, r *http.Request, next caddyhttp.Handler) error {
	if m.svc.Intercept(w, r) {
		return nil
	}
	return next.ServeHTTP(w, r)
}

var (
	_ caddy.Provisioner           = (*Reroute)(nil)
	_ caddy.Validator             = (*Reroute)(nil)
	_ caddy.CleanerUpper          = (*Reroute)(nil)
	_ caddyhttp.MiddlewareHandler = (*Reroute)(nil)
)
