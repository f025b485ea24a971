package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AllowList restricts scrape access to a set of networks. An empty list allows everyone.
type AllowList []netip.Prefix

// ParseAllowList accepts bare addresses and CIDR prefixes. Invalid entries
// are returned as errors and skipped.
func ParseAllowList(entries []string) (AllowList, []error) {
	var (
		list AllowList
		errs []error
	)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid network %q: %w", entry, err))
				continue
			}
			list = append(list, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid address %q: %w", entry, err))
			continue
		}
		addr = addr.Unmap()
		list = append(list, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return list, errs
}

// Allows reports whether addr falls inside one of the networks
func (l AllowList) Allows(addr netip.Addr) bool {
	if len(l) == 0 {
		return true
	}
	addr = addr.Unmap()
	for _, p := range l {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// clientAddr returns the peer address. Forwarding headers are honoured only
// when the peer itself is a loopback proxy.
func clientAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	peer, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	peer = peer.Unmap()
	if !peer.IsLoopback() {
		return peer, true
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap(), true
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap(), true
		}
	}
	return peer, true
}

// Server exposes the registry for scraping plus a health endpoint
type Server struct {
	metrics *Metrics
	addr    string
	path    string
	allow   AllowList
	started time.Time
	logger  *slog.Logger

	httpServer *http.Server
}

// NewServer creates a metrics server open to every client
func NewServer(m *Metrics, addr, path string, logger *slog.Logger) *Server {
	return NewServerWithAllowedIPs(m, addr, path, nil, logger)
}

// NewServerWithAllowedIPs creates a metrics server that only serves
// scrapes from the listed addresses and networks
func NewServerWithAllowedIPs(m *Metrics, addr, path string, allowedIPs []string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}

	allow, errs := ParseAllowList(allowedIPs)
	for _, err := range errs {
		logger.Warn("ignoring metrics allow-list entry", "error", err)
	}
	if len(allow) > 0 {
		logger.Info("metrics access restricted", "networks", len(allow))
	}

	return &Server{
		metrics: m,
		addr:    addr,
		path:    path,
		allow:   allow,
		started: time.Now(),
		logger:  logger,
	}
}

// Handler builds the router. The health endpoint is never filtered so load
// balancers can reach it.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	scrape := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	})
	r.With(s.restrict).Handle(s.path, scrape)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status": "ok",
			"uptime": time.Since(s.started).Round(time.Second).String(),
		})
	})

	return r
}

func (s *Server) restrict(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allow) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		addr, ok := clientAddr(r)
		if !ok || !s.allow.Allows(addr) {
			s.logger.Warn("metrics scrape denied", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe blocks serving metrics until Shutdown
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("metrics server listening", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the server; it is a no-op if it never started
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
