package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/docforge/internal/artifact"
	"github.com/foxzi/docforge/internal/audit"
	"github.com/foxzi/docforge/internal/batch"
	"github.com/foxzi/docforge/internal/config"
	"github.com/foxzi/docforge/internal/dkim"
	"github.com/foxzi/docforge/internal/document"
	"github.com/foxzi/docforge/internal/metrics"
	"github.com/foxzi/docforge/internal/notify"
	"github.com/foxzi/docforge/internal/render"
	"github.com/foxzi/docforge/internal/template"
)

// Core holds the stores and services shared by the server and the CLI
type Core struct {
	DB          *bolt.DB
	Templates   *template.Storage
	Documents   *document.Storage
	Audit       *audit.Storage
	Results     *batch.ResultStore
	Outbox      *notify.Outbox
	Artifacts   artifact.Store
	Service     *batch.Service
	DefaultKind render.Kind
	Sandbox     bool
	Logger      *slog.Logger
}

// Open opens the database and builds every store and service
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(cfg.Storage.Path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	core, err := build(ctx, db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return core, nil
}

func build(ctx context.Context, db *bolt.DB, cfg *config.Config, logger *slog.Logger) (*Core, error) {
	templates, err := template.NewStorage(db)
	if err != nil {
		return nil, err
	}
	documents, err := document.NewStorage(db)
	if err != nil {
		return nil, err
	}
	auditStore, err := audit.NewStorage(db)
	if err != nil {
		return nil, err
	}
	results, err := batch.NewResultStore(db)
	if err != nil {
		return nil, err
	}
	outbox, err := notify.NewOutbox(db)
	if err != nil {
		return nil, err
	}

	artifacts, err := newArtifactStore(ctx, cfg.Artifacts)
	if err != nil {
		return nil, err
	}

	dispatcher, err := newDispatcher(cfg, outbox, logger.With("component", "notify"))
	if err != nil {
		return nil, err
	}

	loc, err := cfg.Render.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid render.output_timezone: %w", err)
	}
	kind, err := render.ParseKind(cfg.Render.DefaultFormat)
	if err != nil {
		return nil, fmt.Errorf("invalid render.default_format: %w", err)
	}

	engine := render.NewEngine(render.Options{DateLayout: cfg.Render.DateLayout, Location: loc})
	gen := batch.NewGenerator(engine, artifacts, documents, templates)
	service := batch.NewService(gen, dispatcher, auditStore, logger.With("component", "batch"))
	service.SetResultStore(results)

	return &Core{
		DB:          db,
		Templates:   templates,
		Documents:   documents,
		Audit:       auditStore,
		Results:     results,
		Outbox:      outbox,
		Artifacts:   artifacts,
		Service:     service,
		DefaultKind: kind,
		Sandbox:     cfg.Mail.Enabled && cfg.Mail.Mode == config.MailModeSandbox,
		Logger:      logger,
	}, nil
}

// Close closes the database
func (c *Core) Close() error {
	return c.DB.Close()
}

// StoreStats implements metrics.StatsProvider
func (c *Core) StoreStats(ctx context.Context) (*metrics.StoreStats, error) {
	docs, err := c.Documents.Stats(ctx)
	if err != nil {
		return nil, err
	}
	tmpls, err := c.Templates.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return &metrics.StoreStats{Documents: docs.Total, ActiveTemplates: tmpls.Active}, nil
}

func newArtifactStore(ctx context.Context, cfg config.ArtifactsConfig) (artifact.Store, error) {
	switch cfg.Backend {
	case "", "fs":
		store, err := artifact.NewFSStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("failed to create artifact directory: %w", err)
		}
		return store, nil
	case "s3":
		store, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			UseSSL:    cfg.S3.UseSSL,
			Region:    cfg.S3.Region,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx, cfg.S3.Region); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown artifacts.backend %q", cfg.Backend)
}

// newDispatcher builds the mail chain: relay or sandbox, DKIM, then throttling
func newDispatcher(cfg *config.Config, outbox *notify.Outbox, logger *slog.Logger) (notify.Dispatcher, error) {
	mail := cfg.Mail
	if !mail.Enabled {
		logger.Info("email delivery disabled")
		return notify.Disabled{}, nil
	}

	from := notify.Sender{Address: mail.From, Name: mail.FromName}

	var d notify.Dispatcher
	switch mail.Mode {
	case config.MailModeSandbox:
		d = notify.NewSandboxDispatcher(outbox, from, logger)
		logger.Info("email sandbox enabled, messages are captured in the outbox")
	default:
		var signer *dkim.Signer
		if mail.DKIM.Enabled {
			s, err := dkim.Load(dkim.Config{
				Domain:   mail.DKIM.Domain,
				Selector: mail.DKIM.Selector,
				KeyFile:  mail.DKIM.KeyFile,
			})
			if err != nil {
				return nil, err
			}
			signer = s
			logger.Info("DKIM signing enabled", "domain", mail.DKIM.Domain, "selector", mail.DKIM.Selector)
		}
		d = notify.NewSMTPDispatcher(notify.SMTPConfig{
			Addr:               mail.RelayAddr,
			Hostname:           mail.Hostname,
			Username:           mail.Username,
			Password:           mail.Password,
			StartTLS:           mail.StartTLS,
			InsecureSkipVerify: mail.InsecureSkipVerify,
			Timeout:            mail.Timeout,
		}, from, signer, logger)
		logger.Info("email relay configured", "relay", mail.RelayAddr)
	}

	if mail.RatePerSecond > 0 {
		d = notify.NewRateLimited(d, mail.RatePerSecond, mail.Burst)
	}
	return d, nil
}
