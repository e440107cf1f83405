package main

import (
	"net/http"
	"time"

	"github.com/navipesca/weighsync/internal/auth"
	"github.com/navipesca/weighsync/internal/config"
	"github.com/navipesca/weighsync/internal/connectivity"
	"github.com/navipesca/weighsync/internal/database"
	"github.com/navipesca/weighsync/internal/ids"
	"github.com/navipesca/weighsync/internal/localstore"
	"github.com/navipesca/weighsync/internal/logging"
	"github.com/navipesca/weighsync/internal/offline"
	"github.com/navipesca/weighsync/internal/remote"
	"github.com/navipesca/weighsync/internal/server"
	"github.com/navipesca/weighsync/internal/syncer"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// application holds the wired components shared by every command.
type application struct {
	config  config.AppConfig
	logger  *zap.Logger
	drafts  *offline.DraftStore
	queue   *offline.Queue
	session *auth.Session
	client  *remote.Client
	probe   *connectivity.Probe
	sync    *syncer.Service
	events  *server.EventDispatcher
	close   func()
}

func newApplication() (*application, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	store, err := localstore.NewSQLiteStore(localstore.SQLiteStoreConfig{Database: db, Clock: time.Now, Logger: logger})
	if err != nil {
		return nil, err
	}
	generator := ids.NewUUIDGenerator()
	drafts, err := offline.NewDraftStore(offline.DraftStoreConfig{Store: store, Clock: time.Now, IDGenerator: generator, Logger: logger})
	if err != nil {
		return nil, err
	}
	queue, err := offline.NewQueue(offline.QueueConfig{Store: store, Clock: time.Now, IDGenerator: generator, Logger: logger})
	if err != nil {
		return nil, err
	}

	events := server.NewEventDispatcher()
	session := auth.NewSession(auth.SessionConfig{
		Token:  appConfig.APIToken,
		Clock:  time.Now,
		Logger: logger,
		OnTerminate: func(reason string) {
			events.Publish(server.Event{Type: server.EventSessionTerminated, Reason: reason})
		},
	})

	httpClient := &http.Client{Timeout: appConfig.APITimeout}
	client, err := remote.NewClient(remote.ClientConfig{
		BaseURL:     appConfig.APIBaseURL,
		HTTPClient:  httpClient,
		Credentials: session,
		OnUnauthorized: func() {
			session.Terminate("backend rejected credential")
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	probe, err := connectivity.NewProbe(connectivity.ProbeConfig{URL: appConfig.APIBaseURL, HTTPClient: httpClient, Logger: logger})
	if err != nil {
		return nil, err
	}

	engine, err := syncer.NewEngine(syncer.EngineConfig{
		Submitter: client,
		Operator:  appConfig.OperatorName,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	service, err := syncer.NewService(syncer.ServiceConfig{
		Queue:        queue,
		Drafts:       drafts,
		Engine:       engine,
		Credentials:  session,
		Connectivity: probe,
		Notify:       events.SyncNotifier(queue),
		Clock:        time.Now,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	return &application{
		config:  appConfig,
		logger:  logger,
		drafts:  drafts,
		queue:   queue,
		session: session,
		client:  client,
		probe:   probe,
		sync:    service,
		events:  events,
		close: func() {
			_ = sqlDB.Close()
			_ = logger.Sync()
		},
	}, nil
}
