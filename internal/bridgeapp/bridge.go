package bridgeapp

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"time"

	"github.com/fr3shw3b/xwire/pkg/bridge"
	"github.com/fr3shw3b/xwire/pkg/config"
	"github.com/fr3shw3b/xwire/pkg/sessions"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/joho/godotenv"
)

func Run(port int) error {
	err := godotenv.Load(".env.bridge")
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Failed to load environment variables: ", err)
	}

	conf, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration for bridge: ", err)
	}

	logger := newLogger(conf.LogLevel)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := sessions.NewInMemoryStore(
		&sessions.InMemoryStoreParams{
			ExpireAfterIdleTime: conf.SessionIdleTimeExpiry,
		},
		logger,
	)

	br := bridge.NewDefaultBridge(
		&bridge.BridgeParams{
			Display:              conf.Display,
			AllowDisplayOverride: conf.AllowDisplayOverride,
			MaxDialAttempts:      conf.MaxDialAttempts,
			Metrics:              bridge.NewMetrics(reg),
		},
		store,
		logger,
	)

	router := mux.NewRouter()
	router.Handle("/", br)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// The websocket upgrade clears these deadlines, so they only bound the
	// handshake and metrics scrapes.
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		ReadTimeout:       1 * time.Second,
		WriteTimeout:      1 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		Handler:           router,
	}

	logger.Infof("Bridge listening on port %d, relaying to display %s", port, conf.Display)
	return httpSrv.ListenAndServe()
}

func newLogger(level string) *logrus.Logger {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = "2006-01-02T15:04:05.999999999Z07:00"
	customFormatter.FullTimestamp = true
	logger := logrus.New()
	logger.SetFormatter(customFormatter)
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}
