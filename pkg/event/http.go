package event

import (
	"encoding/json"
	"io/ioutil"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

type requestLogger struct {
	log.FieldLogger
}

func (l *requestLogger) Print(v ...interface{}) {
	l.FieldLogger.Info(v...)
}

// NewHTTPHandler returns the event ingress API: notification intake, health
// and metrics. The intake endpoint accepts the same event documents the
// one-shot handler does and responds with the BatchResult, using its status
// code (200 fully succeeded, 207 partially succeeded).
func NewHTTPHandler(logger log.FieldLogger, rt *Router) http.Handler {
	logger = logger.WithField("component", "api")
	router := chi.NewRouter()
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &requestLogger{logger}}))

	router.Post("/v1/events", func(w http.ResponseWriter, r *http.Request) {
		body, err := ioutil.ReadAll(r.Body)
		if err != nil {
			writeResponseAsJSON(logger, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		result := rt.HandleEvent(body)
		writeResponseAsJSON(logger, w, result.StatusCode, result)
	})

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeResponseAsJSON(logger, w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Handle("/metrics", promhttp.Handler())

	return router
}

func writeResponseAsJSON(logger log.FieldLogger, w http.ResponseWriter, code int, obj interface{}) {
	enc, err := json.Marshal(obj)
	if err != nil {
		logger.WithError(err).Error("error marshaling json response")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(enc)
}
