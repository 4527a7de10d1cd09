package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/warriorguo/featureflow/features"
	"github.com/warriorguo/featureflow/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the engine over HTTP",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

type startRequest struct {
	List       string         `json:"list"`
	Experiment map[string]any `json:"experiment,omitempty"`
}

type startResponse struct {
	ID string `json:"id"`
}

// statusCode maps engine errors onto HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsAlreadyExists(err):
		return http.StatusConflict
	case errors.IsNotValid(err), errors.IsBadRequest(err), types.IsConstructionError(err):
		return http.StatusBadRequest
	case errors.IsMethodNotAllowed(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func httpError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusCode(err))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("encode response: %v", err)
	}
}

func writeDOT(w http.ResponseWriter, dot string) {
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.Write([]byte(dot))
}

/**
 * newRouter exposes the rig:
 *
 *	GET    /featurelists
 *	GET    /featurelists/{name}/dot
 *	POST   /acquisitions/{id}           body {"list": ..., "experiment": {...}}
 *	GET    /acquisitions/{id}
 *	GET    /acquisitions/{id}/dot
 *	GET    /acquisitions/{id}/records
 *	DELETE /acquisitions/{id}
 */
func newRouter(ctx context.Context, r *rig) chi.Router {
	mux := chi.NewRouter()

	mux.Get("/featurelists", func(w http.ResponseWriter, req *http.Request) {
		names, err := r.engine.ListFeatureListNames()
		if err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, names)
	})
	mux.Get("/featurelists/{name}/dot", func(w http.ResponseWriter, req *http.Request) {
		dot, err := r.engine.RenderFeatureList(chi.URLParam(req, "name"))
		if err != nil {
			httpError(w, err)
			return
		}
		writeDOT(w, dot)
	})

	mux.Route("/acquisitions/{id}", func(sub chi.Router) {
		sub.Post("/", func(w http.ResponseWriter, req *http.Request) {
			body := startRequest{}
			if req.ContentLength != 0 {
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
			}
			defer req.Body.Close()
			if body.List == "" {
				body.List = features.ChannelLoopList
			}
			var exp *types.Experiment
			if body.Experiment != nil {
				exp = types.NewExperiment(types.Data(body.Experiment))
			}

			// the run outlives the request
			id, err := r.start(ctx, body.List, chi.URLParam(req, "id"), exp)
			if err != nil {
				httpError(w, err)
				return
			}
			r.watch(ctx, id)
			writeJSON(w, http.StatusCreated, startResponse{ID: id})
		})
		sub.Get("/", func(w http.ResponseWriter, req *http.Request) {
			status, err := r.engine.GetAcquisitionStatus(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				httpError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, status)
		})
		sub.Get("/dot", func(w http.ResponseWriter, req *http.Request) {
			dot, err := r.engine.RenderAcquisitionStatus(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				httpError(w, err)
				return
			}
			writeDOT(w, dot)
		})
		sub.Get("/records", func(w http.ResponseWriter, req *http.Request) {
			records, err := r.engine.ListAcquisitionRecords(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				httpError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, records)
		})
		sub.Delete("/", func(w http.ResponseWriter, req *http.Request) {
			if err := r.engine.StopAcquisition(req.Context(), chi.URLParam(req, "id")); err != nil {
				httpError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})
	return mux
}

func runServe(cmd *cobra.Command, _ []string) error {
	r, err := loadRig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	srv := &http.Server{Addr: r.cfg.Addr, Handler: newRouter(ctx, r)}
	go func() {
		<-ctx.Done()
		shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		srv.Shutdown(shutdown)
	}()

	log.Infof("featureflow listening on %s", r.cfg.Addr)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if cerr := r.Close(context.Background()); cerr != nil && err == nil {
		err = cerr
	}
	return errors.Trace(err)
}
