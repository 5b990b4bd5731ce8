package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/mesisim/hooks"
	"github.com/example/mesisim/logging"
	"github.com/example/mesisim/system"
)

// Server is the stateless read-only web view over a running System
// (SPEC_FULL.md §9), grounded on the teacher's WebServer but trimmed to
// GET-only inspection endpoints: this system has no pause/resume/reset
// control surface, since the coherence engine's semantics don't depend on
// whether anyone is watching.
type Server struct {
	sys    *system.System
	hub    *hub
	log    *logging.Logger
	router *mux.Router
	http   *http.Server
}

// New builds a dashboard Server bound to addr, serving state from sys.
// If broker is non-nil, the server subscribes to bus-transaction events so
// connected WebSocket clients see live updates during `run`.
func New(addr string, sys *system.System, broker *hooks.Broker, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	srv := &Server{
		sys: sys,
		hub: newHub(log),
		log: log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/caches", srv.handleCaches).Methods(http.MethodGet)
	r.HandleFunc("/api/mem", srv.handleMem).Methods(http.MethodGet)
	r.HandleFunc("/api/log", srv.handleLog).Methods(http.MethodGet)
	r.HandleFunc("/ws", srv.handleWS)
	r.HandleFunc("/", srv.handleIndex).Methods(http.MethodGet)
	srv.router = r

	srv.http = &http.Server{
		Addr:    addr,
		Handler: r,
	}

	broker.OnBusTransaction(func(hooks.BusTransactionEvent) {
		srv.hub.pushSnapshot(srv)
	})

	return srv
}

// Start launches the HTTP server in a background goroutine.
func (srv *Server) Start() error {
	go func() {
		if err := srv.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srv.log.Errorf("dashboard server stopped: %v", err)
		}
	}()
	return nil
}

// Close shuts the HTTP server down.
func (srv *Server) Close() error {
	return srv.http.Close()
}

func (srv *Server) handleCaches(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshotCaches(srv.sys)); err != nil {
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
	}
}

func (srv *Server) handleMem(w http.ResponseWriter, r *http.Request) {
	addr, err := strconv.ParseUint(r.URL.Query().Get("addr"), 0, 64)
	if err != nil {
		http.Error(w, "invalid addr", http.StatusBadRequest)
		return
	}
	count := 8
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid count", http.StatusBadRequest)
			return
		}
		count = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshotMem(srv.sys, addr, count)); err != nil {
		http.Error(w, "failed to encode snapshot", http.StatusInternalServerError)
	}
}

// handleLog returns the recent tail of every component's structured log
// entries (cache/bus/pe transitions, evictions, writebacks, invariant
// warnings) that --verbose would otherwise only print to stdout.
func (srv *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(srv.log.Recent()); err != nil {
		http.Error(w, "failed to encode log", http.StatusInternalServerError)
	}
}

func (srv *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	srv.hub.handle(srv, w, r)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>mesisim dashboard</title></head>
<body>
<h1>MESI cache state</h1>
<pre id="out">connecting...</pre>
<script>
const out = document.getElementById("out");
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => { out.textContent = JSON.stringify(JSON.parse(ev.data), null, 2); };
ws.onerror = () => { out.textContent = "websocket error"; };
</script>
</body>
</html>`

func (srv *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(indexPage))
}
