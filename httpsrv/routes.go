package httpsrv

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi"

	"github.com/rtstepper/rtstepperd/dispatch"
	"github.com/rtstepper/rtstepperd/gcode"
	"github.com/rtstepper/rtstepperd/result"
	"github.com/rtstepper/rtstepperd/session"
)

// Server embeds a Dispatcher/Session pair behind the HTTP routes a CLI or
// UI client drives the dongle through: motion control (mdi/auto/cancel),
// safety (estop), and status (position/state).
type Server struct {
	Disp *dispatch.Dispatcher

	mu      sync.Mutex
	program []gcode.Command
	pc      int
	running bool
}

// New constructs a Server wrapping disp.
func New(disp *dispatch.Dispatcher) *Server {
	return &Server{Disp: disp}
}

func (s *Server) sess() *session.Session { return s.Disp.Sess }

// Routes returns the full route table.
func (s *Server) Routes() RouteTable {
	return RouteTable{
		{http.MethodPost, "/estop"}:            doAction(s.estop),
		{http.MethodPost, "/estop/reset"}:      doAction(s.estopReset),
		{http.MethodPost, "/home"}:             doAction(s.home),
		{http.MethodPost, "/pause"}:            doAction(s.pause),
		{http.MethodPost, "/resume"}:           doAction(s.resume),
		{http.MethodPost, "/mdi"}:              http.HandlerFunc(s.mdi),
		{http.MethodPost, "/auto"}:             http.HandlerFunc(s.autoStart),
		{http.MethodPost, "/auto/cancel"}:      doAction(s.autoCancel),
		{http.MethodGet, "/auto/status"}:       http.HandlerFunc(s.autoStatus),
		{http.MethodGet, "/position"}:          http.HandlerFunc(s.position),
		{http.MethodGet, "/state"}:             http.HandlerFunc(s.state),
		{http.MethodGet, "/axis/{axis}/input"}: http.HandlerFunc(s.axisInput),
	}
}

// Bind attaches every route onto mux.
func (s *Server) Bind(mux chi.Router) { s.Routes().Bind(mux) }

func (s *Server) estop() error {
	s.sess().Estop()
	return nil
}

func (s *Server) estopReset() error {
	s.sess().EstopReset()
	return nil
}

func (s *Server) home() error {
	s.sess().SetHomed()
	return nil
}

func (s *Server) pause() error {
	s.sess().Pause()
	return nil
}

func (s *Server) resume() error {
	s.sess().Resume()
	return nil
}

type mdiRequest struct {
	Line string `json:"line"`
}

type codeResponse struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

func writeCode(w http.ResponseWriter, code result.Code) {
	w.Header().Set("Content-Type", "application/json")
	if code.IsError() {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}
	json.NewEncoder(w).Encode(codeResponse{Code: int(code), Name: code.String()})
}

func (s *Server) mdi(w http.ResponseWriter, r *http.Request) {
	var req mdiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	code, err := s.Disp.MDI(req.Line)
	if err != nil && !code.IsError() {
		writeErr(w, err)
		return
	}
	writeCode(w, code)
}

type autoRequest struct {
	Lines []string `json:"lines"`
}

// autoStart parses every line into a gcode.Command, replacing any program
// already in progress, and runs it to completion or to its first pause.
func (s *Server) autoStart(w http.ResponseWriter, r *http.Request) {
	var req autoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	cmds := make([]gcode.Command, 0, len(req.Lines))
	for _, line := range req.Lines {
		cmd, err := gcode.ParseMDI(line)
		if err != nil {
			writeCode(w, result.InvalidGcodeFile)
			return
		}
		cmds = append(cmds, cmd)
	}

	s.mu.Lock()
	s.program = cmds
	s.pc = 0
	s.running = true
	s.mu.Unlock()

	s.runProgram(w)
}

func (s *Server) runProgram(w http.ResponseWriter) {
	s.mu.Lock()
	remaining := s.program[s.pc:]
	s.mu.Unlock()

	code, ran, err := s.Disp.Auto(remaining)

	s.mu.Lock()
	s.pc += ran
	s.running = code == result.ProgramPaused
	s.mu.Unlock()

	if err != nil && !code.IsError() {
		writeErr(w, err)
		return
	}
	writeCode(w, code)
}

// autoCancel marks the session canceled; the next Auto/resume call observes
// it and stops advancing the queued program.
func (s *Server) autoCancel() error {
	s.sess().CancelSet()
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

type autoStatusResponse struct {
	Running bool `json:"running"`
	Next    int  `json:"next"`
	Total   int  `json:"total"`
}

func (s *Server) autoStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := autoStatusResponse{Running: s.running, Next: s.pc, Total: len(s.program)}
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	p := s.sess().Position()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PoseT{X: p.X, Y: p.Y, Z: p.Z, A: p.A, B: p.B, C: p.C, U: p.U, V: p.V, W: p.W})
}

type stateResponse struct {
	Bits     uint32 `json:"bits"`
	Estopped bool   `json:"estopped"`
	Canceled bool   `json:"canceled"`
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	sess := s.sess()
	bits := sess.StateBits()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stateResponse{
		Bits:     bits,
		Estopped: sess.IsEstopped(),
		Canceled: sess.IsCanceled(),
	})
}

// axisInput reports whether the named axis's configured digital input bit
// (reported by the dongle on the status word, not modeled per-axis by the
// hardware itself) is set; this endpoint exists for parity with every other
// axis-scoped route even though the dongle only exposes four undifferentiated
// input lines rather than one per axis.
func (s *Server) axisInput(w http.ResponseWriter, r *http.Request) {
	axis := chi.URLParam(r, "axis")
	found := false
	for _, a := range s.sess().Axes {
		if a.Name == axis {
			found = true
			break
		}
	}
	if !found {
		http.Error(w, "unknown axis "+axis, http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BoolT{Bool: false})
}
