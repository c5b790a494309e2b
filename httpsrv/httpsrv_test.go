package httpsrv

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"

	"github.com/rtstepper/rtstepperd/config"
	"github.com/rtstepper/rtstepperd/dispatch"
	"github.com/rtstepper/rtstepperd/session"
)

func testServer() (*Server, *chi.Mux) {
	d := config.DefaultDaemon()
	d.CycleTime = 1.0 / 1000
	d.VMax = 1.0
	d.AMax = 10.0
	d.QueueSize = 64
	axes := config.AxisTable{
		"x": {StepPin: 2, DirectionPin: 3, StepActiveHigh: true, DirActiveHigh: true, StepsPerUnit: 1000, MaxVelocity: 1, MaxAcceleration: 10, MaxPosLimit: 100, MinPosLimit: -100},
	}
	sess := session.New(d, axes)
	s := New(dispatch.New(sess))
	mux := chi.NewRouter()
	s.Bind(mux)
	return s, mux
}

func doJSON(mux http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestEstopThenStateReportsEstopped(t *testing.T) {
	_, mux := testServer()
	rec := doJSON(mux, http.MethodPost, "/estop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("estop status = %d", rec.Code)
	}

	rec = doJSON(mux, http.MethodGet, "/state", nil)
	var st stateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !st.Estopped || !st.Canceled {
		t.Fatalf("state = %+v, want estopped and canceled", st)
	}
}

func TestEstopResetClearsState(t *testing.T) {
	_, mux := testServer()
	doJSON(mux, http.MethodPost, "/estop", nil)
	doJSON(mux, http.MethodPost, "/estop/reset", nil)

	rec := doJSON(mux, http.MethodGet, "/state", nil)
	var st stateResponse
	json.Unmarshal(rec.Body.Bytes(), &st)
	if st.Estopped || st.Canceled {
		t.Fatalf("state = %+v, want cleared", st)
	}
}

func TestMDIMovesAxisAndReportsPosition(t *testing.T) {
	_, mux := testServer()
	rec := doJSON(mux, http.MethodPost, "/mdi", mdiRequest{Line: "G1 X1.0 F1.0"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mdi status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(mux, http.MethodGet, "/position", nil)
	var p PoseT
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode position: %v", err)
	}
	if p.X != 1.0 {
		t.Fatalf("X = %v, want 1.0", p.X)
	}
}

func TestMDIInvalidLineReturnsInvalidGcodeCode(t *testing.T) {
	_, mux := testServer()
	rec := doJSON(mux, http.MethodPost, "/mdi", mdiRequest{Line: "not gcode"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var cr codeResponse
	json.Unmarshal(rec.Body.Bytes(), &cr)
	if cr.Code != -11 {
		t.Fatalf("code = %d, want -11 (InvalidGcodeFile)", cr.Code)
	}
}

func TestAutoRunsProgramAndReportsStatus(t *testing.T) {
	_, mux := testServer()
	rec := doJSON(mux, http.MethodPost, "/auto", autoRequest{Lines: []string{"G1 X1.0 F1.0", "M30"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("auto status = %d body=%s", rec.Code, rec.Body.String())
	}
	var cr codeResponse
	json.Unmarshal(rec.Body.Bytes(), &cr)
	if cr.Code != 4 {
		t.Fatalf("code = %d, want 4 (ProgramEnd)", cr.Code)
	}

	rec = doJSON(mux, http.MethodGet, "/auto/status", nil)
	var as autoStatusResponse
	json.Unmarshal(rec.Body.Bytes(), &as)
	if as.Next != 2 || as.Total != 2 {
		t.Fatalf("status = %+v, want next=2 total=2", as)
	}
}

func TestEndpointsListsRoutes(t *testing.T) {
	_, mux := testServer()
	rec := doJSON(mux, http.MethodGet, "/endpoints", nil)
	var eps []string
	if err := json.Unmarshal(rec.Body.Bytes(), &eps); err != nil {
		t.Fatalf("decode endpoints: %v", err)
	}
	if len(eps) == 0 {
		t.Fatal("expected a non-empty route listing")
	}
}

func TestAxisInputUnknownAxisIs404(t *testing.T) {
	_, mux := testServer()
	rec := doJSON(mux, http.MethodGet, "/axis/q/input", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
