// Package mockfirenet provides an in-process simulation of the Rika Firenet
// cloud API, for use as a stand-in backend when exercising the bridge in an
// orchestrated test environment. It implements the subset of the real service
// that the bridge talks to: form login with a session cookie, the stove
// summary page, and the per-stove status and controls endpoints.
package mockfirenet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"

	"github.com/hass-mqtt-bridge/platform-harness/framework"
)

const sessionCookieName = "connect.sid"

// Credentials are the email and password the mock accepts at /web/login.
type Credentials struct {
	Email    string
	Password string
}

// Sensors mirrors the sensor block of a stove status document. Temperature
// values are strings because that is how the real service reports them.
type Sensors struct {
	InputRoomTemperature      string `json:"inputRoomTemperature"`
	InputFlameTemperature     int    `json:"inputFlameTemperature"`
	InputBakeTemperature      string `json:"inputBakeTemperature"`
	StatusMainState           int    `json:"statusMainState"`
	StatusSubState            int    `json:"statusSubState"`
	StatusWifiStrength        int    `json:"statusWifiStrength"`
	ParameterFeedRateTotal    int    `json:"parameterFeedRateTotal"`
	ParameterRuntimePellets   int    `json:"parameterRuntimePellets"`
	ParameterIgnitionCount    int    `json:"parameterIgnitionCount"`
	ParameterOnOffCycleCount  int    `json:"parameterOnOffCycleCount"`
	ParameterErrorCount       int    `json:"parameterErrorCount"`
	ParameterVersionMainBoard int    `json:"parameterVersionMainBoard"`
}

// Controls mirrors the writable control block of a stove status document.
type Controls struct {
	OnOff             bool   `json:"onOff"`
	OperatingMode     int    `json:"operatingMode"`
	HeatingPower      int    `json:"heatingPower"`
	TargetTemperature string `json:"targetTemperature"`
	Revision          int    `json:"revision"`
}

// StoveFixture is the mutable state of one simulated stove.
type StoveFixture struct {
	ID              string   `json:"stoveID"`
	Name            string   `json:"name"`
	OEM             string   `json:"oem"`
	StoveType       string   `json:"stoveType"`
	LastSeenMinutes int      `json:"lastSeenMinutes"`
	Sensors         Sensors  `json:"sensors"`
	Controls        Controls `json:"controls"`
}

// Server is the mock Firenet backend. Zero stoves is a valid state: the
// summary page is simply empty. Use AddStove and UpdateStove to shape what
// the bridge discovers.
type Server struct {
	router *mux.Router
	logger framework.Logger

	mu       sync.Mutex
	creds    Credentials
	stoves   map[string]*StoveFixture
	order    []string
	sessions map[string]bool
	logins   int
}

func NewServer(creds Credentials, logger framework.Logger) *Server {
	if logger == nil {
		logger = framework.NullLogger()
	}
	s := &Server{
		logger:   logger,
		creds:    creds,
		stoves:   make(map[string]*StoveFixture),
		sessions: make(map[string]bool),
	}
	r := mux.NewRouter()
	r.HandleFunc("/web/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/web/logout", s.handleLogout).Methods("GET")
	r.HandleFunc("/web/summary", s.handleSummary).Methods("GET")
	r.HandleFunc("/api/client/{stoveId}/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/api/client/{stoveId}/controls", s.handleControls).Methods("POST")
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.logger.Printf("mockfirenet: %s %s", r.Method, r.URL.Path)
	s.router.ServeHTTP(w, r)
}

// AddStove registers a stove. Stoves appear on the summary page in the order
// they were added.
func (s *Server) AddStove(fixture StoveFixture) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.stoves[fixture.ID]; !exists {
		s.order = append(s.order, fixture.ID)
	}
	copied := fixture
	s.stoves[fixture.ID] = &copied
}

// UpdateStove mutates a stove's state in place, e.g. to advance a sensor
// reading mid-test. It is a no-op for unknown ids.
func (s *Server) UpdateStove(id string, update func(*StoveFixture)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fixture, ok := s.stoves[id]; ok {
		update(fixture)
	}
}

// LoginCount reports how many successful logins the mock has seen.
func (s *Server) LoginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.PostFormValue("email") != s.creds.Email || r.PostFormValue("password") != s.creds.Password {
		s.logger.Printf("mockfirenet: rejected login for %q", r.PostFormValue("email"))
		http.Redirect(w, r, "/web/login?failed", http.StatusFound)
		return
	}
	token := newSessionToken()
	s.sessions[token] = true
	s.logins++
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: token, Path: "/"})
	http.Redirect(w, r, "/web/summary", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.Redirect(w, r, "/web/login", http.StatusFound)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		http.Redirect(w, r, "/web/login", http.StatusFound)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><ul id=\"stoveList\">")
	for _, id := range s.order {
		fixture := s.stoves[id]
		fmt.Fprintf(w, "<li><a href=\"/web/stove/%s\">%s</a></li>", fixture.ID, fixture.Name)
	}
	fmt.Fprint(w, "</ul></body></html>")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fixture, ok := s.stoves[mux.Vars(r)["stoveId"]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fixture)
}

func (s *Server) handleControls(w http.ResponseWriter, r *http.Request) {
	if !s.authenticated(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fixture, ok := s.stoves[mux.Vars(r)["stoveId"]]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if revision, err := strconv.Atoi(r.PostFormValue("revision")); err != nil || revision != fixture.Controls.Revision {
		// same behavior as the real service: stale control writes are refused
		w.WriteHeader(http.StatusConflict)
		return
	}
	if v := r.PostFormValue("onOff"); v != "" {
		fixture.Controls.OnOff = v == "true" || v == "1"
	}
	if v := r.PostFormValue("operatingMode"); v != "" {
		if mode, err := strconv.Atoi(v); err == nil {
			fixture.Controls.OperatingMode = mode
		}
	}
	if v := r.PostFormValue("heatingPower"); v != "" {
		if power, err := strconv.Atoi(v); err == nil {
			fixture.Controls.HeatingPower = power
		}
	}
	if v := r.PostFormValue("targetTemperature"); v != "" {
		fixture.Controls.TargetTemperature = v
	}
	fixture.Controls.Revision++
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"stoveID":%q,"revision":%d}`, fixture.ID, fixture.Controls.Revision)
}

func (s *Server) authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[cookie.Value]
}

func newSessionToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
