// Package testutil provides an in-memory fake of the necrosis analysis
// backend for tests. It speaks the same REST surface as the real service
// (token auth, DRF-style error maps, trailing-slash routes) and computes
// deterministic pseudo-results from the uploaded bytes.
package testutil

import (
	"archive/zip"
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

// Route names accepted by FailNext and Hits.
const (
	RouteRegister      = "register"
	RouteLogin         = "login"
	RouteUser          = "user"
	RouteUpdateUser    = "update_user"
	RouteResetPassword = "reset_password"
	RouteAnalyze       = "analyze"
	RouteSessions      = "user_sessions"
	RouteResults       = "session_results"
	RouteLatest        = "latest_session_results"
	RouteDelete        = "delete_session"
	RouteRename        = "rename_session"
	RouteDownload      = "download_images"
	RouteClearImages   = "delete_session_images"
)

var lettersOnly = regexp.MustCompile(`^[A-Za-z]+$`)

type user struct {
	Username     string
	Email        string
	Hash         []byte
	Contact      string
	Organisation string
}

type image struct {
	Filename   string
	Lesions    int
	Percentage float64
	Data       []byte
	Purged     bool
}

type analysisSession struct {
	ID        string
	Owner     string
	Name      string
	CreatedAt time.Time
	Images    []image
}

// Backend is a running fake backend.
type Backend struct {
	srv *httptest.Server

	mu       sync.Mutex
	users    map[string]*user // by email
	tokens   map[string]string
	sessions map[string]*analysisSession
	failures map[string][]int
	hits     map[string]int
	uploads  [][]string
	hook     func()
	now      func() time.Time
}

// NewBackend starts a fake backend on a loopback port. Close it when done.
func NewBackend() *Backend {
	b := newBackend()
	b.srv = httptest.NewServer(b.router())
	return b
}

// NewBackendAt starts a fake backend listening on addr (host:port), for
// running outside go test.
func NewBackendAt(addr string) (*Backend, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("testutil: listen %s: %w", addr, err)
	}
	b := newBackend()
	b.srv = httptest.NewUnstartedServer(b.router())
	b.srv.Listener.Close()
	b.srv.Listener = l
	b.srv.Start()
	return b, nil
}

func newBackend() *Backend {
	return &Backend{
		users:    map[string]*user{},
		tokens:   map[string]string{},
		sessions: map[string]*analysisSession{},
		failures: map[string][]int{},
		hits:     map[string]int{},
		now:      time.Now,
	}
}

// URL returns the API base URL, e.g. http://127.0.0.1:port/api.
func (b *Backend) URL() string { return b.srv.URL + "/api" }

// Close shuts the server down.
func (b *Backend) Close() { b.srv.Close() }

// AddUser registers an account directly and returns a fresh token for it.
func (b *Backend) AddUser(username, email, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[email] = &user{Username: username, Email: email, Hash: hash}
	return b.issueToken(email)
}

// SetProfile sets contact and organisation for an existing user.
func (b *Backend) SetProfile(email, contact, organisation string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if u, ok := b.users[email]; ok {
		u.Contact = contact
		u.Organisation = organisation
	}
}

// FailNext makes the next call to route answer with status.
func (b *Backend) FailNext(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = append(b.failures[route], status)
}

// Hits returns how many times route was called.
func (b *Backend) Hits(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[route]
}

// Uploads returns the filenames of every analyze call, in order.
func (b *Backend) Uploads() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]string, len(b.uploads))
	copy(out, b.uploads)
	return out
}

// OnAnalyze installs a hook run inside every analyze call before results
// are computed. Tests use it to hold a request in flight.
func (b *Backend) OnAnalyze(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hook = fn
}

// SessionIDs returns the ids of every stored session.
func (b *Backend) SessionIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.sessions))
	for id := range b.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Purged reports whether the images of a session were cleared.
func (b *Backend) Purged(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[sessionID]
	if !ok || len(s.Images) == 0 {
		return false
	}
	for _, img := range s.Images {
		if !img.Purged {
			return false
		}
	}
	return true
}

// LesionsFor and PercentageFor expose the deterministic analysis function.
func LesionsFor(data []byte) int { return len(data) % 10 }

// PercentageFor returns the necrosis percentage computed for data.
func PercentageFor(data []byte) float64 { return float64(len(data)%10000) / 100 }

func (b *Backend) router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/register/", b.wrap(RouteRegister, false, b.handleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/login/", b.wrap(RouteLogin, false, b.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/reset_password/", b.wrap(RouteResetPassword, false, b.handleResetPassword)).Methods(http.MethodPost)
	api.HandleFunc("/user/{id}/", b.wrap(RouteUser, true, b.handleGetUser)).Methods(http.MethodGet)
	api.HandleFunc("/user/{id}/", b.wrap(RouteUpdateUser, true, b.handleUpdateUser)).Methods(http.MethodPatch)
	api.HandleFunc("/analyze/", b.wrap(RouteAnalyze, true, b.handleAnalyze)).Methods(http.MethodPost)
	api.HandleFunc("/user_sessions/", b.wrap(RouteSessions, true, b.handleSessions)).Methods(http.MethodGet)
	api.HandleFunc("/session_results/{id}/", b.wrap(RouteResults, true, b.handleResults)).Methods(http.MethodGet)
	api.HandleFunc("/latest_session_results/", b.wrap(RouteLatest, true, b.handleLatest)).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/", b.wrap(RouteDelete, true, b.handleDelete)).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/name/", b.wrap(RouteRename, true, b.handleRename)).Methods(http.MethodPatch)
	api.HandleFunc("/sessions/{id}/download_images/", b.wrap(RouteDownload, true, b.handleDownload)).Methods(http.MethodGet)
	api.HandleFunc("/delete_session_images/", b.wrap(RouteClearImages, true, b.handleClearImages)).Methods(http.MethodPost)

	r.PathPrefix("/media/results/").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n"))
	})
	return r
}

type handler func(w http.ResponseWriter, r *http.Request, caller *user)

// wrap counts the hit, applies queued failures and token auth.
func (b *Backend) wrap(route string, auth bool, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[route]++
		if q := b.failures[route]; len(q) > 0 {
			status := q[0]
			b.failures[route] = q[1:]
			b.mu.Unlock()
			writeJSON(w, status, map[string]string{"detail": "Injected failure."})
			return
		}
		var caller *user
		if auth {
			caller = b.authenticate(r)
		}
		b.mu.Unlock()

		if auth && caller == nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}
		h(w, r, caller)
	}
}

// authenticate must be called with b.mu held.
func (b *Backend) authenticate(r *http.Request) *user {
	h := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(h, "Token ")
	if !ok || tok == "" {
		return nil
	}
	email, ok := b.tokens[tok]
	if !ok {
		return nil
	}
	return b.users[email]
}

// issueToken must be called with b.mu held.
func (b *Backend) issueToken(email string) string {
	for tok, e := range b.tokens {
		if e == email {
			return tok
		}
	}
	buf := make([]byte, 20)
	_, _ = rand.Read(buf)
	tok := hex.EncodeToString(buf)
	b.tokens[tok] = email
	return tok
}

func (b *Backend) handleRegister(w http.ResponseWriter, r *http.Request, _ *user) {
	var req struct {
		Username        string `json:"username"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed request."})
		return
	}

	b.mu.Lock()
	errs := map[string][]string{}
	if req.Username == "" {
		errs["username"] = []string{"This field is required."}
	} else if !lettersOnly.MatchString(req.Username) {
		errs["username"] = []string{"Username must contain only letters."}
	} else {
		for _, u := range b.users {
			if u.Username == req.Username {
				errs["username"] = []string{"Username already exists."}
				break
			}
		}
	}
	if req.Email == "" {
		errs["email"] = []string{"This field is required."}
	} else if _, ok := b.users[req.Email]; ok {
		errs["email"] = []string{"Email already exists."}
	}
	if len(req.Password) < 8 {
		errs["password"] = []string{"This password is too short. It must contain at least 8 characters."}
	}
	if len(errs) == 0 && req.Password != req.ConfirmPassword {
		errs["confirm_password"] = []string{"Passwords do not match."}
	}
	b.mu.Unlock()

	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}
	b.AddUser(req.Username, req.Email, req.Password)
	writeJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully."})
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request, _ *user) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Email and password are required."}})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[req.Email]
	if !ok || bcrypt.CompareHashAndPassword(u.Hash, []byte(req.Password)) != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Invalid email or password."}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": b.issueToken(u.Email)})
}

func (b *Backend) handleResetPassword(w http.ResponseWriter, r *http.Request, _ *user) {
	var req struct {
		Email           string `json:"email"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	u, ok := b.users[req.Email]
	b.mu.Unlock()

	errs := map[string]string{}
	switch {
	case req.Email == "":
		errs["email"] = "Email is required."
	case !ok:
		errs["email"] = "No user with this email."
	}
	if len(req.NewPassword) < 8 {
		errs["new_password"] = "Password must be at least 8 characters."
	}
	if req.NewPassword != req.ConfirmPassword {
		errs["confirm_password"] = "Passwords do not match."
	}
	if len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, errs)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	b.mu.Lock()
	u.Hash = hash
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully."})
}

// lookupUser resolves an email or username. Caller holds b.mu.
func (b *Backend) lookupUser(id string) *user {
	if u, ok := b.users[id]; ok {
		return u
	}
	for _, u := range b.users {
		if u.Username == id {
			return u
		}
	}
	return nil
}

func (b *Backend) handleGetUser(w http.ResponseWriter, r *http.Request, _ *user) {
	b.mu.Lock()
	u := b.lookupUser(mux.Vars(r)["id"])
	var out map[string]string
	if u != nil {
		out = userJSON(u)
	}
	b.mu.Unlock()

	if u == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found."})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleUpdateUser(w http.ResponseWriter, r *http.Request, caller *user) {
	var req struct {
		Contact      *string `json:"contact"`
		Organisation *string `json:"organisation"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.lookupUser(mux.Vars(r)["id"])
	if u == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found."})
		return
	}
	if u != caller {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "You can only update your own profile."})
		return
	}
	if req.Contact != nil {
		u.Contact = *req.Contact
	}
	if req.Organisation != nil {
		u.Organisation = *req.Organisation
	}
	writeJSON(w, http.StatusOK, userJSON(u))
}

func (b *Backend) handleAnalyze(w http.ResponseWriter, r *http.Request, caller *user) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Malformed form."})
		return
	}

	b.mu.Lock()
	hook := b.hook
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	var names []string
	var imgs []image
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
			return
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(f)
		f.Close()
		data := buf.Bytes()
		names = append(names, fh.Filename)
		imgs = append(imgs, image{
			Filename:   fh.Filename,
			Lesions:    LesionsFor(data),
			Percentage: PercentageFor(data),
			Data:       data,
		})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploads = append(b.uploads, names)

	sid := r.FormValue("session_id")
	s, ok := b.sessions[sid]
	if !ok || s.Owner != caller.Email {
		s = &analysisSession{ID: uuid.NewString(), Owner: caller.Email, CreatedAt: b.now().UTC()}
		b.sessions[s.ID] = s
	}
	s.Images = append(s.Images, imgs...)

	results := make([]map[string]any, 0, len(imgs))
	for _, img := range imgs {
		results = append(results, b.resultJSON(img, true))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":    results,
		"session_id": s.ID,
		"created_at": s.CreatedAt,
	})
}

func (b *Backend) handleSessions(w http.ResponseWriter, _ *http.Request, caller *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned := b.owned(caller)
	out := make([]map[string]any, 0, len(owned))
	for _, s := range owned {
		entry := map[string]any{
			"session_id": s.ID,
			"created_at": s.CreatedAt,
			"num_images": len(s.Images),
		}
		if s.Name != "" {
			entry["session_name"] = s.Name
		} else {
			entry["session_name"] = nil
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (b *Backend) handleResults(w http.ResponseWriter, r *http.Request, caller *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[mux.Vars(r)["id"]]
	if !ok || s.Owner != caller.Email {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found."})
		return
	}
	writeJSON(w, http.StatusOK, b.sessionJSON(s))
}

func (b *Backend) handleLatest(w http.ResponseWriter, _ *http.Request, caller *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned := b.owned(caller)
	if len(owned) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"results": []any{}})
		return
	}
	out := b.sessionJSON(owned[0])
	delete(out, "created_at")
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request, caller *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := mux.Vars(r)["id"]
	s, ok := b.sessions[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found."})
		return
	}
	if s.Owner != caller.Email {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Not authorized to delete this session."})
		return
	}
	delete(b.sessions, id)
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleRename(w http.ResponseWriter, r *http.Request, caller *user) {
	var req struct {
		SessionName string `json:"session_name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[mux.Vars(r)["id"]]
	if !ok || s.Owner != caller.Email {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found."})
		return
	}
	if len(req.SessionName) > 255 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"session_name": {"Ensure this field has no more than 255 characters."}})
		return
	}
	s.Name = req.SessionName
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   s.ID,
		"created_at":   s.CreatedAt,
		"num_images":   len(s.Images),
		"notes":        nil,
		"session_name": s.Name,
	})
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request, caller *user) {
	b.mu.Lock()
	s, ok := b.sessions[mux.Vars(r)["id"]]
	if !ok || s.Owner != caller.Email {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found."})
		return
	}
	if len(s.Images) == 0 {
		b.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "No images found for this session."})
		return
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, img := range s.Images {
		if img.Purged {
			continue
		}
		f, err := zw.Create(img.Filename)
		if err != nil {
			continue
		}
		_, _ = f.Write(img.Data)
	}
	id := s.ID
	b.mu.Unlock()

	if err := zw.Close(); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="session_`+id+`_images.zip"`)
	_, _ = w.Write(buf.Bytes())
}

func (b *Backend) handleClearImages(w http.ResponseWriter, _ *http.Request, caller *user) {
	b.mu.Lock()
	defer b.mu.Unlock()
	owned := b.owned(caller)
	if len(owned) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "No session found."})
		return
	}
	s := owned[0]
	for i := range s.Images {
		s.Images[i].Purged = true
		s.Images[i].Data = nil
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Images deleted, text results retained."})
}

// owned returns the caller's sessions, newest first. Caller holds b.mu.
func (b *Backend) owned(caller *user) []*analysisSession {
	var out []*analysisSession
	for _, s := range b.sessions {
		if s.Owner == caller.Email {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// sessionJSON renders stored results without images. Caller holds b.mu.
func (b *Backend) sessionJSON(s *analysisSession) map[string]any {
	results := make([]map[string]any, 0, len(s.Images))
	for _, img := range s.Images {
		results = append(results, b.resultJSON(img, false))
	}
	return map[string]any{
		"results":    results,
		"session_id": s.ID,
		"created_at": s.CreatedAt,
	}
}

func (b *Backend) resultJSON(img image, withImage bool) map[string]any {
	out := map[string]any{
		"filename":            img.Filename,
		"percentage_necrosis": img.Percentage,
		"lesion_count":        img.Lesions,
		"result_image":        nil,
		"necrosis_lesions":    []any{},
	}
	if withImage {
		out["result_image"] = b.srv.URL + "/media/results/" + img.Filename
	}
	return out
}

func userJSON(u *user) map[string]string {
	return map[string]string{
		"username":     u.Username,
		"email":        u.Email,
		"contact":      u.Contact,
		"organisation": u.Organisation,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
