package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"neon-storyboard-server/modules/common/metrics"
	"neon-storyboard-server/modules/common/model"
	"neon-storyboard-server/modules/session"
	"neon-storyboard-server/modules/worker"
)

const (
	maxUploadBytes = 20 << 20
	maxBodyBytes   = 1 << 20
)

var errBadRequest = errors.New("bad request")

// Handler serves the wizard's HTTP and websocket surface.
type Handler struct {
	sessions   *session.Manager
	dispatcher worker.Dispatcher
	metrics    *metrics.Metrics
	log        *zap.Logger
	client     *http.Client
	upgrader   websocket.Upgrader
}

// NewHandler - 핸들러 생성
func NewHandler(sessions *session.Manager, dispatcher worker.Dispatcher, m *metrics.Metrics, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		sessions:   sessions,
		dispatcher: dispatcher,
		metrics:    m,
		log:        log,
		client:     &http.Client{Timeout: 5 * time.Minute},
		upgrader: websocket.Upgrader{
			// 모든 origin 허용
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the mux router with every route registered.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(enableCORS)
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.healthCheck).Methods("GET")
	r.HandleFunc("/health", h.healthCheck).Methods("GET")
	r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	r.HandleFunc("/ws", h.handleWebSocket)

	api := r.PathPrefix("/api/sessions").Subrouter()
	api.HandleFunc("", h.createSession).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}", h.getSession).Methods("GET", "OPTIONS")
	api.HandleFunc("/{sessionId}", h.deleteSession).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/{sessionId}/auth", h.authenticate).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/script", h.saveScript).Methods("PUT", "OPTIONS")
	api.HandleFunc("/{sessionId}/storyboard", h.submitScript).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/back", h.back).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/visual-bible", h.setVisualBible).Methods("PUT", "OPTIONS")
	api.HandleFunc("/{sessionId}/images", h.enterImages).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/video", h.enterVideo).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/credential", h.supplyCredential).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/edl", h.generateEDL).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/scenes/{sceneId}", h.editScene).Methods("PATCH", "OPTIONS")
	api.HandleFunc("/{sessionId}/scenes/{sceneId}/image", h.queueGeneration(worker.KindImage)).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/scenes/{sceneId}/image/upload", h.uploadImage).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/scenes/{sceneId}/video", h.queueGeneration(worker.KindVideo)).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/scenes/{sceneId}/{kind:image|video}/cancel", h.cancelGeneration).Methods("POST", "OPTIONS")
	api.HandleFunc("/{sessionId}/scenes/{sceneId}/download", h.downloadClip).Methods("GET", "OPTIONS")
}

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "healthy",
		"service":  "neon-storyboard",
		"sessions": h.sessions.Len(),
	})
}

// session resolves {sessionId} or writes a 404.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(mux.Vars(r)["sessionId"])
	if err != nil {
		h.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return nil
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Remove(mux.Vars(r)["sessionId"]) {
		h.writeError(w, session.ErrSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuthRequest - 비밀번호 게이트 요청
type AuthRequest struct {
	Password string `json:"password"`
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req AuthRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.Authenticate(req.Password); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// ScriptRequest - 대본 저장/제출 요청
type ScriptRequest struct {
	Script string `json:"script"`
}

func (h *Handler) saveScript(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ScriptRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.SetScript(req.Script); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) submitScript(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req ScriptRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.SubmitScript(r.Context(), req.Script); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := sess.Back(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// VisualBibleRequest - 전역 비주얼 설정
type VisualBibleRequest struct {
	VisualBible string `json:"visualBible"`
}

func (h *Handler) setVisualBible(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req VisualBibleRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.SetVisualBible(req.VisualBible); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *Handler) enterImages(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.EnterImages(); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// EnterVideoRequest - confirm은 참고 이미지 없는 씬이 있어도 진행할지 여부
type EnterVideoRequest struct {
	Confirm bool `json:"confirm"`
}

func (h *Handler) enterVideo(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req EnterVideoRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}
	if err := sess.EnterVideo(req.Confirm); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// CredentialRequest answers a credential_required event. An empty RequestID
// answers the oldest open request.
type CredentialRequest struct {
	RequestID string `json:"requestId"`
	Key       string `json:"key"`
}

func (h *Handler) supplyCredential(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req CredentialRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.SupplyCredential(req.RequestID, req.Key); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) generateEDL(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	edl, err := sess.GenerateEDL(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"edl": edl})
}

func (h *Handler) editScene(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var edit model.SceneEdit
	if err := decodeBody(r, &edit); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := sess.EditScene(mux.Vars(r)["sceneId"], edit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// QueueResponse - 생성 작업 접수 응답
type QueueResponse struct {
	JobID string      `json:"jobId"`
	Scene model.Scene `json:"scene"`
}

// queueGeneration marks the scene generating and hands the work to the
// dispatcher. The result arrives as a scene_updated event.
func (h *Handler) queueGeneration(kind worker.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := h.session(w, r)
		if !ok {
			return
		}
		sceneID := mux.Vars(r)["sceneId"]

		var started model.Scene
		var err error
		if kind == worker.KindVideo {
			started, err = sess.StartVideo(sceneID)
		} else {
			started, err = sess.StartImage(sceneID)
		}
		if err != nil {
			h.writeError(w, err)
			return
		}

		job := worker.NewJob(sess.ID, sceneID, kind)
		if err := h.dispatcher.Submit(r.Context(), job); err != nil {
			sess.Abort(kind, sceneID)
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, QueueResponse{JobID: job.JobID, Scene: started})
	}
}

func (h *Handler) cancelGeneration(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	if err := sess.Cancel(worker.Kind(vars["kind"]), vars["sceneId"]); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) uploadImage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: file field is required", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	updated, err := sess.UploadSceneImage(mux.Vars(r)["sceneId"], data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// downloadClip streams the scene's clip as scene_<n>.mp4.
func (h *Handler) downloadClip(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	url, filename, err := sess.VideoClip(mux.Vars(r)["sceneId"])
	if err != nil {
		h.writeError(w, err)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, url, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp, err := h.client.Do(req)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Kind: "download_failed"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error: fmt.Sprintf("clip download failed with status %d", resp.StatusCode),
			Kind:  "download_failed",
		})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if resp.ContentLength > 0 {
		w.Header().Set("Content-Length", fmt.Sprint(resp.ContentLength))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.log.Warn("Clip download interrupted", zap.String("file", filename), zap.Error(err))
	}
}

// handleWebSocket attaches a client to ?sessionId= and streams its events.
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(r.URL.Query().Get("sessionId"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	clientID := sess.Attach(conn)
	h.log.Info("New WebSocket connection", zap.String("session_id", sess.ID), zap.String("client_id", clientID))
}
