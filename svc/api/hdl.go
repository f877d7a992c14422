package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"linepaste/cfg"
	"linepaste/pkg/domain"
	"linepaste/svc/mail"
	"linepaste/svc/svc"
	"linepaste/svc/util"
)

const maxNameLength = 190

type Hdl struct {
	paste *svc.Paste
	cfg   *cfg.Cfg
}
type CreateReq struct {
	Content  string `json:"content"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Language string `json:"language,omitempty"`
}
type CreateResp struct {
	UID string `json:"uid"`
	URL string `json:"url"`
}
type CommentReq struct {
	Line    int    `json:"line"`
	Comment string `json:"comment"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
}
type ExcerptResp struct {
	UID  string `json:"uid"`
	Line int    `json:"line"`
	HTML string `json:"html"`
}
type ScanResp struct {
	Keyword string             `json:"keyword"`
	Matches []domain.ScanMatch `json:"matches"`
}

func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	if !h.checkJSONBody(w, r, h.cfg.MaxPasteSize*2) {
		return
	}
	var req CreateReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if err == io.EOF {
			log.Warn().Msg("empty request body")
		} else {
			log.Warn().Err(err).Msg("invalid request")
		}
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if req.Content == "" {
		log.Warn().Msg("empty content")
		writeErr(w, domain.ErrContentRequired, requestID)
		return
	}
	if int64(len(req.Content)) > h.cfg.MaxPasteSize {
		log.Warn().Int("content_length", len(req.Content)).Msg("content exceeds maximum size")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !mail.ValidAddress(email) {
		log.Warn().Str("email", util.RedactEmail(email)).Msg("invalid author email")
		writeErr(w, errors.Wrap(domain.ErrValidation, "invalid email address"), requestID)
		return
	}
	params := domain.CreateParams{
		Content:  sanitizeContent(req.Content),
		Name:     sanitizeField(req.Name),
		Email:    email,
		Language: strings.ToLower(strings.TrimSpace(req.Language)),
	}
	paste, err := h.paste.Create(r.Context(), params)
	if err != nil {
		log.Error().Err(err).Msg("failed to create paste")
		if errors.Is(err, domain.ErrPasteTooLarge) {
			writeErr(w, err, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("uid", paste.UID).
		Str("language", paste.Language).
		Int("content_length", len(paste.Content)).
		Msg("paste created")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(CreateResp{
		UID: paste.UID,
		URL: h.cfg.AppBaseURL + "/" + paste.UID,
	})
}
func (h *Hdl) GetPaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	uid := chi.URLParam(r, "id")
	withRendering := r.URL.Query().Get("raw") != "1"
	view, err := h.paste.Get(r.Context(), uid, withRendering)
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("get failed")
		if errors.Is(err, domain.ErrPasteNotFound) {
			writeErr(w, domain.ErrPasteNotFound, requestID)
			return
		}
		if errors.Is(err, domain.ErrDecryption) {
			writeErr(w, domain.ErrDecryption, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("uid", uid).
		Str("client_ip", util.RedactIP(r.RemoteAddr)).
		Int("comments", len(view.Comments)).
		Msg("paste retrieved")
	json.NewEncoder(w).Encode(view)
}
func (h *Hdl) AddComment(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	uid := chi.URLParam(r, "id")
	if !h.checkJSONBody(w, r, h.cfg.MaxCommentSize*2) {
		return
	}
	var req CommentReq
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid request")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	if strings.TrimSpace(req.Comment) == "" {
		writeErr(w, errors.Wrap(domain.ErrValidation, "comment is required"), requestID)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeErr(w, errors.Wrap(domain.ErrValidation, "name is required"), requestID)
		return
	}
	if req.Line < 1 {
		writeErr(w, errors.Wrap(domain.ErrValidation, "line must be a positive integer"), requestID)
		return
	}
	email := strings.TrimSpace(req.Email)
	if email != "" && !mail.ValidAddress(email) {
		writeErr(w, errors.Wrap(domain.ErrValidation, "invalid email address"), requestID)
		return
	}
	view, err := h.paste.AddComment(r.Context(), uid, domain.AddCommentParams{
		Line:    req.Line,
		Comment: sanitizeContent(req.Comment),
		Name:    sanitizeField(req.Name),
		Email:   email,
	})
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("add comment failed")
		if errors.Is(err, domain.ErrPasteNotFound) ||
			errors.Is(err, domain.ErrValidation) ||
			errors.Is(err, domain.ErrPasteTooLarge) {
			writeErr(w, err, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	log.Info().
		Str("uid", uid).
		Int("line", req.Line).
		Msg("comment added")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(view)
}
func (h *Hdl) GetExcerpt(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	uid := chi.URLParam(r, "id")
	line, err := strconv.Atoi(r.URL.Query().Get("line"))
	if err != nil || line < 1 {
		writeErr(w, errors.Wrap(domain.ErrValidation, "line must be a positive integer"), requestID)
		return
	}
	html, err := h.paste.Excerpt(r.Context(), uid, line)
	if err != nil {
		log.Warn().Err(err).Str("uid", uid).Msg("excerpt failed")
		if errors.Is(err, domain.ErrPasteNotFound) {
			writeErr(w, domain.ErrPasteNotFound, requestID)
			return
		}
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	json.NewEncoder(w).Encode(ExcerptResp{UID: uid, Line: line, HTML: html})
}
func (h *Hdl) ScanPastes(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	keyword := r.URL.Query().Get("q")
	if strings.TrimSpace(keyword) == "" {
		writeErr(w, errors.Wrap(domain.ErrValidation, "query parameter q is required"), requestID)
		return
	}
	matches, err := h.paste.Scan(r.Context(), keyword)
	if err != nil {
		log.Error().Err(err).Msg("scan failed")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	if matches == nil {
		matches = []domain.ScanMatch{}
	}
	log.Info().Int("matches", len(matches)).Msg("scan complete")
	json.NewEncoder(w).Encode(ScanResp{Keyword: keyword, Matches: matches})
}

// checkJSONBody enforces the Content-Type and Content-Length gates
// shared by both write endpoints and caps the body reader.
func (h *Hdl) checkJSONBody(w http.ResponseWriter, r *http.Request, limit int64) bool {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "application/json" {
		log.Warn().
			Str("content_type", contentType).
			Str("request_id", requestID).
			Msg("invalid Content-Type header")
		w.WriteHeader(http.StatusUnsupportedMediaType)
		json.NewEncoder(w).Encode(map[string]string{
			"error":      "expected Content-Type: application/json",
			"request_id": requestID,
		})
		return false
	}
	clHeader := r.Header.Get("Content-Length")
	if clHeader == "" {
		log.Warn().Msg("missing Content-Length on POST")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	cl, err := strconv.ParseInt(clHeader, 10, 64)
	if err != nil || cl < 0 {
		log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	if cl > limit {
		log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return false
	}
	if ce := r.Header.Get("Content-Encoding"); ce != "" {
		log.Warn().Str("content_encoding", ce).Msg("compressed content not allowed")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	return true
}
func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}

// sanitizeContent normalizes to NFC and strips control characters.
// Paste and comment text is stored without HTML escaping here; the
// escaping contract lives with the renderer and the comment writer.
func sanitizeContent(s string) string {
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

// sanitizeField is for single-line metadata like author names.
func sanitizeField(s string) string {
	s = strings.TrimSpace(sanitizeContent(s))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	if len(s) > maxNameLength {
		s = s[:maxNameLength]
	}
	return s
}
