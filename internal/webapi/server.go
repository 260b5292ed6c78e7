// Package webapi is the browser front end: a JSON API over the session's view
// machine, a websocket that pushes every view change, and the embedded UI.
package webapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"adstudio/internal/ad"
	"adstudio/internal/session"
	"adstudio/internal/view"
)

//go:embed static/*
var staticFS embed.FS

const (
	SessionCookie = "adstudio_session"
	// formOverhead covers the text fields and multipart framing.
	formOverhead  = 1 << 20
	maxFieldBytes = 64 << 10
)

type Options struct {
	Sessions *session.Store
	Hub      *Hub
	Limits   ad.Limits
	// RateLimitPerMinute bounds generation calls per client IP. Zero disables.
	RateLimitPerMinute int
	// SecureCookie marks the session cookie Secure.
	SecureCookie bool
	Logger       *slog.Logger
}

type Server struct {
	sessions     *session.Store
	hub          *Hub
	limits       ad.Limits
	limiter      *rateLimiter
	secureCookie bool
	logger       *slog.Logger
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limits := opts.Limits
	if limits.ProductImageBytes <= 0 && limits.LogoBytes <= 0 {
		limits = ad.DefaultLimits
	}

	hub := opts.Hub
	if hub == nil {
		hub = NewHub(logger)
	}

	var limiter *rateLimiter
	if opts.RateLimitPerMinute > 0 {
		limiter = newRateLimiter(opts.RateLimitPerMinute, time.Minute)
	}

	return &Server{
		sessions:     opts.Sessions,
		hub:          hub,
		limits:       limits,
		limiter:      limiter,
		secureCookie: opts.SecureCookie,
		logger:       logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		s.requestLogger,
	)

	r.Get("/healthz", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.withSession)

		r.Get("/styles", s.styles)
		r.Get("/state", s.state)
		r.Get("/ws", s.websocket)
		r.Post("/reset", s.reset)
		r.Post("/notice/dismiss", s.dismissNotice)
		r.Get("/variants/{index}/image", s.downloadVariant)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.middleware)
			r.Post("/generate", s.generate)
			r.Post("/regenerate", s.regenerateAll)
			r.Post("/variants/{index}/regenerate", s.regenerateOne)
		})
	})

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/*", http.FileServer(http.FS(staticSub)))

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"sessions":   s.sessions.Len(),
		"websockets": s.hub.Count(""),
	})
}

func (s *Server) styles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"styles":  ad.Styles(),
		"default": ad.DefaultStyle,
	})
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	m := s.machine(r)
	writeJSON(w, http.StatusOK, toStateDTO(m.Snapshot()))
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request) {
	product, err := s.readProduct(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	m := s.machine(r)
	if err := m.Submit(r.Context(), product); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toStateDTO(m.Snapshot()))
}

func (s *Server) regenerateAll(w http.ResponseWriter, r *http.Request) {
	req, err := decodeFeedback(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	m := s.machine(r)
	if err := m.RegenerateAll(r.Context(), req.Feedback); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toStateDTO(m.Snapshot()))
}

func (s *Server) regenerateOne(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid variant index"})
		return
	}
	req, err := decodeFeedback(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	m := s.machine(r)
	if err := m.RegenerateOne(r.Context(), index, req.Feedback); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toStateDTO(m.Snapshot()))
}

func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	m := s.machine(r)
	if err := m.Reset(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStateDTO(m.Snapshot()))
}

func (s *Server) dismissNotice(w http.ResponseWriter, r *http.Request) {
	m := s.machine(r)
	m.DismissNotice()
	writeJSON(w, http.StatusOK, toStateDTO(m.Snapshot()))
}

func (s *Server) downloadVariant(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid variant index"})
		return
	}

	results, ok := s.machine(r).State().(view.Results)
	if !ok || index < 0 || index >= len(results.Variants) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "variant not found"})
		return
	}

	v := results.Variants[index]
	mimeType := v.Image.MIMEType
	if mimeType == "" {
		mimeType = ad.MIMEPNG
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", v.FileName()))
	w.Header().Set("Content-Length", strconv.Itoa(len(v.Image.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(v.Image.Data)
}

func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	key := sessionFrom(r.Context())
	m := s.machine(r)

	initial, err := json.Marshal(eventDTO{
		Event: "snapshot",
		Index: -1,
		State: toStateDTO(m.Snapshot()),
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "could not encode state"})
		return
	}
	s.hub.Serve(w, r, key, initial)
}

// readProduct streams the multipart form. Each image part is checked against
// its own limit while it is read, so an oversized upload is reported for the
// field it came in.
func (s *Server) readProduct(w http.ResponseWriter, r *http.Request) (product ad.ProductInfo, err error) {
	body := &cappedBody{ReadCloser: http.MaxBytesReader(w, r.Body, s.limits.ProductImageBytes+s.limits.LogoBytes+formOverhead)}
	r.Body = body
	defer func() {
		if err == nil {
			return
		}
		if body.hit {
			err = errPayloadTooLarge
		}
		// Drain up to the cap before answering.
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	mr, err := r.MultipartReader()
	if err != nil {
		return ad.ProductInfo{}, &ad.ValidationError{Field: "form", Message: "Invalid form submission."}
	}

	var styleKey string
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ad.ProductInfo{}, &ad.ValidationError{Field: "form", Message: "Invalid form submission."}
		}

		switch name := part.FormName(); name {
		case "product_image", "logo":
			img, err := s.readImagePart(part, name)
			if err != nil {
				return ad.ProductInfo{}, err
			}
			if img.Empty() {
				break
			}
			if name == "logo" {
				product.Logo = &img
			} else {
				product.Image = img
			}
		default:
			value, err := readField(part)
			if err != nil {
				return ad.ProductInfo{}, err
			}
			switch name {
			case "name":
				product.Name = value
			case "description":
				product.Description = value
			case "audience":
				product.Audience = value
			case "overlay_text":
				product.OverlayText = value
			case "style":
				styleKey = value
			}
		}
		part.Close()
	}

	product.Style, _ = ad.ParseStyle(styleKey)
	return product.Normalize(), nil
}

// readImagePart reads one file part. A file input left empty by the browser
// arrives as a part without a filename and yields an empty image.
func (s *Server) readImagePart(part *multipart.Part, field string) (ad.Image, error) {
	defer part.Close()
	if part.FileName() == "" {
		_, _ = io.Copy(io.Discard, io.LimitReader(part, maxFieldBytes))
		return ad.Image{}, nil
	}

	declared := part.Header.Get("Content-Type")
	if field == "logo" {
		return s.limits.ReadLogo(part, declared)
	}
	return s.limits.ReadProductImage(part, declared)
}

func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	raw, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil || len(raw) > maxFieldBytes {
		return "", &ad.ValidationError{Field: part.FormName(), Message: "Invalid form submission."}
	}
	return string(raw), nil
}

// cappedBody remembers whether the request body ran into its size cap.
type cappedBody struct {
	io.ReadCloser
	hit bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		b.hit = true
	}
	return n, err
}

func decodeFeedback(r *http.Request) (feedbackRequest, error) {
	var req feedbackRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, &ad.ValidationError{Field: "feedback", Message: "Invalid request body."}
	}
	return req, nil
}

func (s *Server) machine(r *http.Request) *view.Machine {
	return s.sessions.Get(r.Context(), sessionFrom(r.Context()))
}

type ctxKey struct{}

func sessionFrom(ctx context.Context) string {
	key, _ := ctx.Value(ctxKey{}).(string)
	return key
}

// withSession resolves the session cookie, issuing a new id when it is
// missing or malformed.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				key = id.String()
			}
		}
		if key == "" {
			key = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    key,
				Path:     "/",
				HttpOnly: true,
				Secure:   s.secureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, key)))
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"dur_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

var errPayloadTooLarge = errors.New("upload is too large")

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ad.ValidationError
	switch {
	case errors.Is(err, ad.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: err.Error()})
	case errors.Is(err, errPayloadTooLarge):
		msg := fmt.Sprintf("The upload is too large. Product image size must be less than %dMB and logo image size less than %dMB.",
			s.limits.ProductImageBytes>>20, s.limits.LogoBytes>>20)
		writeJSON(w, http.StatusRequestEntityTooLarge, apiError{Error: msg})
	case errors.As(err, &verr):
		s.logger.Info("request rejected", "field", verr.Field, "err", verr.Message)
		writeJSON(w, http.StatusBadRequest, apiError{Error: verr.Message})
	case errors.Is(err, view.ErrBusy):
		writeJSON(w, http.StatusConflict, apiError{Error: "A variant is still being regenerated. Please wait."})
	case errors.Is(err, view.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, apiError{Error: "That action is not available right now."})
	default:
		s.logger.Error("request failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "Internal server error."})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
