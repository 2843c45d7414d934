package callback

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"kasirinaja/terminal/internal/billing"
	"kasirinaja/terminal/internal/checkout"
	"kasirinaja/terminal/internal/domain"
)

// Handler receives hosted checkout callbacks. billing.Controller is the
// production implementation.
type Handler interface {
	HostedSucceeded(ctx context.Context, attemptID string, result domain.HostedPaymentResult) (checkout.Outcome, error)
	HostedDismissed(ctx context.Context, attemptID string) (checkout.Outcome, error)
}

// Server is the local listener the hosted checkout page reports back to.
type Server struct {
	handler Handler
	log     logrus.FieldLogger
	notify  func(checkout.Outcome, error)
	router  chi.Router
}

// New builds the listener. notify, if set, sees the outcome of every
// callback that reached the checkout.
func New(handler Handler, logger logrus.FieldLogger, notify func(checkout.Outcome, error)) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		handler: handler,
		log:     logger.WithField("module", "callback"),
		notify:  notify,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Get("/healthz", s.healthz)
	r.Route("/hosted/{attemptID}", func(r chi.Router) {
		r.Post("/success", s.success)
		r.Post("/dismiss", s.dismiss)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("hosted checkout callback listener started")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// successPayload accepts both plain field names and the hosted provider's
// prefixed ones.
type successPayload struct {
	OrderID           string `json:"order_id"`
	PaymentID         string `json:"payment_id"`
	Signature         string `json:"signature"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (p successPayload) result() domain.HostedPaymentResult {
	return domain.HostedPaymentResult{
		OrderID:   firstNonEmpty(p.OrderID, p.RazorpayOrderID),
		PaymentID: firstNonEmpty(p.PaymentID, p.RazorpayPaymentID),
		Signature: firstNonEmpty(p.Signature, p.RazorpaySignature),
	}
}

func (s *Server) success(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")

	var payload successPayload
	if err := decodePayload(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid callback payload"))
		return
	}
	result := payload.result()
	if strings.TrimSpace(result.PaymentID) == "" {
		writeError(w, http.StatusBadRequest, errors.New("payment_id is required"))
		return
	}

	out, err := s.handler.HostedSucceeded(r.Context(), attemptID, result)
	s.respond(w, attemptID, out, err)
}

func (s *Server) dismiss(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	out, err := s.handler.HostedDismissed(r.Context(), attemptID)
	s.respond(w, attemptID, out, err)
}

func (s *Server) respond(w http.ResponseWriter, attemptID string, out checkout.Outcome, err error) {
	var verifyErr *checkout.VerificationError
	switch {
	case errors.Is(err, billing.ErrStaleAttempt), errors.Is(err, checkout.ErrInvalidState):
		s.log.WithError(err).WithField("attempt_id", attemptID).Warn("stale hosted callback")
		writeError(w, http.StatusConflict, err)
		return
	case errors.As(err, &verifyErr):
		s.notifyOutcome(out, err)
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	case err != nil:
		s.notifyOutcome(out, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.notifyOutcome(out, nil)
	body := map[string]any{"state": string(out.State)}
	if out.Invoice != nil {
		body["invoice_number"] = out.Invoice.InvoiceNumber
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) notifyOutcome(out checkout.Outcome, err error) {
	if s.notify != nil {
		s.notify(out, err)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("callback request")
	})
}

// decodePayload reads a JSON body, or form fields when the page posts a
// form.
func decodePayload(r *http.Request, dest *successPayload) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return err
		}
		dest.OrderID = r.PostForm.Get("order_id")
		dest.PaymentID = r.PostForm.Get("payment_id")
		dest.Signature = r.PostForm.Get("signature")
		dest.RazorpayOrderID = r.PostForm.Get("razorpay_order_id")
		dest.RazorpayPaymentID = r.PostForm.Get("razorpay_payment_id")
		dest.RazorpaySignature = r.PostForm.Get("razorpay_signature")
		return nil
	}
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16)).Decode(dest)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
