package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/command"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/example/bankaccount"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/identifier"
	"github.com/AntonStoeckl/eventsourced-aggregates-go/repository"
)

const shutdownTimeout = 5 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type openAccountRequest struct {
	AccountID      *uuid.UUID `json:"account_id,omitempty"`
	Owner          string     `json:"owner"`
	OpeningBalance int64      `json:"opening_balance"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type issueCardRequest struct {
	CardID *uuid.UUID `json:"card_id,omitempty"`
	Limit  int64      `json:"limit"`
}

type limitRequest struct {
	Limit int64 `json:"limit"`
}

type blockCardRequest struct {
	Reason string `json:"reason"`
}

type cardResponse struct {
	ID      uuid.UUID `json:"id"`
	Limit   int64     `json:"limit"`
	Blocked bool      `json:"blocked"`
}

type accountResponse struct {
	ID               uuid.UUID      `json:"id"`
	Owner            string         `json:"owner"`
	Balance          int64          `json:"balance"`
	ProjectedBalance *int64         `json:"projected_balance,omitempty"`
	Version          uint64         `json:"version"`
	Cards            []cardResponse `json:"cards"`
}

type createdResponse struct {
	ID uuid.UUID `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// accountHandlers translates HTTP requests into commands on the bus and reads accounts through the repository.
type accountHandlers struct {
	app    *app
	logger *slog.Logger
}

// newRouter builds the accounts API. /metrics is only mounted when metrics go to a Prometheus registry.
func newRouter(a *app, obs *observability, logger *slog.Logger) http.Handler {
	h := accountHandlers{app: a, logger: logger}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if obs.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(obs.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	}

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.openAccount)

		r.Route("/{accountID}", func(r chi.Router) {
			r.Get("/", h.getAccount)
			r.Post("/debit", h.debit)
			r.Post("/credit", h.credit)
			r.Post("/cards", h.issueCard)
			r.Put("/cards/{cardID}/limit", h.changeCardLimit)
			r.Post("/cards/{cardID}/block", h.blockCard)
		})
	})

	return r
}

// serve runs the server until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.InfoContext(ctx, "http server listening", slog.String("addr", addr))

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func (h accountHandlers) openAccount(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	accountID := identifier.New()
	if req.AccountID != nil {
		accountID = *req.AccountID
	}

	cmd := bankaccount.OpenAccount{AccountID: accountID, Owner: req.Owner, OpeningBalance: req.OpeningBalance}
	if !h.send(w, r, cmd) {
		return
	}

	w.Header().Set("Location", "/accounts/"+accountID.String())
	writeJSON(w, http.StatusCreated, createdResponse{ID: accountID})
}

func (h accountHandlers) getAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := uuidParam(w, r, "accountID")
	if !ok {
		return
	}

	account, err := h.app.accounts.Load(r.Context(), accountID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := accountResponse{
		ID:      accountID,
		Owner:   account.Owner(),
		Balance: account.Balance(),
		Version: account.Version(),
		Cards:   make([]cardResponse, 0, account.CardCount()),
	}

	if projected, found := h.app.projection.Balance(accountID); found {
		resp.ProjectedBalance = &projected
	}

	for _, card := range account.Cards() {
		resp.Cards = append(resp.Cards, cardResponse{ID: card.EntityID(), Limit: card.Limit(), Blocked: card.IsBlocked()})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h accountHandlers) debit(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, func(accountID uuid.UUID, amount int64) command.Command {
		return bankaccount.DebitAccount{AccountID: accountID, Amount: amount}
	})
}

func (h accountHandlers) credit(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, func(accountID uuid.UUID, amount int64) command.Command {
		return bankaccount.CreditAccount{AccountID: accountID, Amount: amount}
	})
}

func (h accountHandlers) moveMoney(w http.ResponseWriter, r *http.Request, build func(uuid.UUID, int64) command.Command) {
	accountID, ok := uuidParam(w, r, "accountID")
	if !ok {
		return
	}

	var req amountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if h.send(w, r, build(accountID, req.Amount)) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h accountHandlers) issueCard(w http.ResponseWriter, r *http.Request) {
	accountID, ok := uuidParam(w, r, "accountID")
	if !ok {
		return
	}

	var req issueCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cardID := identifier.New()
	if req.CardID != nil {
		cardID = *req.CardID
	}

	if !h.send(w, r, bankaccount.IssueCard{AccountID: accountID, CardID: cardID, Limit: req.Limit}) {
		return
	}

	w.Header().Set("Location", "/accounts/"+accountID.String()+"/cards/"+cardID.String())
	writeJSON(w, http.StatusCreated, createdResponse{ID: cardID})
}

func (h accountHandlers) changeCardLimit(w http.ResponseWriter, r *http.Request) {
	accountID, cardID, ok := cardParams(w, r)
	if !ok {
		return
	}

	var req limitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if h.send(w, r, bankaccount.ChangeCardLimit{AccountID: accountID, CardID: cardID, Limit: req.Limit}) {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h accountHandlers) blockCard(w http.ResponseWriter, r *http.Request) {
	accountID, cardID, ok := cardParams(w, r)
	if !ok {
		return
	}

	var req blockCardRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if h.send(w, r, bankaccount.BlockCard{AccountID: accountID, CardID: cardID, Reason: req.Reason}) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// send dispatches cmd and writes the error response if it failed.
func (h accountHandlers) send(w http.ResponseWriter, r *http.Request, cmd command.Command) bool {
	if err := h.app.bus.Send(r.Context(), cmd); err != nil {
		h.writeError(w, r, err)
		return false
	}

	return true
}

func (h accountHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)

	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusOf maps the error taxonomy of the framework and the account rules to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, repository.ErrAggregateNotFound),
		errors.Is(err, bankaccount.ErrNotOpened),
		errors.Is(err, bankaccount.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, eventstore.ErrConcurrencyConflict),
		errors.Is(err, bankaccount.ErrAlreadyOpened),
		errors.Is(err, bankaccount.ErrCardAlreadyIssued):
		return http.StatusConflict
	case errors.Is(err, bankaccount.ErrEmptyOwner),
		errors.Is(err, bankaccount.ErrNegativeBalance),
		errors.Is(err, bankaccount.ErrNonPositiveAmount),
		errors.Is(err, bankaccount.ErrInsufficientFunds),
		errors.Is(err, bankaccount.ErrNegativeLimit),
		errors.Is(err, bankaccount.ErrCardBlocked):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}

	return id, true
}

func cardParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	accountID, ok := uuidParam(w, r, "accountID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	cardID, ok := uuidParam(w, r, "cardID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	return accountID, cardID, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// requestLogger logs one line per request with the structured logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
