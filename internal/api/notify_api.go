package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-notification-bridge/pkg/dispatch"
)

const maxBodyBytes = 64 << 10

// RequestHandler is the part of the pipeline the HTTP surface drives.
type RequestHandler interface {
	Handle(ctx context.Context, req *dispatch.NotificationRequest) (dispatch.Result, error)
}

type NotifyAPI struct {
	Handler        RequestHandler
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

func NewNotifyAPI(handler RequestHandler, requestTimeout time.Duration, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		Handler:        handler,
		Logger:         logger,
		RequestTimeout: requestTimeout,
	}
}

type SendResponse struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
}

// ServeHTTP answers pre-flight and POST; every response carries CORS headers.
func (api *NotifyAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeCorsHeaders(w)

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	case http.MethodPost:
		api.SendNotification(w, r)
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		response.WriteJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (api *NotifyAPI) SendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if api.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, api.RequestTimeout)
		defer cancel()
	}
	logger := api.Logger.With("request_id", uuid.NewString())
	logger.Info("Notification request received")

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		logger.Warn("SendNotification: body read failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req, err := dispatch.DecodeRequest(payload)
	if err != nil {
		logger.Warn("SendNotification: validation failed", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, publicMessage(err))
		return
	}
	logger = logger.With("type", req.Type, "report_id", req.ReportID, "user_id", req.UserID)

	result, err := api.Handler.Handle(ctx, req)
	if err != nil {
		if errors.Is(err, dispatch.ErrInvalidRequest) {
			response.WriteJSONError(w, http.StatusBadRequest, publicMessage(err))
			return
		}
		logger.Error("SendNotification: dispatch failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, publicMessage(err))
		return
	}

	logger.Info("SendNotification: done", "sent", result.Sent, "failed", result.Failed)
	response.WriteJSON(w, http.StatusOK, SendResponse{Success: true, Sent: result.Sent, Failed: result.Failed})
}

// publicMessage strips the sentinel prefix so callers see the reason only.
func publicMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{dispatch.ErrInvalidRequest, dispatch.ErrConfiguration, dispatch.ErrAuth} {
		if reason, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return reason
		}
	}
	return msg
}

func writeCorsHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}
