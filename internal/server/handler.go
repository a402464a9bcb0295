package server

import (
	"context"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/costaparas/shell-script-api/internal/request"
	"github.com/costaparas/shell-script-api/internal/response"
)

const tracerName = "github.com/costaparas/shell-script-api/internal/server"

// Handler answers exactly one request per call. Both bindings share
// response.Build; they differ only in how the request is framed and how
// the payload is written.
type Handler struct {
	framing request.Framing
	logger  *zap.Logger
	tracer  trace.Tracer
}

func NewHandler(framing request.Framing, logger *zap.Logger) *Handler {
	return &Handler{
		framing: framing,
		logger:  logger.Named("handler"),
		tracer:  otel.Tracer(tracerName),
	}
}

// ServeStream reads a request from rw starting at the request line and
// writes a full HTTP/1.1 response back to it. When the request never
// completes nothing is written and the transport error is returned.
func (h *Handler) ServeStream(ctx context.Context, rw io.ReadWriter) error {
	return h.serve(ctx, "raw", func(log *zap.SugaredLogger) (*request.ParsedRequest, error) {
		r := request.NewReader(rw, h.framing)
		req, err := r.Read()
		if err != nil {
			log.Infow("request not completed", "state", r.State().String(), "content_length", r.ContentLength(), "error", err)
			return nil, err
		}
		log.Debugw("request framed", "state", r.State().String(), "framing", h.framing.String())
		return req, nil
	}, func(p response.Payload) error {
		return p.WriteRaw(rw)
	})
}

// ServeCGI handles a request already framed by a front-end server:
// method and query string come from lookup, the body is in read to EOF.
func (h *Handler) ServeCGI(ctx context.Context, lookup func(string) (string, bool), in io.Reader, out io.Writer) error {
	return h.serve(ctx, "cgi", func(log *zap.SugaredLogger) (*request.ParsedRequest, error) {
		req, err := request.FromEnv(lookup, in)
		if err != nil {
			log.Infow("request not completed", "error", err)
			return nil, err
		}
		return req, nil
	}, func(p response.Payload) error {
		return p.WriteCGI(out)
	})
}

func (h *Handler) serve(
	ctx context.Context,
	binding string,
	read func(*zap.SugaredLogger) (*request.ParsedRequest, error),
	write func(response.Payload) error,
) (err error) {
	id := uuid.Must(uuid.NewV7()).String()
	log := h.logger.Sugar().With("id", id, "binding", binding)

	_, span := h.tracer.Start(ctx, "serve request",
		trace.WithAttributes(attribute.String("request.id", id), attribute.String("binding", binding)))
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("panic recovered", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, err := read(log)
	if err != nil {
		return err
	}
	p := response.Build(req)
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.Int("http.response.status_code", p.StatusCode),
	)
	fields := []any{"method", req.Method, "kind", req.Kind.String(), "status", p.StatusCode}
	if req.IsBodyMethod() {
		mediaType := mimetype.Detect(req.Body).String()
		span.SetAttributes(
			attribute.Int("http.request.body.size", len(req.Body)),
			attribute.String("request.body.media_type", mediaType),
		)
		fields = append(fields, "body_bytes", len(req.Body), "body_type", mediaType)
	}
	log.Debugw("request summarized", fields...)

	if err := write(p); err != nil {
		log.Errorw("failed to write response", "error", err)
		return err
	}
	log.Infow("request served", "method", req.Method, "status", p.StatusCode)
	return nil
}
