// Package routers
package routers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"muse-api/internal/gateway"
	"muse-api/internal/metrics"
	"muse-api/internal/profiles"
	"muse-api/internal/setup"
	"muse-api/internal/shared"

	"github.com/labstack/echo/v4"
)

type GenerateRouter struct {
	gw *gateway.Gateway
}

func RegisterGenerateRoutes(e *echo.Group, gw *gateway.Gateway) error {
	if gw == nil {
		return errors.New("gateway is required")
	}
	gr := GenerateRouter{gw: gw}

	v1 := e.Group("v1")
	v1.POST("/generate", gr.Generate)
	v1.GET("/voices", gr.Voices)
	return nil
}

func (gr *GenerateRouter) Generate(cc echo.Context) error {
	c := cc.(*setup.Context)
	start := time.Now()

	var req shared.GenerateRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		metrics.RequestCount.WithLabelValues("unknown", "invalid").Inc()
		return writeError(c, errors.Join(shared.ErrEmptyBody, err))
	}

	kind, err := gateway.Validate(&req)
	if err != nil {
		metrics.RequestCount.WithLabelValues(req.Task, "invalid").Inc()
		return writeError(c, err)
	}

	switch kind {
	case profiles.TaskSpeech:
		return gr.speech(c, &req)
	default:
		if req.Stream {
			return gr.streamText(c, kind, &req, start)
		}
		return gr.text(c, kind, &req)
	}
}

func (gr *GenerateRouter) text(c *setup.Context, kind profiles.TaskKind, req *shared.GenerateRequest) error {
	out, err := gr.gw.GenerateText(c.Request().Context(), kind, req)
	if err != nil {
		metrics.RequestCount.WithLabelValues(req.Task, "error").Inc()
		return writeError(c, err)
	}

	metrics.RequestCount.WithLabelValues(req.Task, "success").Inc()
	return c.JSON(http.StatusOK, shared.GenerateResponse{
		Success: true,
		Data: &shared.GenerateData{
			Content: out.Content,
			Model:   gr.gw.Chat.Model,
			Task:    req.Task,
			Usage:   out.Usage,
		},
	})
}

func (gr *GenerateRouter) streamText(c *setup.Context, kind profiles.TaskKind, req *shared.GenerateRequest, start time.Time) error {
	ctx := c.Request().Context()

	norm, err := gr.gw.OpenTextStream(ctx, kind, req)
	if err != nil {
		// Nothing has been written yet, so the failure can still go out
		// as a normal JSON envelope.
		metrics.RequestCount.WithLabelValues(req.Task, "error").Inc()
		return writeError(c, err)
	}
	defer func() {
		if closeErr := norm.Close(); closeErr != nil {
			c.Log.Warnw("Failed to close upstream stream", "error", closeErr)
		}
	}()

	setupSSEHeaders(c)
	writeFrame := createStreamCallback(c)

	var ttftRecorded, sawTerminal bool
	for {
		ev, nerr := norm.Next()
		if nerr == io.EOF {
			break
		}
		if nerr != nil {
			// Mid-stream failure: log it, then fall through to the
			// terminal frame so the client sees an ended stream rather
			// than a dropped connection.
			c.Log.Errorw("Error after streaming started", "error", nerr.Error())
			break
		}
		if ev.Done {
			sawTerminal = true
			break
		}

		if !ttftRecorded {
			metrics.TimeToFirstToken.WithLabelValues(gr.gw.Chat.Model).Observe(time.Since(start).Seconds())
			ttftRecorded = true
		}
		metrics.StreamEvents.WithLabelValues(gr.gw.Chat.Model).Inc()

		frame, merr := json.Marshal(shared.StreamEvent{Content: ev.Content, Reasoning: ev.Reasoning})
		if merr != nil {
			c.Log.Warnw("Failed to marshal stream event", "error", merr)
			continue
		}
		if werr := writeFrame("data: " + string(frame)); werr != nil {
			// Client is gone; the deferred Close tears down the
			// upstream read.
			c.Log.Debugw("Client disconnected mid-stream", "error", werr)
			metrics.RequestCount.WithLabelValues(req.Task, "canceled").Inc()
			return nil
		}
	}

	if err := writeFrame("data: [DONE]"); err != nil {
		c.Log.Debugw("Client disconnected before terminal frame", "error", err)
	}
	if sawTerminal {
		metrics.RequestCount.WithLabelValues(req.Task, "success").Inc()
	} else {
		metrics.RequestCount.WithLabelValues(req.Task, "error").Inc()
	}
	return nil
}

func (gr *GenerateRouter) speech(c *setup.Context, req *shared.GenerateRequest) error {
	payload, err := gr.gw.SynthesizeClip(c.Request().Context(), req)
	if err != nil {
		metrics.RequestCount.WithLabelValues(req.Task, "error").Inc()
		return writeError(c, err)
	}

	voice := req.Voice
	if voice == "" {
		voice = shared.DefaultVoice
	}
	metrics.RequestCount.WithLabelValues(req.Task, "success").Inc()
	metrics.AudioBytes.WithLabelValues(voice).Observe(float64(payload.ByteLength))
	return c.JSON(http.StatusOK, shared.SpeechResponse{
		Success:  true,
		AudioURL: payload.DataURI,
		Type:     payload.MimeType,
		Size:     payload.ByteLength,
	})
}

func (gr *GenerateRouter) Voices(cc echo.Context) error {
	c := cc.(*setup.Context)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	voices, err := gr.gw.Voices(ctx)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"data": voices})
}

func setupSSEHeaders(c *setup.Context) {
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)
}

func createStreamCallback(c *setup.Context) func(frame string) error {
	return func(frame string) error {
		if c.Request().Context().Err() != nil {
			return c.Request().Context().Err()
		}
		_, err := fmt.Fprintf(c.Response(), "%s\n\n", frame)
		if err != nil {
			return err
		}
		c.Response().Flush()
		return nil
	}
}

// writeError maps any error to the single failure envelope. The full
// chain goes to the log; the client only ever sees the fixed message.
func writeError(c *setup.Context, err error) error {
	var gerr *shared.GatewayError
	if !errors.As(err, &gerr) {
		c.Log.Errorw("Unclassified error", "error", err.Error())
		return c.JSON(http.StatusInternalServerError, shared.ErrorResponse{
			Success: false,
			Error:   "internal_error",
			Message: "internal server error",
		})
	}

	if gerr.StatusCode >= 500 {
		c.Log.Errorw("Request failed", "kind", string(gerr.Kind), "error", err.Error())
		metrics.UpstreamErrors.WithLabelValues(upstreamFor(gerr.Kind), string(gerr.Kind)).Inc()
	} else {
		c.Log.Warnw("Request rejected", "kind", string(gerr.Kind), "error", err.Error())
	}

	return c.JSON(gerr.StatusCode, shared.ErrorResponse{
		Success: false,
		Error:   string(gerr.Kind),
		Message: gerr.Msg,
	})
}

func upstreamFor(kind shared.ErrorKind) string {
	switch kind {
	case shared.KindEmptyPayload, shared.KindUnsupportedPayloadType:
		return "speech"
	default:
		return "chat"
	}
}
