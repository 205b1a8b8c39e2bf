package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/papercomputeco/converse/pkg/catalog"
	"github.com/papercomputeco/converse/pkg/converse"
	"github.com/papercomputeco/converse/pkg/eventstream"
	"github.com/papercomputeco/converse/pkg/llm"
	"github.com/papercomputeco/converse/pkg/tools"
)

const (
	opConverse   = "converse"
	opStream     = "converse_stream"
	opMultiTurn  = "multi_turn"
	opStructured = "structured"
)

var errNoBackend = errors.New("backend not configured")

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleConverse runs a single SDK completion. ?prompt= overrides the
// default prompt.
func (s *Server) handleConverse(c *fiber.Ctx) error {
	req := s.request(s.queryPrompt(c, tools.DefaultPrompt))
	return s.complete(c, s.backends.SDK, req, false)
}

// handleGenerate runs a single REST completion for the posted prompt.
func (s *Server) handleGenerate(c *fiber.Ctx) error {
	prompt, status, msg := parsePrompt(c)
	if status != 0 {
		return c.Status(status).JSON(llm.ErrorResponse{Error: msg})
	}
	return s.complete(c, s.backends.REST, s.request(prompt), false)
}

func (s *Server) handleMultiTurn(c *fiber.Ctx) error {
	return s.multiTurn(c, s.backends.SDK)
}

func (s *Server) handleRESTMultiTurn(c *fiber.Ctx) error {
	return s.multiTurn(c, s.backends.REST)
}

func (s *Server) handleStructuredCourse(c *fiber.Ctx) error {
	return s.complete(c, s.backends.SDK, tools.CourseRequest(s.request("")), true)
}

// handleStructuredDriver extracts driver facts. ?name= overrides the default
// driver.
func (s *Server) handleStructuredDriver(c *fiber.Ctx) error {
	name := utils.CopyString(c.Query("name", tools.DriverName))
	return s.complete(c, s.backends.SDK, tools.DriverRequest(s.request(""), name), true)
}

func (s *Server) handleRESTStructured(c *fiber.Ctx) error {
	return s.complete(c, s.backends.REST, tools.CourseRequest(s.request("")), true)
}

// handleListModels lists foundation models. ?provider=, ?output= and
// ?inference= narrow the listing.
func (s *Server) handleListModels(c *fiber.Ctx) error {
	if s.catalog == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(Result{Message: "model catalog not configured"})
	}

	models, err := s.catalog.List(c.UserContext(), catalog.Filter{
		Provider:       c.Query("provider"),
		OutputModality: c.Query("output"),
		InferenceType:  c.Query("inference"),
	})
	if err != nil {
		s.logger.Error("listing foundation models failed", "error", err)
		return c.Status(statusFor(err)).JSON(Result{Message: err.Error()})
	}

	return c.JSON(Result{Success: true, Data: models})
}

// handleGetModel describes the configured model, or ?id= when given.
func (s *Server) handleGetModel(c *fiber.Ctx) error {
	if s.catalog == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(Result{Message: "model catalog not configured"})
	}

	id := c.Query("id", s.config.Request.Model)
	model, err := s.catalog.Get(c.UserContext(), id)
	if err != nil {
		s.logger.Error("getting foundation model failed", "model", id, "error", err)
		return c.Status(statusFor(err)).JSON(Result{Message: err.Error()})
	}

	return c.JSON(Result{Success: true, Data: model})
}

// complete runs one non-streaming completion and writes the Result. When
// structured is set the tool input becomes Data and free text becomes Text;
// otherwise Data is the reply text.
func (s *Server) complete(c *fiber.Ctx, backend converse.Client, req *llm.ChatRequest, structured bool) error {
	op := opConverse
	if structured {
		op = opStructured
	}
	inv := s.begin(c, backend, req, op, false)

	if backend == nil {
		return s.fail(c, inv, errNoBackend)
	}

	resp, err := backend.Converse(c.UserContext(), req)
	if err != nil {
		return s.fail(c, inv, err)
	}

	result := Result{Success: true, Response: resp}
	if structured {
		out, err := converse.Structured(resp)
		if err != nil {
			return s.fail(c, inv, err)
		}
		result.Data = out.Data
		result.Text = out.Text
	} else {
		text := resp.Message.GetText()
		if text == "" {
			return s.fail(c, inv, converse.ErrNoContent)
		}
		result.Data = text
	}

	s.finish(inv, fiber.StatusOK, eventstream.InvocationOutcome{
		StopReason: resp.StopReason,
		Usage:      resp.Usage,
	})
	return c.JSON(result)
}

// multiTurn runs the scripted follow-up conversation.
func (s *Server) multiTurn(c *fiber.Ctx, backend converse.Client) error {
	req := s.request("")
	inv := s.begin(c, backend, req, opMultiTurn, false)

	if backend == nil {
		return s.fail(c, inv, errNoBackend)
	}

	turns, last, err := converse.MultiTurn(c.UserContext(), backend, req, tools.FollowUpPrompts)
	if err != nil {
		return s.fail(c, inv, err)
	}

	s.finish(inv, fiber.StatusOK, eventstream.InvocationOutcome{
		StopReason: last.StopReason,
		Usage:      last.Usage,
	})
	return c.JSON(Result{Success: true, Data: newMultiTurnData(turns), Response: last})
}

// request returns a fresh request from the configured template, holding a
// single user message when prompt is non-empty.
func (s *Server) request(prompt string) *llm.ChatRequest {
	req := s.config.Request.Clone()
	req.Messages = nil
	if prompt != "" {
		req.Messages = append(req.Messages, llm.NewTextMessage(llm.RoleUser, prompt))
	}
	return req
}

// queryPrompt returns ?prompt= copied out of the request buffer, or def.
func (s *Server) queryPrompt(c *fiber.Ctx, def string) string {
	if p := c.Query("prompt"); p != "" {
		return utils.CopyString(p)
	}
	return def
}

// parsePrompt returns the posted prompt, or the status and message to
// reject the request with.
func parsePrompt(c *fiber.Ctx) (string, int, string) {
	var body GenerateRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return "", fiber.StatusBadRequest, "invalid request body"
		}
	}
	if body.Prompt == "" {
		return "", fiber.StatusUnprocessableEntity, "prompt is required"
	}
	return body.Prompt, 0, ""
}

// fail writes a failed Result with the status mapped from err and records the
// invocation.
func (s *Server) fail(c *fiber.Ctx, inv *invocation, err error) error {
	status := statusFor(err)
	s.logger.Error("converse invocation failed",
		"route", inv.route,
		"backend", inv.backend,
		"operation", inv.operation,
		"status", status,
		"error", err,
	)
	s.finish(inv, status, eventstream.InvocationOutcome{Error: err.Error()})
	return c.Status(status).JSON(Result{Message: err.Error()})
}

// statusFor maps an error to the HTTP status returned to the caller.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errNoBackend):
		return fiber.StatusServiceUnavailable
	case converse.IsUpstream(err):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// invocation tracks one backend call for event publishing.
type invocation struct {
	route     string
	backend   string
	model     string
	operation string
	streaming bool
	started   time.Time
}

func (s *Server) begin(c *fiber.Ctx, backend converse.Client, req *llm.ChatRequest, op string, streaming bool) *invocation {
	inv := &invocation{
		model:     req.Model,
		operation: op,
		streaming: streaming,
		started:   time.Now(),
	}
	if r := c.Route(); r != nil {
		inv.route = r.Path
	}
	if backend != nil {
		inv.backend = backend.Name()
	}
	return inv
}
