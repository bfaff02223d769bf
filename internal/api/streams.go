package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"

	"github.com/tardsplaya/tardsplayad/internal/coordinator"
	"github.com/tardsplaya/tardsplayad/internal/logging"
	"github.com/tardsplaya/tardsplayad/internal/player"
	"github.com/tardsplaya/tardsplayad/internal/stream"
)

// heartbeatInterval is how often the events stream emits a heartbeat comment
// when a Stream produces no state transition to report.
const heartbeatInterval = 15 * time.Second

// StreamsHandler implements the stream-management endpoints:
// POST /streams, DELETE /streams/{channel}, GET /streams,
// GET /streams/{channel}/events.
type StreamsHandler struct {
	coord *coordinator.Coordinator
}

// NewStreamsHandler creates a StreamsHandler wired to coord.
func NewStreamsHandler(coord *coordinator.Coordinator) *StreamsHandler {
	return &StreamsHandler{coord: coord}
}

// StreamSummary is the JSON shape of one registered Stream.
type StreamSummary struct {
	Channel       string `json:"channel"`
	CorrelationID string `json:"correlation_id"`
	Phase         string `json:"phase"`
	ChunkCount    int64  `json:"chunk_count"`
}

func summarize(channel string, s *stream.Stream) StreamSummary {
	return StreamSummary{
		Channel:       channel,
		CorrelationID: s.CorrelationID(),
		Phase:         s.Phase().String(),
		ChunkCount:    s.ChunkCount(),
	}
}

// StartStreamInput is the request body for POST /streams.
type StartStreamInput struct {
	Body struct {
		Channel    string   `json:"channel" doc:"Channel name to resolve and ingest"`
		Quality    string   `json:"quality" doc:"Quality label matching a master-playlist variant"`
		PlayerPath string   `json:"player_path" doc:"Path to the player executable"`
		PlayerArgs []string `json:"player_args,omitempty" doc:"Extra arguments passed to the player"`
	}
}

// StartStreamOutput is the response body for POST /streams.
type StartStreamOutput struct {
	Body StreamSummary
}

// DeleteStreamInput is the request input for DELETE /streams/{channel}.
type DeleteStreamInput struct {
	Channel string `path:"channel"`
}

// DeleteStreamOutput is the response body for DELETE /streams/{channel}.
type DeleteStreamOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// ListStreamsInput is the request input for GET /streams.
type ListStreamsInput struct{}

// ListStreamsOutput is the response body for GET /streams.
type ListStreamsOutput struct {
	Body struct {
		Streams []StreamSummary `json:"streams"`
	}
}

// StreamEventsInput is the request input for GET /streams/{channel}/events.
type StreamEventsInput struct {
	Channel string `path:"channel"`
}

// StreamEvent is the SSE payload emitted on every phase or chunk-count
// change, and once more on termination carrying the terminal Outcome.
type StreamEvent struct {
	Channel    string `json:"channel"`
	Phase      string `json:"phase"`
	ChunkCount int64  `json:"chunk_count"`
	Terminated bool   `json:"terminated"`
	OutcomeErr string `json:"outcome_error,omitempty"`
}

// Register registers the non-streaming operations with the huma API.
func (h *StreamsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "startStream",
		Method:      http.MethodPost,
		Path:        "/streams",
		Summary:     "Start ingesting a channel",
		Description: "Resolves the channel's master playlist, selects the requested quality, and launches a Stream task",
		Tags:        []string{"Streams"},
	}, h.Start)

	huma.Register(api, huma.Operation{
		OperationID: "stopStream",
		Method:      http.MethodDelete,
		Path:        "/streams/{channel}",
		Summary:     "Stop ingesting a channel",
		Description: "Requests cooperative cancellation of the channel's Stream task",
		Tags:        []string{"Streams"},
	}, h.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "listStreams",
		Method:      http.MethodGet,
		Path:        "/streams",
		Summary:     "List active streams",
		Tags:        []string{"Streams"},
	}, h.List)

	// Registered for OpenAPI schema generation only; the real handler is
	// RegisterSSE below, since huma has no native SSE streaming support.
	sse.Register(api, huma.Operation{
		OperationID: "streamEvents",
		Method:      http.MethodGet,
		Path:        "/streams/{channel}/events",
		Summary:     "Subscribe to a stream's lifecycle events",
		Description: "Server-Sent Events stream of phase transitions and chunk-count updates, ending with the terminal outcome",
		Tags:        []string{"Streams"},
	}, map[string]any{
		"status": StreamEvent{},
	}, func(ctx context.Context, input *StreamEventsInput, send sse.Sender) {
		<-ctx.Done()
	})
}

// Start handles POST /streams.
func (h *StreamsHandler) Start(ctx context.Context, input *StartStreamInput) (*StartStreamOutput, error) {
	if input.Body.Channel == "" {
		return nil, huma.Error400BadRequest("channel must not be empty")
	}
	if input.Body.Quality == "" {
		return nil, huma.Error400BadRequest("quality must not be empty")
	}
	if input.Body.PlayerPath == "" {
		return nil, huma.Error400BadRequest("player_path must not be empty")
	}

	s, err := h.coord.Start(ctx, coordinator.StartRequest{
		Channel: input.Body.Channel,
		Quality: input.Body.Quality,
		PlayerCmd: player.Command{
			BinaryPath: input.Body.PlayerPath,
			Args:       input.Body.PlayerArgs,
		},
	})
	if err != nil {
		return nil, classifyStartError(err)
	}

	return &StartStreamOutput{Body: summarize(input.Body.Channel, s)}, nil
}

// classifyStartError maps a Coordinator.Start error to an HTTP status.
// ErrAlreadyRunning, ErrResolve, and ErrUnknownQuality all surface
// synchronously from Start; all three are client-correctable (pick a
// different channel/quality, or stop the existing stream first), so they
// map to 409/422 rather than 500.
func classifyStartError(err error) error {
	if errors.Is(err, coordinator.ErrAlreadyRunning) {
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error422UnprocessableEntity(err.Error())
}

// Stop handles DELETE /streams/{channel}.
func (h *StreamsHandler) Stop(ctx context.Context, input *DeleteStreamInput) (*DeleteStreamOutput, error) {
	if err := h.coord.Stop(input.Channel); err != nil {
		return nil, huma.Error404NotFound(err.Error())
	}
	out := &DeleteStreamOutput{}
	out.Body.Message = fmt.Sprintf("stream %s stopping", input.Channel)
	return out, nil
}

// List handles GET /streams.
func (h *StreamsHandler) List(ctx context.Context, input *ListStreamsInput) (*ListStreamsOutput, error) {
	channels := h.coord.List()
	out := &ListStreamsOutput{}
	out.Body.Streams = make([]StreamSummary, 0, len(channels))
	for _, ch := range channels {
		if s, ok := h.coord.Get(ch); ok {
			out.Body.Streams = append(out.Body.Streams, summarize(ch, s))
		}
	}
	return out, nil
}

// RegisterSSE registers the real /streams/{channel}/events handler on the
// chi router directly, since huma has no native SSE streaming support.
func (h *StreamsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/streams/{channel}/events", h.handleEvents)
}

func (h *StreamsHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	channel := chi.URLParam(r, "channel")

	s, ok := h.coord.Get(channel)
	if !ok {
		http.Error(w, fmt.Sprintf("stream %q not running", channel), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_, _ = w.Write([]byte(": connected\n\n"))
	_ = rc.Flush()

	ctx := r.Context()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	lastPhase := s.Phase()
	lastChunks := s.ChunkCount()
	writeEvent(w, rc, StreamEvent{Channel: channel, Phase: lastPhase.String(), ChunkCount: lastChunks})

	poll := time.NewTicker(250 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			outcome := s.Outcome()
			ev := StreamEvent{
				Channel:    channel,
				Phase:      stream.PhaseTerminated.String(),
				ChunkCount: s.ChunkCount(),
				Terminated: true,
			}
			if outcome.Err != nil {
				ev.OutcomeErr = outcome.Err.Error()
			}
			writeEvent(w, rc, ev)
			return
		case <-ticker.C:
			_, _ = fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().Unix())
			_ = rc.Flush()
		case <-poll.C:
			phase := s.Phase()
			chunks := s.ChunkCount()
			if phase != lastPhase || chunks != lastChunks {
				lastPhase, lastChunks = phase, chunks
				writeEvent(w, rc, StreamEvent{Channel: channel, Phase: phase.String(), ChunkCount: chunks})
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev StreamEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	// The id line carries a time-ordered record ID so a reconnecting client
	// can tell where in the event sequence it left off.
	_, _ = fmt.Fprintf(w, "id: %s\nevent: status\ndata: %s\n\n", logging.NewRecordID(), payload)
	_ = rc.Flush()
}
