package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camgraph/internal/api/models"
	"github.com/smazurov/camgraph/internal/pipeline"
)

func (s *Server) registerRequestRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "submit-requests",
		Method:      http.MethodPost,
		Path:        "/api/requests",
		Summary:     "Submit Requests",
		Description: "Submit capture requests carrying the given controls. Submission stops at the first " +
			"request that does not fit; the ids accepted so far are returned.",
		Tags:     []string{"requests"},
		Security: withAuth(),
		Errors:   []int{400, 401, 429, 503},
	}, func(ctx context.Context, input *models.SubmitRequest) (*models.SubmitResponse, error) {
		p, err := s.running()
		if err != nil {
			return nil, err
		}

		count := max(input.Body.Count, 1)
		resp := &models.SubmitResponse{}
		resp.Body.Session = p.Session()
		resp.Body.Requests = make([]uint64, 0, count)
		for range count {
			req, err := p.Submit(ctx, pipeline.SubmitOptions{
				Frames:   input.Body.Frames,
				Controls: input.Body.Controls,
			})
			if err != nil {
				if len(resp.Body.Requests) > 0 {
					break
				}
				return nil, submitError(err)
			}
			resp.Body.Requests = append(resp.Body.Requests, req.ID)
		}
		return resp, nil
	})
}

func submitError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrQueueFull):
		return huma.Error429TooManyRequests("Request queue is full", err)
	case errors.Is(err, pipeline.ErrNotActive):
		return huma.Error503ServiceUnavailable("Pipeline is not active", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return huma.Error400BadRequest("Request cancelled", err)
	}
	return huma.Error500InternalServerError("Submit failed", err)
}
