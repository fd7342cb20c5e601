package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/camgraph/internal/api/models"
	"github.com/smazurov/camgraph/internal/metrics"
	"github.com/smazurov/camgraph/internal/pipeline"
)

func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipeline",
		Summary:     "Pipeline",
		Description: "Nodes, negotiated port formats, links, pending dependency units and in-flight requests",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.PipelineResponse, error) {
		p, err := s.running()
		if err != nil {
			return nil, err
		}
		return &models.PipelineResponse{
			Body: models.PipelineData{Snapshot: p.Snapshot(), Totals: metrics.Totals()},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "flush-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/flush",
		Summary:     "Flush",
		Description: "Cancel every in-flight request and restart request numbering at 1",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(_ context.Context, _ *struct{}) (*models.FlushResponse, error) {
		p, err := s.running()
		if err != nil {
			return nil, err
		}
		res := p.Flush()
		s.logger.Info("Pipeline flushed via API", "session", p.Session(), "requests", res.Requests)
		return &models.FlushResponse{
			Body: models.FlushData{
				Session:         p.Session(),
				CancelledUnits:  res.Units,
				CancelledFences: res.Fences,
				Requests:        res.Requests,
				Commands:        res.Commands,
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "renegotiate-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/renegotiate",
		Summary:     "Renegotiate",
		Description: "Re-run format negotiation on an idle pipeline and check the result matches the active formats",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 500, 503},
	}, func(_ context.Context, _ *struct{}) (*models.RenegotiateResponse, error) {
		p, err := s.running()
		if err != nil {
			return nil, err
		}
		switch err := p.Renegotiate(); {
		case errors.Is(err, pipeline.ErrBusy):
			return nil, huma.Error409Conflict("Requests are in flight; flush first", err)
		case errors.Is(err, pipeline.ErrFormatsChanged):
			return nil, huma.Error409Conflict("Negotiation result changed; the pipeline must be rebuilt", err)
		case err != nil:
			return nil, huma.Error500InternalServerError("Renegotiation failed", err)
		}
		resp := &models.RenegotiateResponse{}
		resp.Body.Session = p.Session()
		resp.Body.Message = "formats unchanged"
		return resp, nil
	})
}
