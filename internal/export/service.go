package export

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"podnotes/api/internal/logging"
	"podnotes/api/internal/store"
)

// Source loads a container's outline in document order.
type Source interface {
	Snapshot(ctx context.Context, containerID string) ([]store.Node, error)
}

// Service provides outline export functionality
type Service struct {
	source Source
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(source Source, logger zerolog.Logger) *Service {
	return &Service{
		source: source,
		log:    logging.Component(logger, "export"),
		now:    time.Now,
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	nodes, err := s.source.Snapshot(ctx, req.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("load outline: %w", err)
	}

	title := req.Title
	if title == "" {
		title = "Show notes"
	}
	items := BuildTree(nodes)

	if req.Format == FormatMarkdown {
		return &Result{
			Data:     []byte(RenderMarkdown(title, items)),
			Filename: sanitizeFilename(title) + ".md",
			MimeType: "text/markdown; charset=utf-8",
		}, nil
	}

	html, err := RenderHTML(TemplateData{Title: title, Items: items, Nodes: len(nodes), GeneratedAt: s.now().UTC()})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML:
		result = &Result{Data: []byte(html), Filename: sanitizeFilename(title) + ".html", MimeType: "text/html; charset=utf-8"}
	case FormatPDF:
		result, err = exportPDF(ctx, html, title)
	case FormatDOCX:
		result, err = exportDOCX(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}
	s.log.Debug().Str("container_id", req.ContainerID).Str("format", string(req.Format)).Int("bytes", len(result.Data)).Msg("outline exported")
	return result, nil
}
