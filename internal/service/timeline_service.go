package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/capital-declarations-api/internal/dto"
	"github.com/noah-isme/capital-declarations-api/internal/models"
	appErrors "github.com/noah-isme/capital-declarations-api/pkg/errors"
	"github.com/noah-isme/capital-declarations-api/pkg/export"
)

type declarationReader interface {
	GetByID(ctx context.Context, firmID, id string) (*models.Declaration, error)
}

type statusHistoryReader interface {
	ListByDeclaration(ctx context.Context, firmID, declarationID string, limit int) ([]models.StatusHistoryEntry, error)
}

type communicationReader interface {
	ListByDeclaration(ctx context.Context, firmID, declarationID string, limit int) ([]models.CommunicationEntry, error)
}

// Renderer turns a tabular dataset into a downloadable file.
type Renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// TimelineService merges status history and communications into one view.
type TimelineService struct {
	declarations   declarationReader
	history        statusHistoryReader
	communications communicationReader
	renderers      map[dto.TimelineExportFormat]Renderer
}

// NewTimelineService constructs the assembler with the PDF and CSV renderers.
func NewTimelineService(declarations declarationReader, history statusHistoryReader, communications communicationReader) *TimelineService {
	return &TimelineService{
		declarations:   declarations,
		history:        history,
		communications: communications,
		renderers: map[dto.TimelineExportFormat]Renderer{
			dto.TimelineExportPDF: export.NewPDFExporter(),
			dto.TimelineExportCSV: export.NewCSVExporter(),
		},
	}
}

// Assemble returns the declaration timeline, most recent first. Equal
// timestamps are ordered by insertion, later first. A non-positive limit
// returns everything.
func (s *TimelineService) Assemble(ctx context.Context, firmID, declarationID string, limit int) (*models.Timeline, error) {
	if _, err := s.declarations.GetByID(ctx, firmID, declarationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "declaration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load declaration")
	}
	return s.assemble(ctx, firmID, declarationID, limit)
}

func (s *TimelineService) assemble(ctx context.Context, firmID, declarationID string, limit int) (*models.Timeline, error) {
	fetch := 0
	if limit > 0 {
		fetch = limit + 1
	}
	history, err := s.history.ListByDeclaration(ctx, firmID, declarationID, fetch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	comms, err := s.communications.ListByDeclaration(ctx, firmID, declarationID, fetch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load communications")
	}

	return mergeTimeline(history, comms, limit), nil
}

func mergeTimeline(history []models.StatusHistoryEntry, comms []models.CommunicationEntry, limit int) *models.Timeline {
	entries := make([]models.TimelineEntry, 0, len(history)+len(comms))
	for _, h := range history {
		entries = append(entries, models.TimelineEntryFromStatus(h))
	}
	for _, c := range comms {
		entries = append(entries, models.TimelineEntryFromCommunication(c))
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.After(entries[j].Timestamp)
		}
		return entries[i].Seq() > entries[j].Seq()
	})

	timeline := &models.Timeline{Entries: entries}
	if limit > 0 && len(entries) > limit {
		timeline.Entries = entries[:limit]
		timeline.HasMore = true
	}
	return timeline
}

// Export renders the full timeline in the requested format.
func (s *TimelineService) Export(ctx context.Context, firmID, declarationID string, format dto.TimelineExportFormat) (*dto.TimelineExport, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
	decl, err := s.declarations.GetByID(ctx, firmID, declarationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "declaration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load declaration")
	}
	timeline, err := s.assemble(ctx, firmID, declarationID, 0)
	if err != nil {
		return nil, err
	}

	data, err := renderer.Render(timelineDataset(decl, timeline))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timeline")
	}
	return &dto.TimelineExport{
		FileName:    fmt.Sprintf("timeline-%d-%s.%s", decl.TaxYear, decl.ID, renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        data,
	}, nil
}

func timelineDataset(decl *models.Declaration, timeline *models.Timeline) export.Dataset {
	ds := export.Dataset{
		Title:    fmt.Sprintf("Capital declaration %d", decl.TaxYear),
		Subtitle: strings.TrimSpace(decl.ClientName + " " + string(decl.Status)),
		Columns: []export.Column{
			{Header: "Time", Width: 38},
			{Header: "Type", Width: 30},
			{Header: "Event", Width: 70},
			{Header: "Details", Width: 100},
			{Header: "By", Width: 40},
		},
		Rows: make([][]string, 0, len(timeline.Entries)),
	}
	for _, e := range timeline.Entries {
		ds.Rows = append(ds.Rows, timelineRow(e))
	}
	return ds
}

func timelineRow(e models.TimelineEntry) []string {
	ts := e.Timestamp.UTC().Format(time.RFC3339)
	if sc := e.StatusChange; sc != nil {
		event := string(sc.ToStatus)
		if sc.FromStatus != nil {
			event = string(*sc.FromStatus) + " -> " + event
		}
		by := "system"
		if sc.ChangedBy != nil {
			by = *sc.ChangedBy
		}
		return []string{ts, string(e.Type), event, deref(sc.Notes), by}
	}
	c := e.Communication
	event := string(c.CommunicationType) + " (" + string(c.Direction) + ")"
	details := strings.TrimSpace(strings.Join(nonEmpty(deref(c.Subject), deref(c.Content), deref(c.Outcome)), " | "))
	return []string{ts, string(e.Type), event, details, deref(c.CreatedBy)}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonEmpty(values ...string) []string {
	out := values[:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
