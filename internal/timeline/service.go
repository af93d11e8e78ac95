// Package timeline merges an order's audit trail and operational records
// into a single newest-first feed.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/laundrytrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/laundrytrack-backend/pkg/errors"
	"github.com/angelmondragon/laundrytrack-backend/pkg/logger"
	"github.com/angelmondragon/laundrytrack-backend/pkg/metrics"
	"github.com/angelmondragon/laundrytrack-backend/pkg/pagination"
)

// HistoryReader is the slice of the orders repository the timeline reads.
type HistoryReader interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	ListHistory(ctx context.Context, orderID uuid.UUID) ([]models.OrderHistoryEntry, error)
}

// OperationsReader lists the operational rows of an order.
type OperationsReader interface {
	ListAssignments(ctx context.Context, orderID uuid.UUID) ([]models.DriverAssignment, error)
	ListProcessing(ctx context.Context, orderID uuid.UUID) ([]models.OrderProcessing, error)
	ListIssues(ctx context.Context, orderID uuid.UUID) ([]models.IssueReport, error)
}

// Service builds order timelines. It never writes.
type Service interface {
	BuildTimeline(ctx context.Context, orderID uuid.UUID) ([]Event, error)
	PageTimeline(ctx context.Context, orderID uuid.UUID, params pagination.Params) (*Page, error)
}

// Page is one slice of a timeline. NextCursor is empty on the last page.
type Page struct {
	Events     []Event `json:"events"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

type service struct {
	history HistoryReader
	ops     OperationsReader
	logg    *logger.Logger
	metrics *metrics.OperationMetrics
}

// NewService wires the timeline aggregator.
func NewService(history HistoryReader, ops OperationsReader, logg *logger.Logger, m *metrics.OperationMetrics) (Service, error) {
	if history == nil {
		return nil, fmt.Errorf("history reader required")
	}
	if ops == nil {
		return nil, fmt.Errorf("operations reader required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{history: history, ops: ops, logg: logg, metrics: m}, nil
}

func (s *service) BuildTimeline(ctx context.Context, orderID uuid.UUID) (events []Event, err error) {
	started := time.Now()
	defer func() { s.metrics.Observe("build_timeline", started, err) }()

	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if _, err := s.history.FindOrder(ctx, orderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order")
	}

	var history, drivers, processing, issues []Event
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.history.ListHistory(gctx, orderID)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		history = normalize(rows, fromHistory)
		return nil
	})
	g.Go(func() error {
		rows, err := s.ops.ListAssignments(gctx, orderID)
		if err != nil {
			return fmt.Errorf("list driver assignments: %w", err)
		}
		drivers = normalize(rows, fromAssignment)
		return nil
	})
	g.Go(func() error {
		rows, err := s.ops.ListProcessing(gctx, orderID)
		if err != nil {
			return fmt.Errorf("list processing: %w", err)
		}
		processing = normalize(rows, fromProcessing)
		return nil
	})
	g.Go(func() error {
		rows, err := s.ops.ListIssues(gctx, orderID)
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}
		issues = normalize(rows, fromIssue)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build timeline")
	}

	events = merge(history, drivers, processing, issues)
	s.logg.Debug(s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), map[string]any{
		"events": len(events),
	}), "timeline built")
	return events, nil
}

// PageTimeline returns the events that sort after the cursor. The cursor
// addresses a position in the merge order rather than an offset, so rows
// written between requests never shift a page.
func (s *service) PageTimeline(ctx context.Context, orderID uuid.UUID, params pagination.Params) (*Page, error) {
	after, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid timeline cursor")
	}
	events, err := s.BuildTimeline(ctx, orderID)
	if err != nil {
		return nil, err
	}

	start := 0
	if after != nil {
		anchor := Event{CreatedAt: after.CreatedAt, Source: Source(after.Rank), SourceID: after.ID}
		start = slices.IndexFunc(events, func(ev Event) bool { return before(anchor, ev) })
		if start < 0 {
			start = len(events)
		}
	}
	end := min(start+pagination.NormalizeLimit(params.Limit), len(events))

	page := &Page{Events: events[start:end]}
	if end < len(events) {
		last := page.Events[len(page.Events)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			Rank:      int(last.Source),
			ID:        last.SourceID,
		})
	}
	return page, nil
}

// normalize converts rows and restores the merge order if the store returned
// them in a different one.
func normalize[T any](rows []T, convert func(T) Event) []Event {
	out := make([]Event, 0, len(rows))
	for _, row := range rows {
		ev := convert(row)
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	if !slices.IsSortedFunc(out, compare) {
		slices.SortStableFunc(out, compare)
	}
	return out
}

func compare(a, b Event) int {
	switch {
	case before(a, b):
		return -1
	case before(b, a):
		return 1
	default:
		return 0
	}
}
