package google

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/boblangley/meeting-optimizer/internal/types"
)

// CalendarConfig configures a CalendarClient.
type CalendarConfig struct {
	// HTTPClient carries the OAuth2 credentials.
	HTTPClient *http.Client

	// Endpoint overrides the API base URL. Empty uses the default.
	Endpoint string

	// CalendarID is the calendar to operate on. Empty means "primary".
	CalendarID string

	Retrier *Retrier
	Logger  *slog.Logger
}

// CalendarClient lists and mutates events of one calendar.
type CalendarClient struct {
	svc        *calendar.Service
	calendarID string
	retry      *Retrier
	logger     *slog.Logger
}

// NewCalendarClient creates a Calendar v3 client.
func NewCalendarClient(ctx context.Context, cfg CalendarConfig) (*CalendarClient, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	retry := cfg.Retrier
	if retry == nil {
		retry = NewRetrier(RetryConfig{Logger: logger})
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}

	opts := []option.ClientOption{option.WithHTTPClient(cfg.HTTPClient)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	return &CalendarClient{
		svc:        svc,
		calendarID: calendarID,
		retry:      retry,
		logger:     logger,
	}, nil
}

// Timezone returns the user's calendar timezone setting.
func (c *CalendarClient) Timezone(ctx context.Context) (*time.Location, error) {
	var setting *calendar.Setting
	err := c.retry.Do(ctx, "settings.get", func(ctx context.Context) error {
		var err error
		setting, err = c.svc.Settings.Get("timezone").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get timezone setting: %w", err)
	}
	loc, err := time.LoadLocation(setting.Value)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", setting.Value, err)
	}
	return loc, nil
}

// EventsForDate lists the timed, non-cancelled recurrence instances that
// start on day, in day's location.
func (c *CalendarClient) EventsForDate(ctx context.Context, day time.Time) ([]types.Event, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var events []types.Event
	err := c.retry.Do(ctx, "events.list", func(ctx context.Context) error {
		events = events[:0]
		return c.svc.Events.List(c.calendarID).
			TimeMin(start.Format(time.RFC3339)).
			TimeMax(end.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			ShowDeleted(false).
			Context(ctx).
			Pages(ctx, func(page *calendar.Events) error {
				for _, item := range page.Items {
					if ev, ok := c.convert(item); ok {
						events = append(events, ev)
					}
				}
				return nil
			})
	})
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", start.Format("2006-01-02"), err)
	}

	c.logger.Info("fetched recurring events", "date", start.Format("2006-01-02"), "count", len(events))
	return events, nil
}

// convert maps an API event, reporting false for events the optimizer never
// touches.
func (c *CalendarClient) convert(item *calendar.Event) (types.Event, bool) {
	if item.Status == "cancelled" {
		return types.Event{}, false
	}
	if item.RecurringEventId == "" {
		c.logger.Debug("skipping non-recurring event", "id", item.Id)
		return types.Event{}, false
	}
	if item.Start == nil || item.Start.DateTime == "" {
		c.logger.Debug("skipping all-day event", "id", item.Id)
		return types.Event{}, false
	}

	ev := types.Event{
		ID:               item.Id,
		Summary:          item.Summary,
		Description:      item.Description,
		RecurringEventID: item.RecurringEventId,
		Status:           item.Status,
	}
	ev.Start, _ = time.Parse(time.RFC3339, item.Start.DateTime)
	if item.End != nil {
		ev.End, _ = time.Parse(time.RFC3339, item.End.DateTime)
	}
	for _, a := range item.Attachments {
		if a == nil {
			continue
		}
		ev.Attachments = append(ev.Attachments, types.Attachment{
			URL:      a.FileUrl,
			MimeType: a.MimeType,
			Title:    a.Title,
		})
	}
	return ev, true
}

// Annotate replaces the description of an event with a partial update.
func (c *CalendarClient) Annotate(ctx context.Context, eventID, description string) error {
	patch := &calendar.Event{Description: description}
	err := c.retry.Do(ctx, "events.patch", func(ctx context.Context) error {
		_, err := c.svc.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("patch event %s: %w", eventID, err)
	}
	return nil
}

// Remove deletes an occurrence and notifies all attendees. An occurrence that
// is already gone counts as removed.
func (c *CalendarClient) Remove(ctx context.Context, eventID string) error {
	err := c.retry.Do(ctx, "events.delete", func(ctx context.Context) error {
		return c.svc.Events.Delete(c.calendarID, eventID).SendUpdates("all").Context(ctx).Do()
	})
	if IsGone(err) {
		c.logger.Info("occurrence already removed", "id", eventID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	return nil
}
