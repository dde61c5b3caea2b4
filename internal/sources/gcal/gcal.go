// Package gcal polls Google Calendar events as assignments.
//
// Connection details:
//
//	calendar          calendar id or summary (default "primary")
//	credentials_file  OAuth client secrets JSON downloaded from Google Cloud
//	token_file        OAuth token JSON (access + refresh token)
//	lookback          how far back to list events, as a duration (default 24h)
//
// Obtaining the token is outside this package; the file is read on every
// poll and the oauth2 client refreshes the access token as needed.
package gcal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/sources"
)

// Detail keys.
const (
	KeyCalendar        = "calendar"
	KeyCredentialsFile = "credentials_file"
	KeyTokenFile       = "token_file"
	KeyLookback        = "lookback"
)

const (
	defaultCalendar = "primary"
	defaultLookback = 24 * time.Hour
	defaultTimeout  = 30 * time.Second
)

// ServiceFactory builds a calendar service for one account.
type ServiceFactory func(ctx context.Context, acct schema.SourceAccount) (*calendar.Service, error)

// Adapter polls Google Calendar.
type Adapter struct {
	newService ServiceFactory
	now        func() time.Time
	timeout    time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithServiceFactory replaces the OAuth-backed service constructor.
func WithServiceFactory(f ServiceFactory) Option {
	return func(a *Adapter) { a.newService = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithTimeout sets the per-request timeout of the OAuth-backed service.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates the calendar adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{now: time.Now, timeout: defaultTimeout}
	for _, o := range opts {
		o(a)
	}
	if a.newService == nil {
		a.newService = a.oauthService
	}
	return a
}

// Type implements sources.Adapter.
func (a *Adapter) Type() schema.SourceType {
	return schema.SourceTypeCalendar
}

// ValidateDetails implements sources.Adapter.
func (a *Adapter) ValidateDetails(details map[string]string) error {
	if err := sources.RequireDetails(details, KeyCredentialsFile, KeyTokenFile); err != nil {
		return err
	}
	if v := details[KeyLookback]; v != "" {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid lookback %q: %w", v, err)
		}
	}
	return nil
}

// Poll implements sources.Adapter. Cancelled events are skipped.
func (a *Adapter) Poll(ctx context.Context, acct schema.SourceAccount) ([]schema.RawAssignment, error) {
	lookback := defaultLookback
	if v := acct.Detail(KeyLookback, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid lookback %q: %w", v, err)
		}
		lookback = d
	}

	srv, err := a.newService(ctx, acct)
	if err != nil {
		return nil, err
	}

	calendarID, err := resolveCalendar(ctx, srv, acct.Detail(KeyCalendar, defaultCalendar))
	if err != nil {
		return nil, err
	}

	timeMin := a.now().Add(-lookback).Format(time.RFC3339)
	var out []schema.RawAssignment
	err = srv.Events.List(calendarID).
		TimeMin(timeMin).
		SingleEvents(true).
		ShowDeleted(false).
		Pages(ctx, func(page *calendar.Events) error {
			for _, ev := range page.Items {
				if raw, ok := EventToAssignment(ev); ok {
					out = append(out, raw)
				}
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve events from calendar %s: %w", calendarID, err)
	}
	return out, nil
}

// resolveCalendar turns a calendar summary into its id. Values that already
// look like ids are returned as is.
func resolveCalendar(ctx context.Context, srv *calendar.Service, name string) (string, error) {
	if name == defaultCalendar || strings.Contains(name, "@") {
		return name, nil
	}

	list, err := srv.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to retrieve calendar list: %w", err)
	}
	for _, item := range list.Items {
		if item.Summary == name || item.Id == name {
			return item.Id, nil
		}
	}
	return "", fmt.Errorf("calendar '%s' not found", name)
}

// EventToAssignment maps one event. The end time is the due date, falling
// back to the start time; all-day events are due at midnight UTC of their
// date. The bool is false for cancelled events.
func EventToAssignment(ev *calendar.Event) (schema.RawAssignment, bool) {
	if ev == nil || ev.Status == "cancelled" {
		return schema.RawAssignment{}, false
	}

	raw := schema.RawAssignment{
		ExternalID: ev.Id,
		Name:       strings.TrimSpace(ev.Summary),
	}
	if d := strings.TrimSpace(ev.Description); d != "" {
		raw.Description = &d
	}

	if due := eventTime(ev.End); due != nil {
		raw.DueAt = due
	} else {
		raw.DueAt = eventTime(ev.Start)
	}

	if ev.Updated != "" {
		if t, err := time.Parse(time.RFC3339, ev.Updated); err == nil {
			raw.ModifiedAt = &t
		}
	}
	return raw, true
}

func eventTime(dt *calendar.EventDateTime) *time.Time {
	if dt == nil {
		return nil
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return &t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return &t
		}
	}
	return nil
}

// oauthService builds a calendar service from the account's credential and
// token files.
func (a *Adapter) oauthService(ctx context.Context, acct schema.SourceAccount) (*calendar.Service, error) {
	credPath := acct.Detail(KeyCredentialsFile, "")
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file %s: %w", credPath, err)
	}

	config, err := google.ConfigFromJSON(b, calendar.CalendarReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}

	tok, err := tokenFromFile(acct.Detail(KeyTokenFile, ""))
	if err != nil {
		return nil, err
	}

	srv, err := calendar.NewService(ctx, option.WithHTTPClient(a.httpClient(ctx, config, tok)))
	if err != nil {
		return nil, fmt.Errorf("unable to create calendar service: %w", err)
	}
	return srv, nil
}

// httpClient returns an oauth2 client whose requests give up after the
// adapter timeout.
func (a *Adapter) httpClient(ctx context.Context, config *oauth2.Config, tok *oauth2.Token) *http.Client {
	client := config.Client(ctx, tok)
	client.Timeout = a.timeout
	return client
}

// tokenFromFile reads an oauth2.Token from a JSON file.
func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("failed to decode token from file %s: %w", path, err)
	}
	return tok, nil
}
