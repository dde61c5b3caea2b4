// Package lms polls course assignments from a Canvas-compatible REST API.
//
// Connection details:
//
//	base_url   e.g. https://school.instructure.com
//	course_id  numeric course id
//	token      API access token, sent as a bearer token
//
// Results are paginated through the Link response header; every page is
// fetched on each poll.
package lms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/sources"
)

// Detail keys.
const (
	KeyBaseURL  = "base_url"
	KeyCourseID = "course_id"
	KeyToken    = "token"
)

const (
	pageSize = 100
	// maxPages bounds a runaway Link chain.
	maxPages = 50
)

// assignment is the subset of the Canvas assignment object we read.
type assignment struct {
	ID          json.Number `json:"id"`
	Name        string      `json:"name"`
	Description *string     `json:"description"`
	DueAt       *time.Time  `json:"due_at"`
	UpdatedAt   *time.Time  `json:"updated_at"`
	Published   *bool       `json:"published"`
}

// Adapter polls a Canvas-style LMS.
type Adapter struct {
	// base is used for requests instead of http.DefaultClient's transport.
	base    http.RoundTripper
	timeout time.Duration
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithTransport sets the underlying transport beneath the bearer token.
func WithTransport(rt http.RoundTripper) Option {
	return func(a *Adapter) { a.base = rt }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.timeout = d }
}

// New creates the LMS adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{timeout: 30 * time.Second}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Type implements sources.Adapter.
func (a *Adapter) Type() schema.SourceType {
	return schema.SourceTypeLMS
}

// ValidateDetails implements sources.Adapter.
func (a *Adapter) ValidateDetails(details map[string]string) error {
	if err := sources.RequireDetails(details, KeyBaseURL, KeyCourseID, KeyToken); err != nil {
		return err
	}
	u, err := url.Parse(details[KeyBaseURL])
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", details[KeyBaseURL])
	}
	return nil
}

// Poll implements sources.Adapter. Unpublished assignments are skipped.
func (a *Adapter) Poll(ctx context.Context, acct schema.SourceAccount) ([]schema.RawAssignment, error) {
	if err := a.ValidateDetails(acct.Details); err != nil {
		return nil, err
	}

	client := a.client(ctx, acct.Details[KeyToken])
	next := fmt.Sprintf("%s/api/v1/courses/%s/assignments?per_page=%d",
		strings.TrimRight(acct.Details[KeyBaseURL], "/"),
		url.PathEscape(acct.Details[KeyCourseID]),
		pageSize)

	var out []schema.RawAssignment
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return nil, fmt.Errorf("too many pages from %s", acct.Details[KeyBaseURL])
		}

		items, link, err := a.fetchPage(ctx, client, next)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if it.Published != nil && !*it.Published {
				continue
			}
			out = append(out, toRaw(it))
		}
		next = nextLink(link)
	}
	return out, nil
}

func (a *Adapter) client(ctx context.Context, token string) *http.Client {
	if a.base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: a.base})
	}
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	client.Timeout = a.timeout
	return client
}

func (a *Adapter) fetchPage(ctx context.Context, client *http.Client, u string) ([]assignment, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch assignments: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("assignments request failed: %s: %s",
			resp.Status, strings.TrimSpace(string(body)))
	}

	var items []assignment
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, "", fmt.Errorf("failed to decode assignments: %w", err)
	}
	return items, resp.Header.Get("Link"), nil
}

func toRaw(it assignment) schema.RawAssignment {
	raw := schema.RawAssignment{
		ExternalID: it.ID.String(),
		Name:       strings.TrimSpace(it.Name),
		DueAt:      it.DueAt,
		ModifiedAt: it.UpdatedAt,
	}
	if it.Description != nil {
		if d := strings.TrimSpace(*it.Description); d != "" {
			raw.Description = &d
		}
	}
	return raw
}

// nextLink extracts the rel="next" target from an RFC 8288 Link header.
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		segs := strings.Split(part, ";")
		if len(segs) < 2 {
			continue
		}
		target := strings.TrimSpace(segs[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, p := range segs[1:] {
			p = strings.TrimSpace(p)
			if p == `rel="next"` || p == "rel=next" {
				return target[1 : len(target)-1]
			}
		}
	}
	return ""
}
