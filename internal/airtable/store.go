/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package airtable

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/mobgames/site/httpclient"
	"github.com/mobgames/site/httpserver/middleware"
	"github.com/mobgames/site/restapi"
)

// Field names of the participants table.
const (
	FieldSlackID           = "Slack ID"
	FieldMinecraftUsername = "Minecraft Username"
)

// ErrNotFound is returned when there is no participant with the given Slack ID.
var ErrNotFound = errors.New("participant not found")

// ErrInvalidSlackID is returned for Slack IDs that cannot be safely put into a formula.
var ErrInvalidSlackID = errors.New("invalid slack id")

var slackIDRegExp = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Participant is a row of the participants table.
type Participant struct {
	RecordID          string
	SlackID           string
	MinecraftUsername string
}

type record struct {
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

type recordsBody struct {
	Records []record `json:"records"`
}

func (r record) participant() Participant {
	p := Participant{RecordID: r.ID}
	p.SlackID, _ = r.Fields[FieldSlackID].(string)
	p.MinecraftUsername, _ = r.Fields[FieldMinecraftUsername].(string)
	return p
}

// Store keeps the jam participants in an Airtable table.
// The passed http.Client is expected to authorize requests with the personal access token
// and to be rate limited (see httpclient.Opts).
type Store struct {
	httpClient *http.Client
	tableURL   string
}

// NewStore creates a new Store.
func NewStore(cfg *Config, httpClient *http.Client) *Store {
	return &Store{httpClient: httpClient, tableURL: cfg.TableURL()}
}

// FindBySlackID returns the participant with the given Slack ID or ErrNotFound.
func (s *Store) FindBySlackID(ctx context.Context, slackID string) (Participant, error) {
	if !slackIDRegExp.MatchString(slackID) {
		return Participant{}, ErrInvalidSlackID
	}
	query := url.Values{
		"filterByFormula": {fmt.Sprintf("{%s}='%s'", FieldSlackID, slackID)},
		"maxRecords":      {"1"},
	}
	ctx = httpclient.NewContextWithOperation(ctx, "find_participant")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.tableURL+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return Participant{}, err
	}
	var resp recordsBody
	if err = s.do(req, &resp); err != nil {
		return Participant{}, fmt.Errorf("find participant: %w", err)
	}
	if len(resp.Records) == 0 {
		return Participant{}, ErrNotFound
	}
	return resp.Records[0].participant(), nil
}

// Create adds a new participant with the given Slack ID.
func (s *Store) Create(ctx context.Context, slackID string) (Participant, error) {
	if !slackIDRegExp.MatchString(slackID) {
		return Participant{}, ErrInvalidSlackID
	}
	body := recordsBody{Records: []record{{Fields: map[string]interface{}{FieldSlackID: slackID}}}}
	ctx = httpclient.NewContextWithOperation(ctx, "create_participant")
	req, err := restapi.NewJSONRequest(ctx, http.MethodPost, s.tableURL, body)
	if err != nil {
		return Participant{}, err
	}
	var resp recordsBody
	if err = s.do(req, &resp); err != nil {
		return Participant{}, fmt.Errorf("create participant: %w", err)
	}
	if len(resp.Records) == 0 {
		return Participant{}, fmt.Errorf("create participant: no records in response")
	}
	return resp.Records[0].participant(), nil
}

// UpdateMinecraftUsername sets the Minecraft username of the participant record.
func (s *Store) UpdateMinecraftUsername(ctx context.Context, recordID, username string) (Participant, error) {
	body := recordsBody{Records: []record{{
		ID:     recordID,
		Fields: map[string]interface{}{FieldMinecraftUsername: username},
	}}}
	ctx = httpclient.NewContextWithOperation(ctx, "update_participant")
	ctx = httpclient.NewContextWithIdempotentHint(ctx, true)
	req, err := restapi.NewJSONRequest(ctx, http.MethodPatch, s.tableURL, body)
	if err != nil {
		return Participant{}, err
	}
	var resp recordsBody
	if err = s.do(req, &resp); err != nil {
		return Participant{}, fmt.Errorf("update participant: %w", err)
	}
	if len(resp.Records) == 0 {
		return Participant{}, fmt.Errorf("update participant: no records in response")
	}
	return resp.Records[0].participant(), nil
}

// EnsureParticipant returns the existing participant or creates a new one.
// The second returned value is true if the participant was created.
func (s *Store) EnsureParticipant(ctx context.Context, slackID string) (Participant, bool, error) {
	p, err := s.FindBySlackID(ctx, slackID)
	if err == nil {
		return p, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Participant{}, false, err
	}
	if p, err = s.Create(ctx, slackID); err != nil {
		return Participant{}, false, err
	}
	return p, true, nil
}

func (s *Store) do(req *http.Request, result interface{}) error {
	return restapi.DoRequestAndUnmarshalJSON(
		s.httpClient, req, result, middleware.GetLoggerFromContextOrDisabled(req.Context()))
}
