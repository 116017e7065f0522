/*
Copyright © 2025 Mob Games.

Released under MIT license.
*/

package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/mobgames/site/httpclient"
	"github.com/mobgames/site/restapi"
)

const testToken = "patTEST.123"

// fakeTable emulates the records endpoint of a single Airtable table.
type fakeTable struct {
	t       *testing.T
	mu      sync.Mutex
	records []record
	nextID  int
	fail    bool
}

func (ft *fakeTable) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	assert.Equal(ft.t, "/v0/appTest/tblTest", r.URL.Path)
	assert.Equal(ft.t, "Bearer "+testToken, r.Header.Get("Authorization"))

	ft.mu.Lock()
	defer ft.mu.Unlock()
	if ft.fail {
		rw.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = rw.Write([]byte(`{"error":{"type":"INVALID_REQUEST_UNKNOWN"}}`))
		return
	}

	switch r.Method {
	case http.MethodGet:
		assert.Equal(ft.t, "1", r.URL.Query().Get("maxRecords"))
		var found []record
		for _, rec := range ft.records {
			if r.URL.Query().Get("filterByFormula") == "{Slack ID}='"+rec.Fields[FieldSlackID].(string)+"'" {
				found = append(found, rec)
			}
		}
		ft.respond(rw, found)
	case http.MethodPost:
		var body recordsBody
		assert.NoError(ft.t, json.NewDecoder(r.Body).Decode(&body))
		for i := range body.Records {
			ft.nextID++
			body.Records[i].ID = "rec" + string(rune('A'+ft.nextID-1))
			ft.records = append(ft.records, body.Records[i])
		}
		ft.respond(rw, body.Records)
	case http.MethodPatch:
		var body recordsBody
		assert.NoError(ft.t, json.NewDecoder(r.Body).Decode(&body))
		var updated []record
		for _, upd := range body.Records {
			for i := range ft.records {
				if ft.records[i].ID == upd.ID {
					for k, v := range upd.Fields {
						ft.records[i].Fields[k] = v
					}
					updated = append(updated, ft.records[i])
				}
			}
		}
		if len(updated) == 0 {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		ft.respond(rw, updated)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ft *fakeTable) respond(rw http.ResponseWriter, records []record) {
	if records == nil {
		records = []record{}
	}
	rw.Header().Set("Content-Type", restapi.ContentTypeAppJSON)
	_ = json.NewEncoder(rw).Encode(recordsBody{Records: records})
}

type StoreTestSuite struct {
	suite.Suite
	table  *fakeTable
	server *httptest.Server
	store  *Store
}

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	s.table = &fakeTable{t: s.T()}
	s.server = httptest.NewServer(s.table)

	cfg := NewDefaultConfig()
	cfg.APIURL = s.server.URL + "/v0"
	cfg.BaseID = "appTest"
	cfg.TableID = "tblTest"

	clientCfg := httpclient.NewDefaultConfig()
	clientCfg.Retries.Enabled = false
	httpClient, err := httpclient.NewWithOpts(clientCfg, httpclient.Opts{
		ClientType:   "airtable",
		AuthProvider: httpclient.StaticTokenProvider(testToken),
		RateLimit:    1000,
	})
	s.Require().NoError(err)
	s.store = NewStore(cfg, httpClient)
}

func (s *StoreTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *StoreTestSuite) TestFindBySlackID_NotFound() {
	_, err := s.store.FindBySlackID(context.Background(), "U012AB3CD")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestFindBySlackID_RejectsFormulaInjection() {
	_, err := s.store.FindBySlackID(context.Background(), "x' OR 1=1 OR '")
	s.Require().ErrorIs(err, ErrInvalidSlackID)
	_, err = s.store.Create(context.Background(), "")
	s.Require().ErrorIs(err, ErrInvalidSlackID)
}

func (s *StoreTestSuite) TestEnsureParticipant() {
	ctx := context.Background()

	created, isNew, err := s.store.EnsureParticipant(ctx, "U012AB3CD")
	s.Require().NoError(err)
	s.Require().True(isNew)
	s.Require().Equal(Participant{RecordID: "recA", SlackID: "U012AB3CD"}, created)

	existing, isNew, err := s.store.EnsureParticipant(ctx, "U012AB3CD")
	s.Require().NoError(err)
	s.Require().False(isNew)
	s.Require().Equal(created, existing)
	s.Require().Len(s.table.records, 1)
}

func (s *StoreTestSuite) TestUpdateMinecraftUsername() {
	ctx := context.Background()
	p, err := s.store.Create(ctx, "U012AB3CD")
	s.Require().NoError(err)

	updated, err := s.store.UpdateMinecraftUsername(ctx, p.RecordID, "Steve_42")
	s.Require().NoError(err)
	s.Require().Equal(Participant{RecordID: p.RecordID, SlackID: "U012AB3CD", MinecraftUsername: "Steve_42"}, updated)

	found, err := s.store.FindBySlackID(ctx, "U012AB3CD")
	s.Require().NoError(err)
	s.Require().Equal("Steve_42", found.MinecraftUsername)
}

func (s *StoreTestSuite) TestUpstreamError() {
	s.table.fail = true
	_, _, err := s.store.EnsureParticipant(context.Background(), "U012AB3CD")
	var clientErr *restapi.ClientError
	s.Require().ErrorAs(err, &clientErr)
	s.Require().Equal(http.StatusUnprocessableEntity, clientErr.StatusCode)
	s.Require().Contains(clientErr.Body, "INVALID_REQUEST_UNKNOWN")
}
