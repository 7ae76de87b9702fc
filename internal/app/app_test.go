package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	jwttoken "overflow/internal/jwt_token"
	"overflow/internal/platform/config"
	"overflow/internal/platform/logger"
	questionmodels "overflow/internal/question/models"
	"overflow/internal/search/index"
	tagmodels "overflow/internal/tags/models"
	"overflow/pkg/platform/broker/memory"
	"overflow/pkg/testutil"
)

const signingKey = "test-signing-key"

// PlatformSuite runs both services in process over the memory broker and
// drives them through their HTTP APIs.
type PlatformSuite struct {
	suite.Suite
	question *Question
	search   *Search
	token    string
	stop     context.CancelFunc
	done     chan struct{}
}

func TestPlatformSuite(t *testing.T) {
	suite.Run(t, new(PlatformSuite))
}

func (s *PlatformSuite) SetupTest() {
	ctx, cancel := context.WithCancel(context.Background())
	log := logger.Discard()
	b := memory.New()

	search, err := NewSearch(ctx, config.Search{
		Addr:           "127.0.0.1:0",
		Workers:        2,
		MaxAttempts:    3,
		HandlerTimeout: time.Second,
		TombstoneTTL:   time.Hour,
		ResultLimit:    20,
	}, b, log)
	s.Require().NoError(err)

	question, err := NewQuestion(ctx, config.Question{
		Addr:          "127.0.0.1:0",
		Store:         "memory",
		JWTSigningKey: signingKey,
		TxTimeout:     time.Second,
		TagCacheTTL:   time.Hour,
		Outbox: config.OutboxConfig{
			PollInterval:     10 * time.Millisecond,
			BatchSize:        50,
			FailureThreshold: 5,
			Cooldown:         time.Second,
		},
	}, b, log)
	s.Require().NoError(err)

	token, err := jwttoken.NewJWTService(signingKey, jwtIssuer).GenerateAccessToken("u-1", "Ada", time.Hour)
	s.Require().NoError(err)

	s.question, s.search, s.token, s.stop = question, search, token, cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		errs := make(chan error, 2)
		go func() { errs <- search.Run(ctx) }()
		go func() { errs <- question.Run(ctx) }()
		<-errs
		<-errs
	}()
}

func (s *PlatformSuite) TearDownTest() {
	s.stop()
	select {
	case <-s.done:
	case <-time.After(15 * time.Second):
		s.T().Error("services did not stop")
	}
	s.question.Close()
	s.search.Close()
}

func (s *PlatformSuite) authed(method, path string, body any) *http.Request {
	return testutil.Bearer(testutil.NewJSONRequest(s.T(), method, path, body), s.token)
}

func (s *PlatformSuite) createTag(slug string) {
	rr := testutil.DoRequest(s.question.Handler(), s.authed(http.MethodPost, "/tags",
		tagmodels.CreateTagRequest{Slug: slug, Name: strings.ToUpper(slug)}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
}

func (s *PlatformSuite) createQuestion(title, content string, tags ...string) *questionmodels.Question {
	rr := testutil.DoRequest(s.question.Handler(), s.authed(http.MethodPost, "/questions",
		questionmodels.CreateQuestionRequest{Title: title, Content: content, Tags: tags}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return testutil.UnmarshalResponse[questionmodels.Question](s.T(), rr)
}

func (s *PlatformSuite) searchFor(query string) []index.Document {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/search?query="+query)
	rr := testutil.DoRequest(s.search.Handler(), req)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	return *testutil.UnmarshalResponse[[]index.Document](s.T(), rr)
}

func (s *PlatformSuite) lookup(id string) (int, *index.Document) {
	rr := testutil.DoRequest(s.search.Handler(), testutil.NewRequest(s.T(), http.MethodGet, "/search/questions/"+id))
	if rr.Code != http.StatusOK {
		return rr.Code, nil
	}
	return rr.Code, testutil.UnmarshalResponse[index.Document](s.T(), rr)
}

func (s *PlatformSuite) eventually(cond func() bool, msg string) {
	s.Require().Eventually(cond, 5*time.Second, 20*time.Millisecond, msg)
}

// =============================================================================
// End to end
// =============================================================================

func (s *PlatformSuite) TestQuestionLifecycleReachesSearch() {
	s.createTag("go")
	q := s.createQuestion("How do buffered channels work",
		"<p>Explain <b>buffered</b> channels please</p><script>alert(1)</script>", "go")

	s.eventually(func() bool {
		docs := s.searchFor("channels+%5Bgo%5D")
		return len(docs) == 1 && docs[0].ID == q.ID
	}, "created question never became searchable")

	_, doc := s.lookup(q.ID)
	s.Require().NotNil(doc)
	s.Equal([]string{"go"}, doc.Tags)
	s.NotContains(doc.Content, "<p>")
	s.NotContains(doc.Content, "alert")

	rr := testutil.DoRequest(s.question.Handler(), s.authed(http.MethodPost, "/questions/"+q.ID+"/answers",
		questionmodels.CreateAnswerRequest{Content: "Use make(chan T, n)"}))
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())

	s.eventually(func() bool {
		_, doc := s.lookup(q.ID)
		return doc != nil && doc.AnswerCount == 1
	}, "answer count never reached the index")

	rr = testutil.DoRequest(s.question.Handler(), s.authed(http.MethodDelete, "/questions/"+q.ID, nil))
	s.Require().Equal(http.StatusNoContent, rr.Code, rr.Body.String())

	s.eventually(func() bool {
		status, _ := s.lookup(q.ID)
		return status == http.StatusNotFound
	}, "deleted question still searchable")
}

func (s *PlatformSuite) TestTagFilterNarrowsResults() {
	s.createTag("go")
	s.createTag("rust")
	goQ := s.createQuestion("Goroutine leaks in servers", "How do I find goroutine leaks", "go")
	s.createQuestion("Ownership and leaks in servers", "Can Rust programs leak memory", "rust")

	s.eventually(func() bool { return len(s.searchFor("leaks")) == 2 }, "questions never indexed")

	docs := s.searchFor("leaks+%5Bgo%5D")
	s.Require().Len(docs, 1)
	s.Equal(goQ.ID, docs[0].ID)
}

func (s *PlatformSuite) TestUnknownTagRejected() {
	rr := testutil.DoRequest(s.question.Handler(), s.authed(http.MethodPost, "/questions",
		questionmodels.CreateQuestionRequest{Title: "Anything at all", Content: "Some question body", Tags: []string{"cobol"}}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

// =============================================================================
// Operational endpoints
// =============================================================================

func (s *PlatformSuite) TestOperationalEndpoints() {
	for name, h := range map[string]http.Handler{"question": s.question.Handler(), "search": s.search.Handler()} {
		rr := testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/healthz"))
		s.Equal(http.StatusOK, rr.Code, name)

		rr = testutil.DoRequest(h, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
		s.Equal(http.StatusOK, rr.Code, name)
		s.Contains(rr.Body.String(), "go_goroutines", name)
	}

	rr := testutil.DoRequest(s.search.Handler(), testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	s.Contains(rr.Body.String(), "overflow_search_indexed_documents")
}

func TestOpenBroker(t *testing.T) {
	ctx := context.Background()

	b, err := OpenBroker(ctx, config.Common{Broker: "memory"}, "test", logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &memory.Broker{}, b)
	require.NoError(t, b.Close())

	_, err = OpenBroker(ctx, config.Common{Broker: "pigeon"}, "test", logger.Discard())
	assert.Error(t, err)
}

func TestHealthz_ReportsFailingDependency(t *testing.T) {
	reg := newRegistry()
	r := newRouter(logger.Discard(), reg,
		check{name: "postgres", fn: func(context.Context) error { return nil }},
		check{name: "redis", fn: func(context.Context) error { return errors.New("connection refused") }},
	)

	rr := testutil.DoRequest(r, testutil.NewRequest(t, http.MethodGet, "/healthz"))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := *testutil.UnmarshalResponse[map[string]string](t, rr)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "ok", body["postgres"])
	assert.Equal(t, "down", body["redis"])
}
