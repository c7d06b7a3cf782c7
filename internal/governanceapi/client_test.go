package governanceapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "governance-portal"
	testAccount    = "0x00000000000000000000000000000000000000aa"
)

type fixedAccounts struct {
	account governance.Account
	ok      bool
}

func (accounts fixedAccounts) CurrentAccount() (governance.Account, bool) {
	return accounts.account, accounts.ok
}

type recordedRequest struct {
	method        string
	path          string
	authorization string
	body          string
}

type apiRecorder struct {
	mutex    sync.Mutex
	requests []recordedRequest
}

func (recorder *apiRecorder) record(request *http.Request) {
	body, _ := io.ReadAll(request.Body)
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	recorder.requests = append(recorder.requests, recordedRequest{
		method:        request.Method,
		path:          request.URL.Path,
		authorization: request.Header.Get("Authorization"),
		body:          string(body),
	})
}

func (recorder *apiRecorder) last() recordedRequest {
	recorder.mutex.Lock()
	defer recorder.mutex.Unlock()
	return recorder.requests[len(recorder.requests)-1]
}

func writeEnvelope(writer http.ResponseWriter, status int, ok bool, data any, message string) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	payload := map[string]any{"ok": ok}
	if data != nil {
		payload["data"] = data
	}
	if message != "" {
		payload["error"] = message
	}
	_ = json.NewEncoder(writer).Encode(payload)
}

func newTestServer(test *testing.T, handler http.HandlerFunc) (*Client, *apiRecorder) {
	test.Helper()
	recorder := &apiRecorder{}
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		recorder.record(request)
		handler(writer, request)
	}))
	test.Cleanup(server.Close)

	account, err := governance.NewAccount(testAccount)
	if err != nil {
		test.Fatalf("account: %v", err)
	}
	client, err := NewClient(Config{
		BaseURL:    server.URL + "/api",
		SigningKey: testSigningKey,
		Issuer:     testIssuer,
		Accounts:   fixedAccounts{account: account, ok: true},
		Now:        time.Now,
	})
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	return client, recorder
}

func TestGetProposalDecodesEnvelope(test *testing.T) {
	test.Parallel()
	client, recorder := newTestServer(test, func(writer http.ResponseWriter, _ *http.Request) {
		writeEnvelope(writer, http.StatusOK, true, map[string]any{
			"id":             "proposal-1",
			"user":           testAccount,
			"status":         "active",
			"snapshot_id":    "QmSnapshot",
			"snapshot_space": "dcl.eth",
		}, "")
	})

	proposal, err := client.GetProposal(context.Background(), "proposal-1")
	if err != nil {
		test.Fatalf("get proposal: %v", err)
	}
	if proposal.ID != "proposal-1" || proposal.Status != governance.ProposalStatusActive || proposal.SnapshotSpace != "dcl.eth" {
		test.Fatalf("unexpected proposal %+v", proposal)
	}
	request := recorder.last()
	if request.method != http.MethodGet || request.path != "/api/proposals/proposal-1" {
		test.Fatalf("unexpected request %+v", request)
	}
}

func TestRequestsCarrySignedBearerToken(test *testing.T) {
	test.Parallel()
	client, recorder := newTestServer(test, func(writer http.ResponseWriter, _ *http.Request) {
		writeEnvelope(writer, http.StatusOK, true, []string{testAccount}, "")
	})
	if _, err := client.GetCommittee(context.Background()); err != nil {
		test.Fatalf("committee: %v", err)
	}

	header := recorder.last().authorization
	if !strings.HasPrefix(header, "Bearer ") {
		test.Fatalf("expected bearer token, got %q", header)
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims, func(*jwt.Token) (any, error) {
		return []byte(testSigningKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		test.Fatalf("token invalid: %v", err)
	}
	if claims.Subject != testAccount || claims.Issuer != testIssuer {
		test.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAnonymousRequestsOmitAuthorization(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Header.Get("Authorization") != "" {
			test.Errorf("unexpected authorization header")
		}
		writeEnvelope(writer, http.StatusOK, true, map[string]any{}, "")
	}))
	defer server.Close()

	client, err := NewClient(Config{BaseURL: server.URL, SigningKey: testSigningKey, Accounts: fixedAccounts{}})
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	if _, err := client.GetProposalVotes(context.Background(), "proposal-1"); err != nil {
		test.Fatalf("votes: %v", err)
	}
}

func TestMissingProposalMapsToNotFound(test *testing.T) {
	test.Parallel()
	client, _ := newTestServer(test, func(writer http.ResponseWriter, _ *http.Request) {
		writeEnvelope(writer, http.StatusNotFound, false, nil, "not found")
	})
	if _, err := client.GetProposal(context.Background(), "missing"); !errors.Is(err, governance.ErrProposalNotFound) {
		test.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
}

func TestFailedEnvelopeSurfacesError(test *testing.T) {
	test.Parallel()
	client, _ := newTestServer(test, func(writer http.ResponseWriter, _ *http.Request) {
		writeEnvelope(writer, http.StatusOK, false, nil, "forbidden")
	})
	err := client.DeleteProposal(context.Background(), "proposal-1")
	if !errors.Is(err, ErrRequestFailed) || !strings.Contains(err.Error(), "forbidden") {
		test.Fatalf("expected request failure, got %v", err)
	}
}

func TestSubscriptionRoutes(test *testing.T) {
	test.Parallel()
	client, recorder := newTestServer(test, func(writer http.ResponseWriter, request *http.Request) {
		switch request.Method {
		case http.MethodPost:
			writeEnvelope(writer, http.StatusOK, true, map[string]any{"proposal_id": "proposal-1", "user": testAccount}, "")
		case http.MethodDelete:
			writer.WriteHeader(http.StatusNoContent)
		default:
			writeEnvelope(writer, http.StatusOK, true, []map[string]any{{"proposal_id": "proposal-1", "user": testAccount}}, "")
		}
	})

	subscription, err := client.Subscribe(context.Background(), "proposal-1")
	if err != nil || subscription.User != testAccount {
		test.Fatalf("subscribe: %+v %v", subscription, err)
	}
	if request := recorder.last(); request.path != "/api/proposals/proposal-1/subscriptions" {
		test.Fatalf("unexpected subscribe path %q", request.path)
	}
	subscriptions, err := client.GetSubscriptions(context.Background(), "proposal-1")
	if err != nil || len(subscriptions) != 1 {
		test.Fatalf("subscriptions: %+v %v", subscriptions, err)
	}
	if err := client.Unsubscribe(context.Background(), "proposal-1"); err != nil {
		test.Fatalf("unsubscribe: %v", err)
	}
	if request := recorder.last(); request.method != http.MethodDelete {
		test.Fatalf("expected DELETE, got %s", request.method)
	}
}

func TestUpdateProposalStatusSendsPatch(test *testing.T) {
	test.Parallel()
	client, recorder := newTestServer(test, func(writer http.ResponseWriter, _ *http.Request) {
		writeEnvelope(writer, http.StatusOK, true, map[string]any{"id": "proposal-1", "status": "enacted"}, "")
	})
	vesting := "0x00000000000000000000000000000000000000ee"
	proposal, err := client.UpdateProposalStatus(context.Background(), "proposal-1", governance.ProposalStatusEnacted, &vesting, "done")
	if err != nil {
		test.Fatalf("update: %v", err)
	}
	if proposal.Status != governance.ProposalStatusEnacted {
		test.Fatalf("unexpected status %q", proposal.Status)
	}
	request := recorder.last()
	if request.method != http.MethodPatch {
		test.Fatalf("expected PATCH, got %s", request.method)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(request.body), &body); err != nil {
		test.Fatalf("decode body: %v", err)
	}
	if body["status"] != "enacted" || body["vesting_address"] != vesting || body["description"] != "done" {
		test.Fatalf("unexpected body %v", body)
	}
}

func TestNewClientValidation(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		config Config
	}{
		{name: "missing url", config: Config{SigningKey: "k", Accounts: fixedAccounts{}}},
		{name: "missing key", config: Config{BaseURL: "https://api.example.org", Accounts: fixedAccounts{}}},
		{name: "missing accounts", config: Config{BaseURL: "https://api.example.org", SigningKey: "k"}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := NewClient(testCase.config); !errors.Is(err, governance.ErrInvalidServiceConfig) {
				test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
			}
		})
	}
}
