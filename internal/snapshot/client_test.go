package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

func mustClient(test *testing.T, hubURL string) *Client {
	test.Helper()
	client, err := NewClient(Config{HubURL: hubURL, Now: func() time.Time { return time.Unix(1600000000, 0) }})
	if err != nil {
		test.Fatalf("client: %v", err)
	}
	return client
}

func TestCreateVoteMessageIsCanonical(test *testing.T) {
	test.Parallel()
	client := mustClient(test, "https://hub.example.org/")
	message, err := client.CreateVoteMessage(context.Background(), "dcl.eth", "QmProposal", 2)
	if err != nil {
		test.Fatalf("create: %v", err)
	}
	expected := `{"version":"0.1.3","timestamp":"1600000000","space":"dcl.eth","type":"vote","payload":{"proposal":"QmProposal","choice":2,"metadata":{}}}`
	if message != expected {
		test.Fatalf("expected %s, got %s", expected, message)
	}
	if _, err := client.CreateVoteMessage(context.Background(), "", "QmProposal", 1); err == nil {
		test.Fatalf("expected validation error for empty space")
	}
}

func TestSendPostsEnvelope(test *testing.T) {
	test.Parallel()
	var received envelope
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/api/message" || request.Method != http.MethodPost {
			test.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			test.Errorf("decode: %v", err)
		}
		writer.WriteHeader(http.StatusOK)
		_, _ = writer.Write([]byte(`{"ipfsHash":"Qm"}`))
	}))
	defer server.Close()

	account, err := governance.NewAccount("0x00000000000000000000000000000000000000aa")
	if err != nil {
		test.Fatalf("account: %v", err)
	}
	if err := mustClient(test, server.URL).Send(context.Background(), account, "msg", "0xsig"); err != nil {
		test.Fatalf("send: %v", err)
	}
	if received.Address != account.String() || received.Message != "msg" || received.Signature != "0xsig" {
		test.Fatalf("unexpected envelope %+v", received)
	}
}

func TestSendSurfacesHubRefusal(test *testing.T) {
	test.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusBadRequest)
		_, _ = writer.Write([]byte(`{"error":"unauthorized","error_description":"not in voting window"}`))
	}))
	defer server.Close()

	account, _ := governance.NewAccount("0x00000000000000000000000000000000000000aa")
	err := mustClient(test, server.URL).Send(context.Background(), account, "msg", "0xsig")
	var submitError *governance.SubmitError
	if !errors.As(err, &submitError) || submitError.Message != "not in voting window" {
		test.Fatalf("expected SubmitError with hub description, got %v", err)
	}
}

func TestNewClientRejectsInvalidURL(test *testing.T) {
	test.Parallel()
	if _, err := NewClient(Config{HubURL: "not a url"}); !errors.Is(err, governance.ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}
