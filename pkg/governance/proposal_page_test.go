package governance

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"sync"
	"testing"
	"time"
)

type stubGovernanceAPI struct {
	mutex         sync.Mutex
	proposals     map[string]Proposal
	votes         Votes
	subscriptions []Subscription
	updates       ProposalUpdates
	committee     []string
	subscribeErr  error
	statusCalls   []string
	deleted       []string
	voteLoads     int
	subscriber    string
}

func newStubGovernanceAPI() *stubGovernanceAPI {
	return &stubGovernanceAPI{
		proposals: map[string]Proposal{testProposalID: *testProposal()},
		votes:     Votes{},
		committee: []string{testCommittee},
	}
}

func (api *stubGovernanceAPI) GetProposal(_ context.Context, proposalID string) (Proposal, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	proposal, ok := api.proposals[proposalID]
	if !ok {
		return Proposal{}, ErrProposalNotFound
	}
	return proposal, nil
}

func (api *stubGovernanceAPI) GetProposalVotes(context.Context, string) (Votes, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	api.voteLoads++
	copied := Votes{}
	for voter, vote := range api.votes {
		copied[voter] = vote
	}
	return copied, nil
}

func (api *stubGovernanceAPI) GetSubscriptions(context.Context, string) ([]Subscription, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	return append([]Subscription(nil), api.subscriptions...), nil
}

func (api *stubGovernanceAPI) Subscribe(_ context.Context, proposalID string) (Subscription, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	if api.subscribeErr != nil {
		return Subscription{}, api.subscribeErr
	}
	created := Subscription{ProposalID: proposalID, User: api.subscriber, CreatedAt: time.Unix(100, 0).UTC()}
	api.subscriptions = append(api.subscriptions, created)
	return created, nil
}

func (api *stubGovernanceAPI) Unsubscribe(_ context.Context, proposalID string) error {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	if api.subscribeErr != nil {
		return api.subscribeErr
	}
	api.subscriptions = filterSubscriptions(api.subscriptions, proposalID)
	return nil
}

func (api *stubGovernanceAPI) UpdateProposalStatus(_ context.Context, proposalID string, status ProposalStatus, vestingAddress *string, description string) (Proposal, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	vesting := "<nil>"
	if vestingAddress != nil {
		vesting = *vestingAddress
	}
	api.statusCalls = append(api.statusCalls, proposalID+"|"+string(status)+"|"+vesting+"|"+description)
	proposal := api.proposals[proposalID]
	proposal.Status = status
	api.proposals[proposalID] = proposal
	return proposal, nil
}

func (api *stubGovernanceAPI) DeleteProposal(_ context.Context, proposalID string) error {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	api.deleted = append(api.deleted, proposalID)
	return nil
}

func (api *stubGovernanceAPI) GetCommittee(context.Context) ([]string, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	return append([]string(nil), api.committee...), nil
}

func (api *stubGovernanceAPI) GetProposalUpdates(context.Context, string) (ProposalUpdates, error) {
	api.mutex.Lock()
	defer api.mutex.Unlock()
	return api.updates, nil
}

type stubAccounts struct {
	account Account
}

func (accounts *stubAccounts) CurrentAccount() (Account, bool) {
	return accounts.account, !accounts.account.IsZero()
}

type pageFixture struct {
	api        *stubGovernanceAPI
	snapshot   *stubSnapshot
	accounts   *stubAccounts
	navigator  *stubNavigator
	controller *ProposalPageController
}

func newPageFixture(test *testing.T, account string) *pageFixture {
	test.Helper()
	fixture := &pageFixture{
		api:       newStubGovernanceAPI(),
		snapshot:  &stubSnapshot{},
		accounts:  &stubAccounts{},
		navigator: &stubNavigator{},
	}
	if account != "" {
		fixture.accounts.account = mustAccount(test, account)
		fixture.api.subscriber = fixture.accounts.account.String()
	}
	flow := mustVoteFlow(test, fixture.snapshot, &stubSigner{}, nil)
	controller, err := NewProposalPageController(ProposalPageDependencies{
		API:       fixture.api,
		Votes:     flow,
		Accounts:  fixture.accounts,
		Navigator: fixture.navigator,
	}, WithClock(func() int64 { return 50 }))
	if err != nil {
		test.Fatalf("controller init: %v", err)
	}
	fixture.controller = controller
	return fixture
}

func (fixture *pageFixture) mustLoad(test *testing.T) {
	test.Helper()
	if err := fixture.controller.Load(context.Background(), testProposalID); err != nil {
		test.Fatalf("load: %v", err)
	}
}

func TestProposalPageVoteRaisesSubscriptionPrompt(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressB)
	fixture.snapshot.failures = 1
	fixture.mustLoad(test)
	changing := true
	fixture.controller.Patch(ProposalPageOptionsPatch{Changing: &changing})

	if err := fixture.controller.Vote(context.Background(), 0); err != nil {
		test.Fatalf("vote: %v", err)
	}
	options := fixture.controller.Options()
	if !options.ConfirmSubscription || options.Changing {
		test.Fatalf("expected subscription prompt and changing reset, got %+v", options)
	}
	if fixture.snapshot.sendCalls != 2 || len(fixture.snapshot.recorded) != 1 {
		test.Fatalf("expected vote accepted on second attempt, got calls=%d", fixture.snapshot.sendCalls)
	}
	if fixture.api.voteLoads != 2 {
		test.Fatalf("expected votes reloaded after voting, got %d loads", fixture.api.voteLoads)
	}
}

func TestProposalPageVoteFromReturningVoterSkipsPrompt(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressB)
	fixture.api.votes = Votes{testAddressB: {Choice: 1, VotingPower: 5}}
	fixture.mustLoad(test)
	if err := fixture.controller.Vote(context.Background(), 0); err != nil {
		test.Fatalf("vote: %v", err)
	}
	if fixture.controller.Options().ConfirmSubscription {
		test.Fatalf("expected no subscription prompt for returning voter")
	}
}

func TestProposalPageSubscriptionIdempotence(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressB)
	fixture.mustLoad(test)
	confirm := true
	fixture.controller.Patch(ProposalPageOptionsPatch{ConfirmSubscription: &confirm})
	ctx := context.Background()

	if err := fixture.controller.Subscribe(ctx, true); err != nil {
		test.Fatalf("subscribe: %v", err)
	}
	if err := fixture.controller.Subscribe(ctx, true); err != nil {
		test.Fatalf("subscribe again: %v", err)
	}
	view := fixture.controller.View()
	if !view.Subscribed || view.Options.ConfirmSubscription {
		test.Fatalf("expected subscribed with prompt cleared, got %+v", view)
	}
	if err := fixture.controller.Subscribe(ctx, false); err != nil {
		test.Fatalf("unsubscribe: %v", err)
	}
	view = fixture.controller.View()
	if view.Subscribed {
		test.Fatalf("expected user removed, got %+v", view.Subscriptions)
	}
}

func TestProposalPageSubscribeRollsBack(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressB)
	existing := Subscription{ProposalID: testProposalID, User: testCommittee}
	fixture.api.subscriptions = []Subscription{existing}
	fixture.mustLoad(test)
	fixture.api.subscribeErr = errors.New("api down")
	ctx := context.Background()

	if err := fixture.controller.Subscribe(ctx, true); err == nil {
		test.Fatalf("expected subscribe failure")
	}
	view := fixture.controller.View()
	if view.Subscribed || !reflect.DeepEqual(view.Subscriptions, []Subscription{existing}) {
		test.Fatalf("expected optimistic entry rolled back, got %+v", view.Subscriptions)
	}

	if err := fixture.controller.Subscribe(ctx, false); err == nil {
		test.Fatalf("expected unsubscribe failure")
	}
	view = fixture.controller.View()
	if !reflect.DeepEqual(view.Subscriptions, []Subscription{existing}) {
		test.Fatalf("expected filtered list restored, got %+v", view.Subscriptions)
	}
}

func TestProposalPageStatusTransitionByCommittee(test *testing.T) {
	test.Parallel()
	outsider := newPageFixture(test, testAddressB)
	finished := *testProposal()
	finished.Status = ProposalStatusFinished
	outsider.api.proposals[testProposalID] = finished
	outsider.mustLoad(test)
	affordances := outsider.controller.View().Affordances
	if affordances.Pass.Visible || affordances.Reject.Visible || affordances.Enact.Visible {
		test.Fatalf("expected no committee affordances for outsider, got %+v", affordances)
	}
	if err := outsider.controller.UpdateStatus(context.Background(), ProposalStatusPassed, nil, "ok"); !errors.Is(err, ErrNotCommittee) {
		test.Fatalf("expected ErrNotCommittee, got %v", err)
	}

	member := newPageFixture(test, testCommittee)
	member.api.proposals[testProposalID] = finished
	member.mustLoad(test)
	confirm := ProposalStatusPassed
	member.controller.Patch(ProposalPageOptionsPatch{ConfirmStatusUpdate: &confirm})
	affordances = member.controller.View().Affordances
	if !affordances.Pass.Visible || !affordances.Reject.Visible {
		test.Fatalf("expected pass and reject for committee, got %+v", affordances)
	}

	if err := member.controller.UpdateStatus(context.Background(), ProposalStatusPassed, nil, "approved"); err != nil {
		test.Fatalf("update status: %v", err)
	}
	if !reflect.DeepEqual(member.api.statusCalls, []string{testProposalID + "|passed|<nil>|approved"}) {
		test.Fatalf("unexpected status calls %v", member.api.statusCalls)
	}
	view := member.controller.View()
	if view.Proposal.Status != ProposalStatusPassed || view.Options.ConfirmStatusUpdate != "" {
		test.Fatalf("expected proposal replaced and confirmation cleared, got %+v", view)
	}
	if !view.Affordances.Enact.Visible || view.Affordances.Pass.Visible {
		test.Fatalf("expected enact affordance once passed, got %+v", view.Affordances)
	}
}

func TestProposalPageDeleteAffordance(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		account  string
		status   ProposalStatus
		visible  bool
		disabled bool
	}{
		{name: "owner pending", account: testAddressA, status: ProposalStatusPending, visible: true, disabled: false},
		{name: "owner finished", account: testAddressA, status: ProposalStatusFinished, visible: true, disabled: true},
		{name: "committee active", account: testCommittee, status: ProposalStatusActive, visible: true, disabled: false},
		{name: "outsider", account: testAddressB, status: ProposalStatusActive, visible: false, disabled: false},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			fixture := newPageFixture(test, testCase.account)
			proposal := *testProposal()
			proposal.Status = testCase.status
			fixture.api.proposals[testProposalID] = proposal
			fixture.mustLoad(test)
			deleteButton := fixture.controller.View().Affordances.Delete
			if deleteButton.Visible != testCase.visible || deleteButton.Disabled != testCase.disabled {
				test.Fatalf("unexpected delete affordance %+v", deleteButton)
			}
		})
	}
}

func TestProposalPageDeleteNavigatesToList(test *testing.T) {
	test.Parallel()
	owner := newPageFixture(test, testAddressA)
	owner.mustLoad(test)
	if err := owner.controller.DeleteProposal(context.Background()); err != nil {
		test.Fatalf("delete: %v", err)
	}
	if owner.navigator.lastLocation() != "/proposals" || !reflect.DeepEqual(owner.api.deleted, []string{testProposalID}) {
		test.Fatalf("expected deletion and navigation, got %v %v", owner.api.deleted, owner.navigator.locations)
	}

	outsider := newPageFixture(test, testAddressB)
	outsider.mustLoad(test)
	if err := outsider.controller.DeleteProposal(context.Background()); !errors.Is(err, ErrNotOwnerOrCommittee) {
		test.Fatalf("expected ErrNotOwnerOrCommittee, got %v", err)
	}
}

func TestProposalPageSelectors(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressA)
	grant := *testProposal()
	grant.Type = ProposalTypeGrant
	grant.Status = ProposalStatusEnacted
	fixture.api.proposals[testProposalID] = grant
	fixture.api.updates = ProposalUpdates{Public: []ProposalUpdate{{ID: "update-1", ProposalID: testProposalID, Status: ProposalUpdateStatusDone}}}
	fixture.mustLoad(test)

	view := fixture.controller.View()
	if !view.IsOwner || !view.ShowVestingStatus || !view.ShowProposalUpdates {
		test.Fatalf("expected owner grant selectors, got %+v", view)
	}

	visitor := newPageFixture(test, testAddressB)
	visitor.api.proposals[testProposalID] = grant
	visitor.mustLoad(test)
	view = visitor.controller.View()
	if view.IsOwner || view.ShowVestingStatus || view.ShowProposalUpdates {
		test.Fatalf("expected visitor to see neither vesting nor updates without public updates, got %+v", view)
	}
}

func TestProposalPagePostUpdateLocation(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressA)
	fixture.mustLoad(test)
	fixture.controller.HandlePostUpdate()
	if location := fixture.navigator.lastLocation(); location != "/submit/update?proposalId="+testProposalID {
		test.Fatalf("unexpected location %q", location)
	}

	pending := ProposalUpdate{ID: "update-7", ProposalID: testProposalID, Status: ProposalUpdateStatusPending}
	fixture.api.updates = ProposalUpdates{Pending: []ProposalUpdate{pending}, Current: &pending}
	fixture.mustLoad(test)
	fixture.controller.HandlePostUpdate()
	if location := fixture.navigator.lastLocation(); location != "/submit/update?id=update-7&proposalId="+testProposalID {
		test.Fatalf("unexpected location %q", location)
	}
}

func TestProposalPageSuccessModals(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressA)
	fixture.mustLoad(test)
	fixture.controller.Initialize(url.Values{"id": {testProposalID}, "new": {"true"}})
	options := fixture.controller.Options()
	if !options.ShowProposalSuccessModal || options.ShowUpdateSuccessModal {
		test.Fatalf("unexpected modal flags %+v", options)
	}
	fixture.controller.CloseProposalSuccessModal()
	if fixture.controller.Options().ShowProposalSuccessModal {
		test.Fatalf("expected modal closed")
	}
	if fixture.navigator.lastLocation() != "/proposal?id="+testProposalID || !fixture.navigator.replacement[len(fixture.navigator.replacement)-1] {
		test.Fatalf("expected replace navigation without flag, got %v", fixture.navigator.locations)
	}

	fixture.controller.Initialize(url.Values{"newUpdate": {"true"}})
	if !fixture.controller.Options().ShowUpdateSuccessModal {
		test.Fatalf("expected update modal open")
	}
	fixture.controller.CloseUpdateSuccessModal()
	if fixture.controller.Options().ShowUpdateSuccessModal {
		test.Fatalf("expected update modal closed")
	}
}

func TestProposalPageNotFound(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressA)
	if err := fixture.controller.Load(context.Background(), "missing"); !errors.Is(err, ErrProposalNotFound) {
		test.Fatalf("expected ErrProposalNotFound, got %v", err)
	}
	if !fixture.controller.View().NotFound {
		test.Fatalf("expected not-found state")
	}
}

func TestProposalPageDiscardsStaleResponses(test *testing.T) {
	test.Parallel()
	fixture := newPageFixture(test, testAddressB)
	fixture.mustLoad(test)
	applied := fixture.controller.mutate("other-proposal", func() {
		test.Fatalf("mutation for a stale proposal must not run")
	})
	if applied {
		test.Fatalf("expected stale mutation to be discarded")
	}
	fixture.controller.Reset()
	if fixture.controller.ProposalID() != "" || fixture.controller.View().Proposal != nil {
		test.Fatalf("expected reset state")
	}
}

func TestProposalPageOptionsPatch(test *testing.T) {
	test.Parallel()
	status := ProposalStatusEnacted
	enabled := true
	options := ProposalPageOptionsPatch{ConfirmStatusUpdate: &status, ShowVotesList: &enabled}.Apply(ProposalPageOptions{Changing: true})
	expected := ProposalPageOptions{Changing: true, ConfirmStatusUpdate: ProposalStatusEnacted, ShowVotesList: true}
	if options != expected {
		test.Fatalf("expected %+v, got %+v", expected, options)
	}
}
