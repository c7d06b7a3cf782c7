package governance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// GovernanceAPI is the governance HTTP API used by the proposal page.
type GovernanceAPI interface {
	GetProposal(ctx context.Context, proposalID string) (Proposal, error)
	GetProposalVotes(ctx context.Context, proposalID string) (Votes, error)
	GetSubscriptions(ctx context.Context, proposalID string) ([]Subscription, error)
	Subscribe(ctx context.Context, proposalID string) (Subscription, error)
	Unsubscribe(ctx context.Context, proposalID string) error
	UpdateProposalStatus(ctx context.Context, proposalID string, status ProposalStatus, vestingAddress *string, description string) (Proposal, error)
	DeleteProposal(ctx context.Context, proposalID string) error
	GetCommittee(ctx context.Context) ([]string, error)
	GetProposalUpdates(ctx context.Context, proposalID string) (ProposalUpdates, error)
}

// AccountSource reports the account of the connected session.
type AccountSource interface {
	CurrentAccount() (Account, bool)
}

// ProposalPageOptions is the ephemeral state of a proposal view. An empty
// ConfirmStatusUpdate means no status update is awaiting confirmation.
type ProposalPageOptions struct {
	Changing                 bool           `json:"changing"`
	ConfirmSubscription      bool           `json:"confirmSubscription"`
	ConfirmDeletion          bool           `json:"confirmDeletion"`
	ConfirmStatusUpdate      ProposalStatus `json:"confirmStatusUpdate,omitempty"`
	ShowVotesList            bool           `json:"showVotesList"`
	ShowProposalSuccessModal bool           `json:"showProposalSuccessModal"`
	ShowUpdateSuccessModal   bool           `json:"showUpdateSuccessModal"`
}

// ProposalPageOptionsPatch merges into ProposalPageOptions; nil fields are left alone.
type ProposalPageOptionsPatch struct {
	Changing                 *bool           `json:"changing,omitempty"`
	ConfirmSubscription      *bool           `json:"confirmSubscription,omitempty"`
	ConfirmDeletion          *bool           `json:"confirmDeletion,omitempty"`
	ConfirmStatusUpdate      *ProposalStatus `json:"confirmStatusUpdate,omitempty"`
	ShowVotesList            *bool           `json:"showVotesList,omitempty"`
	ShowProposalSuccessModal *bool           `json:"showProposalSuccessModal,omitempty"`
	ShowUpdateSuccessModal   *bool           `json:"showUpdateSuccessModal,omitempty"`
}

// Apply returns options with the patch merged in.
func (patch ProposalPageOptionsPatch) Apply(options ProposalPageOptions) ProposalPageOptions {
	if patch.Changing != nil {
		options.Changing = *patch.Changing
	}
	if patch.ConfirmSubscription != nil {
		options.ConfirmSubscription = *patch.ConfirmSubscription
	}
	if patch.ConfirmDeletion != nil {
		options.ConfirmDeletion = *patch.ConfirmDeletion
	}
	if patch.ConfirmStatusUpdate != nil {
		options.ConfirmStatusUpdate = *patch.ConfirmStatusUpdate
	}
	if patch.ShowVotesList != nil {
		options.ShowVotesList = *patch.ShowVotesList
	}
	if patch.ShowProposalSuccessModal != nil {
		options.ShowProposalSuccessModal = *patch.ShowProposalSuccessModal
	}
	if patch.ShowUpdateSuccessModal != nil {
		options.ShowUpdateSuccessModal = *patch.ShowUpdateSuccessModal
	}
	return options
}

// ButtonState describes one page affordance.
type ButtonState struct {
	Visible  bool `json:"visible"`
	Disabled bool `json:"disabled"`
	Loading  bool `json:"loading"`
}

// Affordances is the button matrix of the proposal view.
type Affordances struct {
	Delete    ButtonState `json:"delete"`
	Enact     ButtonState `json:"enact"`
	Pass      ButtonState `json:"pass"`
	Reject    ButtonState `json:"reject"`
	Subscribe ButtonState `json:"subscribe"`
	Vote      ButtonState `json:"vote"`
}

// ProposalPageView is a consistent snapshot of the controller state.
type ProposalPageView struct {
	Proposal            *Proposal           `json:"proposal"`
	NotFound            bool                `json:"notFound"`
	Options             ProposalPageOptions `json:"options"`
	Votes               Votes               `json:"votes"`
	Subscriptions       []Subscription      `json:"subscriptions"`
	Updates             ProposalUpdates     `json:"updates"`
	Subscribed          bool                `json:"subscribed"`
	IsOwner             bool                `json:"isOwner"`
	IsCommittee         bool                `json:"isCommittee"`
	ShowVestingStatus   bool                `json:"showVestingStatus"`
	ShowProposalUpdates bool                `json:"showProposalUpdates"`
	Affordances         Affordances         `json:"affordances"`
}

// ProposalPageDependencies collects the collaborators of ProposalPageController.
type ProposalPageDependencies struct {
	API       GovernanceAPI
	Votes     *VoteFlow
	Accounts  AccountSource
	Navigator Navigator
}

// ProposalPageController owns the state of one proposal view.
type ProposalPageController struct {
	api       GovernanceAPI
	voteFlow  *VoteFlow
	accounts  AccountSource
	navigator Navigator
	tasks     *taskFlags
	options   serviceOptions

	mutex         sync.Mutex
	proposalID    string
	proposal      *Proposal
	notFound      bool
	pageOptions   ProposalPageOptions
	votes         Votes
	subscriptions []Subscription
	updates       ProposalUpdates
	committee     []string
}

// NewProposalPageController wires a ProposalPageController.
func NewProposalPageController(dependencies ProposalPageDependencies, options ...ServiceOption) (*ProposalPageController, error) {
	if dependencies.API == nil {
		return nil, fmt.Errorf("%w: governance api is nil", ErrInvalidServiceConfig)
	}
	if dependencies.Votes == nil {
		return nil, fmt.Errorf("%w: vote flow is nil", ErrInvalidServiceConfig)
	}
	if dependencies.Accounts == nil {
		return nil, fmt.Errorf("%w: account source is nil", ErrInvalidServiceConfig)
	}
	return &ProposalPageController{
		api:       dependencies.API,
		voteFlow:  dependencies.Votes,
		accounts:  dependencies.Accounts,
		navigator: dependencies.Navigator,
		tasks:     newTaskFlags(),
		options:   collectOptions(options),
	}, nil
}

// ProposalID returns the id of the proposal currently shown.
func (controller *ProposalPageController) ProposalID() string {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	return controller.proposalID
}

// Load switches the page to proposalID and fetches the proposal with its votes,
// subscriptions, updates and the committee. Responses that arrive after the page moved
// to another proposal are discarded.
func (controller *ProposalPageController) Load(ctx context.Context, proposalID string) error {
	controller.mutex.Lock()
	if controller.proposalID != proposalID {
		controller.resetLocked()
		controller.proposalID = proposalID
	}
	controller.mutex.Unlock()

	proposal, err := controller.api.GetProposal(ctx, proposalID)
	if err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			controller.mutate(proposalID, func() { controller.notFound = true })
		}
		return err
	}
	if !controller.mutate(proposalID, func() {
		controller.proposal = &proposal
		controller.notFound = false
	}) {
		return ErrStaleResponse
	}

	var group errgroup.Group
	group.Go(func() error {
		return controller.reloadVotes(ctx, proposalID)
	})
	group.Go(func() error {
		subscriptions, err := controller.api.GetSubscriptions(ctx, proposalID)
		if err != nil {
			return err
		}
		controller.mutate(proposalID, func() { controller.subscriptions = subscriptions })
		return nil
	})
	group.Go(func() error {
		updates, err := controller.api.GetProposalUpdates(ctx, proposalID)
		if err != nil {
			return err
		}
		controller.mutate(proposalID, func() { controller.updates = updates })
		return nil
	})
	group.Go(func() error {
		committee, err := controller.api.GetCommittee(ctx)
		if err != nil {
			return err
		}
		controller.mutate(proposalID, func() { controller.committee = committee })
		return nil
	})
	return group.Wait()
}

// Initialize opens the success modals requested by the URL query.
func (controller *ProposalPageController) Initialize(query url.Values) {
	showProposalSuccess := query.Get(queryNew) == queryTrue
	showUpdateSuccess := query.Get(queryNewUpdate) == queryTrue
	controller.Patch(ProposalPageOptionsPatch{
		ShowProposalSuccessModal: &showProposalSuccess,
		ShowUpdateSuccessModal:   &showUpdateSuccess,
	})
}

// CloseProposalSuccessModal closes the post-creation modal and drops the flag from the URL.
func (controller *ProposalPageController) CloseProposalSuccessModal() {
	hidden := false
	controller.Patch(ProposalPageOptionsPatch{ShowProposalSuccessModal: &hidden})
	controller.replaceWithProposalLocation()
}

// CloseUpdateSuccessModal closes the post-update modal and drops the flag from the URL.
func (controller *ProposalPageController) CloseUpdateSuccessModal() {
	hidden := false
	controller.Patch(ProposalPageOptionsPatch{ShowUpdateSuccessModal: &hidden})
	controller.replaceWithProposalLocation()
}

func (controller *ProposalPageController) replaceWithProposalLocation() {
	proposalID := controller.ProposalID()
	if controller.navigator != nil && proposalID != "" {
		controller.navigator.Navigate(ProposalLocation(proposalID), true)
	}
}

// Patch merges partial option updates.
func (controller *ProposalPageController) Patch(patch ProposalPageOptionsPatch) ProposalPageOptions {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.pageOptions = patch.Apply(controller.pageOptions)
	return controller.pageOptions
}

// Options returns the current options.
func (controller *ProposalPageController) Options() ProposalPageOptions {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	return controller.pageOptions
}

// Reset clears all page state, as when the view unmounts.
func (controller *ProposalPageController) Reset() {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	controller.resetLocked()
}

func (controller *ProposalPageController) resetLocked() {
	controller.proposalID = ""
	controller.proposal = nil
	controller.notFound = false
	controller.pageOptions = ProposalPageOptions{}
	controller.votes = nil
	controller.subscriptions = nil
	controller.updates = ProposalUpdates{}
	controller.committee = nil
}

// Vote casts a snapshot vote for the current proposal. First-time voters are offered
// a subscription; the votes map is reloaded afterwards.
func (controller *ProposalPageController) Vote(ctx context.Context, choiceIndex int) error {
	if !controller.tasks.begin(taskVote) {
		return ErrTaskInProgress
	}
	defer controller.tasks.end(taskVote)

	account, _ := controller.accounts.CurrentAccount()
	controller.mutex.Lock()
	proposalID := controller.proposalID
	proposal := controller.proposal
	votes := controller.votes
	controller.mutex.Unlock()

	result, err := controller.voteFlow.CastVote(ctx, VoteRequest{
		Account:     account,
		Proposal:    proposal,
		Votes:       votes,
		ChoiceIndex: choiceIndex,
	})
	if err != nil {
		return err
	}
	if !controller.mutate(proposalID, func() {
		controller.pageOptions.Changing = false
		controller.pageOptions.ConfirmSubscription = result.FirstVote
	}) {
		return ErrStaleResponse
	}
	return controller.reloadVotes(ctx, proposalID)
}

// Subscribe follows (subscribe=true) or unfollows the current proposal. The local list
// is updated optimistically and rolled back when the API call fails.
func (controller *ProposalPageController) Subscribe(ctx context.Context, subscribe bool) error {
	if !controller.tasks.begin(taskSubscribe) {
		return ErrTaskInProgress
	}
	defer controller.tasks.end(taskSubscribe)

	account, _ := controller.accounts.CurrentAccount()
	controller.mutex.Lock()
	proposalID := controller.proposalID
	if controller.proposal == nil {
		controller.mutex.Unlock()
		return ErrProposalNotLoaded
	}
	previous := append([]Subscription(nil), controller.subscriptions...)
	if subscribe {
		if !account.IsZero() && !containsSubscriber(controller.subscriptions, account) {
			controller.subscriptions = append(controller.subscriptions, Subscription{
				ProposalID: proposalID,
				User:       account.String(),
				CreatedAt:  time.Unix(controller.options.nowFn(), 0).UTC(),
			})
		}
	} else {
		controller.subscriptions = filterSubscriptions(controller.subscriptions, proposalID)
	}
	controller.mutex.Unlock()

	operation := operationUnsubscribe
	var err error
	var created Subscription
	if subscribe {
		operation = operationSubscribe
		created, err = controller.api.Subscribe(ctx, proposalID)
	} else {
		err = controller.api.Unsubscribe(ctx, proposalID)
	}
	controller.options.logOperation(ctx, OperationLog{Operation: operation, Account: account, ProposalID: proposalID, Error: err})

	if err != nil {
		controller.mutate(proposalID, func() { controller.subscriptions = previous })
		return err
	}
	if !controller.mutate(proposalID, func() {
		if subscribe {
			controller.subscriptions = mergeSubscription(controller.subscriptions, created)
		}
		controller.pageOptions.ConfirmSubscription = false
	}) {
		return ErrStaleResponse
	}
	return nil
}

// UpdateStatus transitions the proposal lifecycle. Only committee members may call it.
func (controller *ProposalPageController) UpdateStatus(ctx context.Context, status ProposalStatus, vestingAddress *string, description string) error {
	if !controller.tasks.begin(taskUpdateStatus) {
		return ErrTaskInProgress
	}
	defer controller.tasks.end(taskUpdateStatus)

	account, _ := controller.accounts.CurrentAccount()
	controller.mutex.Lock()
	proposalID := controller.proposalID
	loaded := controller.proposal != nil
	isCommittee := isCommitteeMember(controller.committee, account)
	controller.mutex.Unlock()
	if !loaded {
		return ErrProposalNotLoaded
	}
	if !isCommittee {
		return ErrNotCommittee
	}

	updated, err := controller.api.UpdateProposalStatus(ctx, proposalID, status, vestingAddress, description)
	controller.options.logOperation(ctx, OperationLog{
		Operation:  operationUpdateStatus,
		Account:    account,
		ProposalID: proposalID,
		Detail:     string(status),
		Error:      err,
	})
	if err != nil {
		return err
	}
	if !controller.mutate(proposalID, func() {
		controller.proposal = &updated
		controller.pageOptions.ConfirmStatusUpdate = ""
	}) {
		return ErrStaleResponse
	}
	return nil
}

// DeleteProposal removes the proposal. The owner and committee members may call it.
func (controller *ProposalPageController) DeleteProposal(ctx context.Context) error {
	if !controller.tasks.begin(taskDelete) {
		return ErrTaskInProgress
	}
	defer controller.tasks.end(taskDelete)

	account, _ := controller.accounts.CurrentAccount()
	controller.mutex.Lock()
	proposalID := controller.proposalID
	proposal := controller.proposal
	isCommittee := isCommitteeMember(controller.committee, account)
	controller.mutex.Unlock()
	if proposal == nil {
		return ErrProposalNotLoaded
	}
	if account.IsZero() || (!account.Matches(proposal.User) && !isCommittee) {
		return ErrNotOwnerOrCommittee
	}

	err := controller.api.DeleteProposal(ctx, proposalID)
	controller.options.logOperation(ctx, OperationLog{Operation: operationDeleteProposal, Account: account, ProposalID: proposalID, Error: err})
	if err != nil {
		return err
	}
	if controller.navigator != nil {
		controller.navigator.Navigate(ProposalsLocation(), false)
	}
	return nil
}

// HandlePostUpdate opens the grant update form, continuing the pending update if any.
func (controller *ProposalPageController) HandlePostUpdate() {
	controller.mutex.Lock()
	proposal := controller.proposal
	updates := controller.updates
	controller.mutex.Unlock()
	if proposal == nil || controller.navigator == nil {
		return
	}
	updateID := ""
	if len(updates.Pending) > 0 && updates.Current != nil {
		updateID = updates.Current.ID
	}
	controller.navigator.Navigate(SubmitUpdateLocation(updateID, proposal.ID), false)
}

// View returns the derived selectors and affordances with the current state.
func (controller *ProposalPageController) View() ProposalPageView {
	account, _ := controller.accounts.CurrentAccount()
	controller.mutex.Lock()
	defer controller.mutex.Unlock()

	view := ProposalPageView{
		NotFound:      controller.notFound,
		Options:       controller.pageOptions,
		Votes:         controller.votes,
		Subscriptions: append([]Subscription(nil), controller.subscriptions...),
		Updates:       controller.updates,
		IsCommittee:   isCommitteeMember(controller.committee, account),
		Subscribed:    containsSubscriber(controller.subscriptions, account),
	}
	if controller.proposal != nil {
		proposal := *controller.proposal
		view.Proposal = &proposal
		view.IsOwner = account.Matches(proposal.User)
		enactedGrant := proposal.Status == ProposalStatusEnacted && proposal.Type == ProposalTypeGrant
		view.ShowVestingStatus = enactedGrant && view.IsOwner
		view.ShowProposalUpdates = enactedGrant && len(controller.updates.Public) > 0
	}
	view.Affordances = controller.affordancesLocked(view)
	return view
}

func (controller *ProposalPageController) affordancesLocked(view ProposalPageView) Affordances {
	affordances := Affordances{
		Subscribe: ButtonState{
			Visible:  true,
			Disabled: view.Proposal == nil,
			Loading:  controller.tasks.loading(taskSubscribe),
		},
		Vote: ButtonState{
			Visible:  true,
			Disabled: view.Proposal == nil || view.Votes == nil,
			Loading:  controller.tasks.loading(taskVote),
		},
	}
	if view.Proposal == nil {
		return affordances
	}
	status := view.Proposal.Status
	updating := controller.tasks.loading(taskUpdateStatus)
	affordances.Delete = ButtonState{
		Visible:  view.IsOwner || view.IsCommittee,
		Disabled: status != ProposalStatusPending && status != ProposalStatusActive,
		Loading:  controller.tasks.loading(taskDelete),
	}
	affordances.Enact = ButtonState{Visible: view.IsCommittee && status == ProposalStatusPassed, Loading: updating}
	affordances.Pass = ButtonState{Visible: view.IsCommittee && status == ProposalStatusFinished, Loading: updating}
	affordances.Reject = affordances.Pass
	return affordances
}

func (controller *ProposalPageController) reloadVotes(ctx context.Context, proposalID string) error {
	votes, err := controller.api.GetProposalVotes(ctx, proposalID)
	if err != nil {
		return err
	}
	if votes == nil {
		votes = Votes{}
	}
	controller.mutate(proposalID, func() { controller.votes = votes })
	return nil
}

// mutate applies fn only while the page still shows proposalID.
func (controller *ProposalPageController) mutate(proposalID string, fn func()) bool {
	controller.mutex.Lock()
	defer controller.mutex.Unlock()
	if controller.proposalID != proposalID {
		return false
	}
	fn()
	return true
}

func containsSubscriber(subscriptions []Subscription, account Account) bool {
	for _, subscription := range subscriptions {
		if account.Matches(subscription.User) {
			return true
		}
	}
	return false
}

func filterSubscriptions(subscriptions []Subscription, proposalID string) []Subscription {
	filtered := make([]Subscription, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		if subscription.ProposalID != proposalID {
			filtered = append(filtered, subscription)
		}
	}
	return filtered
}

func mergeSubscription(subscriptions []Subscription, created Subscription) []Subscription {
	for index, subscription := range subscriptions {
		if subscription.ProposalID == created.ProposalID && subscription.User != "" && subscriptionUserEqual(subscription.User, created.User) {
			subscriptions[index] = created
			return subscriptions
		}
	}
	return append(subscriptions, created)
}

func subscriptionUserEqual(left string, right string) bool {
	leftAccount, err := NewAccount(left)
	if err != nil {
		return left == right
	}
	return leftAccount.Matches(right)
}

func isCommitteeMember(committee []string, account Account) bool {
	for _, member := range committee {
		if account.Matches(member) {
			return true
		}
	}
	return false
}
