package governance

import (
	"context"
	"errors"
	"fmt"
)

// SnapshotClient is the off-chain vote aggregator.
type SnapshotClient interface {
	CreateVoteMessage(ctx context.Context, space string, proposalID string, choice int) (string, error)
	Send(ctx context.Context, account Account, message string, signature string) error
}

// MessageSigner personal-signs messages with the key of account.
type MessageSigner interface {
	PersonalSign(ctx context.Context, account Account, message string) (string, error)
}

// VoteRequest carries everything a vote needs; missing pieces make CastVote a no-op
// failure before any network call.
type VoteRequest struct {
	Account     Account
	Proposal    *Proposal
	Votes       Votes
	ChoiceIndex int
}

// VoteResult reports the outcome of a successful vote.
type VoteResult struct {
	Message   string
	Signature string
	Attempts  int
	FirstVote bool
}

// VoteFlow builds, signs and submits snapshot votes.
type VoteFlow struct {
	snapshot  SnapshotClient
	signer    MessageSigner
	publisher Publisher
	options   serviceOptions
}

// NewVoteFlow wires a VoteFlow. The signer may be nil while no wallet provider is
// available; votes then fail their precondition.
func NewVoteFlow(snapshot SnapshotClient, signer MessageSigner, publisher Publisher, options ...ServiceOption) (*VoteFlow, error) {
	if snapshot == nil {
		return nil, fmt.Errorf("%w: snapshot client is nil", ErrInvalidServiceConfig)
	}
	return &VoteFlow{snapshot: snapshot, signer: signer, publisher: publisher, options: collectOptions(options)}, nil
}

// CastVote signs the canonical vote message and submits it, re-issuing the submission
// immediately up to three times.
func (flow *VoteFlow) CastVote(ctx context.Context, request VoteRequest) (VoteResult, error) {
	result, err := flow.castVote(ctx, request)
	event := Event{Kind: EventVoteSucceeded, Account: request.Account}
	if err != nil {
		event = Event{Kind: EventVoteFailed, Account: request.Account, Error: ErrorMessage(err)}
	}
	entry := OperationLog{Operation: operationCastVote, Account: request.Account, Error: err}
	if request.Proposal != nil {
		entry.ProposalID = request.Proposal.ID
		entry.Detail = fmt.Sprintf("choice=%d attempts=%d", request.ChoiceIndex, result.Attempts)
	}
	publish(ctx, flow.publisher, event)
	flow.options.logOperation(ctx, entry)
	return result, err
}

func (flow *VoteFlow) castVote(ctx context.Context, request VoteRequest) (VoteResult, error) {
	switch {
	case request.Account.IsZero():
		return VoteResult{}, ErrNotConnected
	case flow.signer == nil:
		return VoteResult{}, fmt.Errorf("%w: no signer available", ErrNotConnected)
	case request.Proposal == nil:
		return VoteResult{}, ErrProposalNotLoaded
	case request.Votes == nil:
		return VoteResult{}, ErrVotesNotLoaded
	}

	message, err := flow.snapshot.CreateVoteMessage(ctx, request.Proposal.SnapshotSpace, request.Proposal.SnapshotID, request.ChoiceIndex)
	if err != nil {
		return VoteResult{}, err
	}
	signature, err := flow.signer.PersonalSign(ctx, request.Account, message)
	if err != nil {
		var signError *SignError
		if !errors.As(err, &signError) {
			err = &SignError{Kind: SignErrorDevice, Message: err.Error(), Err: err}
		}
		return VoteResult{Message: message}, err
	}

	result := VoteResult{Message: message, Signature: signature, FirstVote: !request.Votes.Has(request.Account)}
	var lastErr error
	for attempt := 1; attempt <= voteSubmitAttempts; attempt++ {
		result.Attempts = attempt
		if err := ctx.Err(); err != nil {
			return result, err
		}
		lastErr = flow.snapshot.Send(ctx, request.Account, message, signature)
		if lastErr == nil {
			return result, nil
		}
	}
	return result, &SubmitError{Attempts: voteSubmitAttempts, Message: ErrorMessage(lastErr), Err: lastErr}
}
