// Package grpcserver exposes portal health and a read/wrap surface over gRPC.
package grpcserver

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	portalServiceName = "governance.v1.PortalService"

	methodGetWallet    = "GetWallet"
	methodListActivity = "ListActivity"
	methodWrapMana     = "WrapMana"
	methodUnwrapMana   = "UnwrapMana"

	errorInvalidAccount   = "invalid_account"
	errorInvalidAmount    = "invalid_amount"
	errorUnknownNetwork   = "unknown_network"
	errorNotConnected     = "not_connected"
	errorTaskInProgress   = "task_in_progress"
	errorContractsMissing = "contracts_unavailable"
	errorRejected         = "rejected_by_user"
	errorContract         = "contract_error"
	errorInvalidActivity  = "invalid_activity"
)

// WalletRequest asks for the connected wallet.
type WalletRequest struct{}

// WalletResponse carries the connected account and its latest aggregation.
type WalletResponse struct {
	Connected bool               `json:"connected"`
	Account   string             `json:"account,omitempty"`
	Network   governance.Network `json:"network"`
	Wallet    *governance.Wallet `json:"wallet,omitempty"`
}

// ActivityRequest selects journal entries newest first.
type ActivityRequest struct {
	Account       string `json:"account,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	BeforeUnixUTC int64  `json:"before_unix_utc,omitempty"`
}

// ActivityResponse lists journal entries.
type ActivityResponse struct {
	Entries []governance.ActivityEntry `json:"entries"`
}

// AmountRequest carries a token amount in MANA units.
type AmountRequest struct {
	Amount float64 `json:"amount"`
}

// TransactionResponse carries the hash of the submitted transaction.
type TransactionResponse struct {
	TxHash string `json:"tx_hash"`
}

// AccountSource reports the connected account and network.
type AccountSource interface {
	CurrentAccount() (governance.Account, bool)
	Network() governance.Network
}

// WalletReader returns the latest aggregated wallet.
type WalletReader interface {
	Get() *governance.Wallet
}

// Wrapper runs wrap and unwrap.
type Wrapper interface {
	WrapMana(ctx context.Context, amount float64) (string, error)
	UnwrapMana(ctx context.Context, amount float64) (string, error)
}

// ActivityReader lists the activity journal.
type ActivityReader interface {
	Recent(ctx context.Context, query governance.ActivityQuery) ([]governance.ActivityEntry, error)
}

// PortalServer is the server API of PortalService.
type PortalServer interface {
	GetWallet(ctx context.Context, request *WalletRequest) (*WalletResponse, error)
	ListActivity(ctx context.Context, request *ActivityRequest) (*ActivityResponse, error)
	WrapMana(ctx context.Context, request *AmountRequest) (*TransactionResponse, error)
	UnwrapMana(ctx context.Context, request *AmountRequest) (*TransactionResponse, error)
}

// PortalServiceServer exposes the portal over gRPC.
type PortalServiceServer struct {
	accounts AccountSource
	wallets  WalletReader
	wrapper  Wrapper
	activity ActivityReader
}

// NewPortalServiceServer validates its collaborators.
func NewPortalServiceServer(accounts AccountSource, wallets WalletReader, wrapper Wrapper, activity ActivityReader) (*PortalServiceServer, error) {
	if accounts == nil || wallets == nil || wrapper == nil || activity == nil {
		return nil, fmt.Errorf("%w: portal service collaborators are required", governance.ErrInvalidServiceConfig)
	}
	return &PortalServiceServer{accounts: accounts, wallets: wallets, wrapper: wrapper, activity: activity}, nil
}

func (service *PortalServiceServer) GetWallet(_ context.Context, _ *WalletRequest) (*WalletResponse, error) {
	account, connected := service.accounts.CurrentAccount()
	response := &WalletResponse{Connected: connected, Network: service.accounts.Network()}
	if connected {
		response.Account = account.String()
		response.Wallet = service.wallets.Get()
	}
	return response, nil
}

func (service *PortalServiceServer) ListActivity(ctx context.Context, request *ActivityRequest) (*ActivityResponse, error) {
	query := governance.ActivityQuery{Limit: request.Limit, BeforeUnixUTC: request.BeforeUnixUTC}
	if request.Account != "" {
		account, err := governance.NewAccount(request.Account)
		if err != nil {
			return nil, mapToGRPCError(err)
		}
		query.Account = account
	}
	entries, err := service.activity.Recent(ctx, query)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	if entries == nil {
		entries = []governance.ActivityEntry{}
	}
	return &ActivityResponse{Entries: entries}, nil
}

func (service *PortalServiceServer) WrapMana(ctx context.Context, request *AmountRequest) (*TransactionResponse, error) {
	if request.Amount < 0 {
		return nil, status.Error(codes.InvalidArgument, errorInvalidAmount)
	}
	hash, err := service.wrapper.WrapMana(ctx, request.Amount)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &TransactionResponse{TxHash: hash}, nil
}

func (service *PortalServiceServer) UnwrapMana(ctx context.Context, request *AmountRequest) (*TransactionResponse, error) {
	if request.Amount < 0 {
		return nil, status.Error(codes.InvalidArgument, errorInvalidAmount)
	}
	hash, err := service.wrapper.UnwrapMana(ctx, request.Amount)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &TransactionResponse{TxHash: hash}, nil
}

// RegisterPortalServiceServer mounts service on registrar.
func RegisterPortalServiceServer(registrar grpc.ServiceRegistrar, service PortalServer) {
	registrar.RegisterService(&portalServiceDesc, service)
}

var portalServiceDesc = grpc.ServiceDesc{
	ServiceName: portalServiceName,
	HandlerType: (*PortalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: methodGetWallet, Handler: unaryHandler(methodGetWallet, func(server PortalServer, ctx context.Context, request *WalletRequest) (any, error) {
			return server.GetWallet(ctx, request)
		})},
		{MethodName: methodListActivity, Handler: unaryHandler(methodListActivity, func(server PortalServer, ctx context.Context, request *ActivityRequest) (any, error) {
			return server.ListActivity(ctx, request)
		})},
		{MethodName: methodWrapMana, Handler: unaryHandler(methodWrapMana, func(server PortalServer, ctx context.Context, request *AmountRequest) (any, error) {
			return server.WrapMana(ctx, request)
		})},
		{MethodName: methodUnwrapMana, Handler: unaryHandler(methodUnwrapMana, func(server PortalServer, ctx context.Context, request *AmountRequest) (any, error) {
			return server.UnwrapMana(ctx, request)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "governance/v1/portal",
}

func unaryHandler[Request any](method string, call func(PortalServer, context.Context, *Request) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + portalServiceName + "/" + method
	return func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		request := new(Request)
		if err := decode(request); err != nil {
			return nil, err
		}
		portal := server.(PortalServer)
		if interceptor == nil {
			return call(portal, ctx, request)
		}
		info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod}
		return interceptor(ctx, request, info, func(ctx context.Context, request any) (any, error) {
			return call(portal, ctx, request.(*Request))
		})
	}
}

// PortalServiceClient calls PortalService with the JSON codec.
type PortalServiceClient struct {
	conn grpc.ClientConnInterface
}

// NewPortalServiceClient wraps conn.
func NewPortalServiceClient(conn grpc.ClientConnInterface) *PortalServiceClient {
	return &PortalServiceClient{conn: conn}
}

func (client *PortalServiceClient) GetWallet(ctx context.Context, request *WalletRequest, options ...grpc.CallOption) (*WalletResponse, error) {
	response := new(WalletResponse)
	return response, client.invoke(ctx, methodGetWallet, request, response, options)
}

func (client *PortalServiceClient) ListActivity(ctx context.Context, request *ActivityRequest, options ...grpc.CallOption) (*ActivityResponse, error) {
	response := new(ActivityResponse)
	return response, client.invoke(ctx, methodListActivity, request, response, options)
}

func (client *PortalServiceClient) WrapMana(ctx context.Context, request *AmountRequest, options ...grpc.CallOption) (*TransactionResponse, error) {
	response := new(TransactionResponse)
	return response, client.invoke(ctx, methodWrapMana, request, response, options)
}

func (client *PortalServiceClient) UnwrapMana(ctx context.Context, request *AmountRequest, options ...grpc.CallOption) (*TransactionResponse, error) {
	response := new(TransactionResponse)
	return response, client.invoke(ctx, methodUnwrapMana, request, response, options)
}

func (client *PortalServiceClient) invoke(ctx context.Context, method string, request any, response any, options []grpc.CallOption) error {
	options = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, options...)
	return client.conn.Invoke(ctx, "/"+portalServiceName+"/"+method, request, response, options...)
}

func mapToGRPCError(source error) error {
	var contractError *governance.ContractError
	if errors.Is(source, governance.ErrInvalidAccount) {
		return status.Error(codes.InvalidArgument, errorInvalidAccount)
	}
	if errors.Is(source, governance.ErrInvalidActivity) {
		return status.Error(codes.InvalidArgument, errorInvalidActivity)
	}
	if errors.Is(source, governance.ErrUnknownNetwork) {
		return status.Error(codes.FailedPrecondition, errorUnknownNetwork)
	}
	if errors.Is(source, governance.ErrNotConnected) {
		return status.Error(codes.FailedPrecondition, errorNotConnected)
	}
	if errors.Is(source, governance.ErrTaskInProgress) {
		return status.Error(codes.Aborted, errorTaskInProgress)
	}
	if errors.Is(source, governance.ErrContractsUnavailable) {
		return status.Error(codes.Unavailable, errorContractsMissing)
	}
	if errors.As(source, &contractError) {
		switch contractError.Kind {
		case governance.ContractErrorRejectedByUser:
			return status.Error(codes.Canceled, errorRejected)
		case governance.ContractErrorTimeout:
			return status.Error(codes.DeadlineExceeded, contractError.Message)
		default:
			return status.Error(codes.Unavailable, errorContract+": "+contractError.Message)
		}
	}
	return status.Error(codes.Internal, source.Error())
}
