// Package httpapi exposes the portal operations to operators over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/governance/pkg/governance"
)

const (
	claimsContextKey      = "auth_claims"
	locationHeader        = "X-Portal-Location"
	defaultRequestTimeout = 30 * time.Second
)

// SessionControl is the wallet provider surface used by the session routes.
type SessionControl interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	SwitchNetwork(ctx context.Context, raw string) (governance.Network, error)
	Network() governance.Network
	CurrentAccount() (governance.Account, bool)
}

// WalletReader returns the latest aggregated wallet.
type WalletReader interface {
	Get() *governance.Wallet
}

// WrappingControl runs the wrapping and registration tasks.
type WrappingControl interface {
	WrapMana(ctx context.Context, amount float64) (string, error)
	UnwrapMana(ctx context.Context, amount float64) (string, error)
	RegisterLandBalance(ctx context.Context) (string, error)
	RegisterEstateBalance(ctx context.Context) (string, error)
	Status() governance.WrappingStatus
}

// ProposalPage is the proposal detail controller.
type ProposalPage interface {
	ProposalID() string
	Initialize(query url.Values)
	Load(ctx context.Context, proposalID string) error
	View() governance.ProposalPageView
	Vote(ctx context.Context, choiceIndex int) error
	Subscribe(ctx context.Context, subscribe bool) error
	UpdateStatus(ctx context.Context, status governance.ProposalStatus, vestingAddress *string, description string) error
	DeleteProposal(ctx context.Context) error
}

// ActivityReader lists the activity journal.
type ActivityReader interface {
	Recent(ctx context.Context, query governance.ActivityQuery) ([]governance.ActivityEntry, error)
}

// Config configures the HTTP surface.
type Config struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// Dependencies collects the collaborators of Handler.
type Dependencies struct {
	Logger    *zap.Logger
	Session   SessionControl
	Wallets   WalletReader
	Wrapping  WrappingControl
	Proposals ProposalPage
	Activity  ActivityReader
	Navigator *Navigator
}

// Handler serves the portal routes.
type Handler struct {
	logger    *zap.Logger
	session   SessionControl
	wallets   WalletReader
	wrapping  WrappingControl
	proposals ProposalPage
	activity  ActivityReader
	navigator *Navigator
	timeout   time.Duration
}

type networkRequest struct {
	Network string `json:"network"`
}

type amountRequest struct {
	Amount *float64 `json:"amount"`
}

type voteRequest struct {
	ChoiceIndex *int `json:"choice_index"`
}

type subscriptionRequest struct {
	Subscribe bool `json:"subscribe"`
}

type statusRequest struct {
	Status         string  `json:"status"`
	VestingAddress *string `json:"vesting_address"`
	Description    string  `json:"description"`
}

// NewHandler validates dependencies.
func NewHandler(dependencies Dependencies, config Config) (*Handler, error) {
	switch {
	case dependencies.Session == nil:
		return nil, fmt.Errorf("%w: session control is nil", governance.ErrInvalidServiceConfig)
	case dependencies.Wallets == nil:
		return nil, fmt.Errorf("%w: wallet reader is nil", governance.ErrInvalidServiceConfig)
	case dependencies.Wrapping == nil:
		return nil, fmt.Errorf("%w: wrapping control is nil", governance.ErrInvalidServiceConfig)
	case dependencies.Proposals == nil:
		return nil, fmt.Errorf("%w: proposal page is nil", governance.ErrInvalidServiceConfig)
	case dependencies.Activity == nil:
		return nil, fmt.Errorf("%w: activity reader is nil", governance.ErrInvalidServiceConfig)
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	navigator := dependencies.Navigator
	if navigator == nil {
		navigator = NewNavigator()
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Handler{
		logger:    logger,
		session:   dependencies.Session,
		wallets:   dependencies.Wallets,
		wrapping:  dependencies.Wrapping,
		proposals: dependencies.Proposals,
		activity:  dependencies.Activity,
		navigator: navigator,
		timeout:   timeout,
	}, nil
}

// NewRouter mounts the routes behind CORS and the session validator.
func NewRouter(config Config, handler *Handler, validator *sessionvalidator.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", locationHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))
	handler.Register(api)
	return router
}

// Register mounts the portal routes on group.
func (handler *Handler) Register(group *gin.RouterGroup) {
	group.Use(handler.trackLocation)

	group.GET("/wallet", handler.handleWallet)
	group.POST("/session/connect", handler.handleConnect)
	group.DELETE("/session", handler.handleDisconnect)
	group.POST("/session/network", handler.handleSwitchNetwork)

	group.POST("/wrap", handler.handleWrap)
	group.POST("/unwrap", handler.handleUnwrap)
	group.POST("/land/register", handler.handleRegisterLand)
	group.POST("/estate/register", handler.handleRegisterEstate)

	group.GET("/proposals/:id", handler.handleProposal)
	group.POST("/proposals/:id/votes", handler.handleVote)
	group.POST("/proposals/:id/subscription", handler.handleSubscription)
	group.POST("/proposals/:id/status", handler.handleStatus)
	group.DELETE("/proposals/:id", handler.handleDeleteProposal)

	group.GET("/activity", handler.handleActivity)
	group.GET("/validation", handler.handleValidation)
}

func (handler *Handler) trackLocation(ctx *gin.Context) {
	if location := ctx.GetHeader(locationHeader); location != "" {
		handler.navigator.Visit(location)
	}
	ctx.Next()
}

func (handler *Handler) handleWallet(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	account, connected := handler.session.CurrentAccount()
	payload := gin.H{
		"connected": connected,
		"network":   handler.session.Network(),
		"wallet":    handler.wallets.Get(),
		"wrapping":  handler.wrapping.Status(),
	}
	if connected {
		payload["account"] = account
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *Handler) handleConnect(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	if err := handler.session.Connect(requestCtx); err != nil {
		handler.respondError(ctx, "connect", err)
		return
	}
	account, _ := handler.session.CurrentAccount()
	ctx.JSON(http.StatusOK, gin.H{"account": account, "network": handler.session.Network()})
}

func (handler *Handler) handleDisconnect(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	handler.session.Disconnect(requestCtx)
	ctx.JSON(http.StatusOK, gin.H{"connected": false})
}

func (handler *Handler) handleSwitchNetwork(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	var request networkRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Network) == "" {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with network"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	network, err := handler.session.SwitchNetwork(requestCtx, request.Network)
	if err != nil {
		handler.respondError(ctx, "switch network", err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"network": network})
}

func (handler *Handler) handleWrap(ctx *gin.Context) {
	handler.runAmountTask(ctx, "wrap", handler.wrapping.WrapMana)
}

func (handler *Handler) handleUnwrap(ctx *gin.Context) {
	handler.runAmountTask(ctx, "unwrap", handler.wrapping.UnwrapMana)
}

func (handler *Handler) handleRegisterLand(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	handler.runTask(ctx, "register land", handler.wrapping.RegisterLandBalance)
}

func (handler *Handler) handleRegisterEstate(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	handler.runTask(ctx, "register estate", handler.wrapping.RegisterEstateBalance)
}

func (handler *Handler) runAmountTask(ctx *gin.Context, name string, task func(context.Context, float64) (string, error)) {
	if !authorized(ctx) {
		return
	}
	var request amountRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.Amount == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with amount"))
		return
	}
	handler.runTask(ctx, name, func(requestCtx context.Context) (string, error) {
		return task(requestCtx, *request.Amount)
	})
}

func (handler *Handler) runTask(ctx *gin.Context, name string, task func(context.Context) (string, error)) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	hash, err := task(requestCtx)
	if err != nil {
		handler.respondError(ctx, name, err)
		return
	}
	handler.respond(ctx, gin.H{"tx_hash": hash, "wrapping": handler.wrapping.Status()})
}

func (handler *Handler) handleProposal(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	proposalID := ctx.Param("id")
	if err := handler.proposals.Load(requestCtx, proposalID); err != nil {
		handler.respondError(ctx, "load proposal", err)
		return
	}
	handler.proposals.Initialize(ctx.Request.URL.Query())
	view := handler.proposals.View()
	if view.NotFound {
		ctx.JSON(http.StatusNotFound, errorResponse("not_found", "proposal not found"))
		return
	}
	handler.respond(ctx, gin.H{"page": view})
}

func (handler *Handler) handleVote(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	var request voteRequest
	if err := ctx.ShouldBindJSON(&request); err != nil || request.ChoiceIndex == nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with choice_index"))
		return
	}
	handler.withProposal(ctx, "vote", func(requestCtx context.Context) error {
		return handler.proposals.Vote(requestCtx, *request.ChoiceIndex)
	})
}

func (handler *Handler) handleSubscription(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	var request subscriptionRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with subscribe"))
		return
	}
	handler.withProposal(ctx, "subscription", func(requestCtx context.Context) error {
		return handler.proposals.Subscribe(requestCtx, request.Subscribe)
	})
}

func (handler *Handler) handleStatus(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	var request statusRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with status"))
		return
	}
	status, err := governance.ParseProposalStatus(request.Status)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_status", err.Error()))
		return
	}
	handler.withProposal(ctx, "update status", func(requestCtx context.Context) error {
		return handler.proposals.UpdateStatus(requestCtx, status, request.VestingAddress, request.Description)
	})
}

func (handler *Handler) handleDeleteProposal(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	handler.withProposal(ctx, "delete proposal", handler.proposals.DeleteProposal)
}

// withProposal loads the addressed proposal when the controller shows another one,
// runs the action and answers with the refreshed page.
func (handler *Handler) withProposal(ctx *gin.Context, name string, action func(context.Context) error) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	proposalID := ctx.Param("id")
	if handler.proposals.ProposalID() != proposalID {
		if err := handler.proposals.Load(requestCtx, proposalID); err != nil {
			handler.respondError(ctx, name, err)
			return
		}
	}
	if err := action(requestCtx); err != nil {
		handler.respondError(ctx, name, err)
		return
	}
	handler.respond(ctx, gin.H{"page": handler.proposals.View()})
}

func (handler *Handler) handleActivity(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	query := governance.ActivityQuery{}
	if raw := ctx.Query("account"); raw != "" {
		account, err := governance.NewAccount(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_account", err.Error()))
			return
		}
		query.Account = account
	}
	if raw := ctx.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_limit", "limit must be an integer"))
			return
		}
		query.Limit = limit
	}
	if raw := ctx.Query("before"); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_before", "before must be unix seconds"))
			return
		}
		query.BeforeUnixUTC = before
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.activity.Recent(requestCtx, query)
	if err != nil {
		handler.logger.Error("activity list failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("store_error", "activity unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (handler *Handler) handleValidation(ctx *gin.Context) {
	if !authorized(ctx) {
		return
	}
	position, hasPosition := ctx.GetQuery("position")
	name, hasName := ctx.GetQuery("name")
	nameValidity := governance.ValidityUnset
	if hasName {
		nameValidity = governance.ValidityInvalid
		if governance.IsValidName(name) {
			nameValidity = governance.ValidityValid
		}
	}
	ctx.JSON(http.StatusOK, gin.H{
		"position": governance.IsValidPosition(position, hasPosition).String(),
		"name":     nameValidity.String(),
	})
}

func (handler *Handler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *Handler) respond(ctx *gin.Context, payload gin.H) {
	if redirect, ok := handler.navigator.Take(); ok {
		payload["redirect"] = redirect
	}
	ctx.JSON(http.StatusOK, payload)
}

func (handler *Handler) respondError(ctx *gin.Context, name string, err error) {
	status, code := classifyError(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error(name+" failed", zap.Error(err))
	}
	ctx.JSON(status, errorResponse(code, governance.ErrorMessage(err)))
}

func classifyError(err error) (int, string) {
	var validationError *governance.ValidationError
	var signError *governance.SignError
	var submitError *governance.SubmitError
	var contractError *governance.ContractError
	var balanceError *governance.BalanceError
	switch {
	case errors.As(err, &validationError):
		return http.StatusBadRequest, "invalid_" + validationError.Field
	case errors.Is(err, governance.ErrUnknownNetwork):
		return http.StatusBadRequest, "unknown_network"
	case errors.Is(err, governance.ErrInvalidAccount):
		return http.StatusBadRequest, "invalid_account"
	case errors.Is(err, governance.ErrProposalNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, governance.ErrNotCommittee), errors.Is(err, governance.ErrNotOwnerOrCommittee):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, governance.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, governance.ErrTaskInProgress):
		return http.StatusConflict, "task_in_progress"
	case errors.Is(err, governance.ErrProposalNotLoaded), errors.Is(err, governance.ErrVotesNotLoaded):
		return http.StatusConflict, "not_loaded"
	case errors.Is(err, governance.ErrStaleResponse):
		return http.StatusConflict, "stale"
	case errors.As(err, &signError):
		return http.StatusUnprocessableEntity, "sign_" + string(signError.Kind)
	case errors.As(err, &submitError):
		return http.StatusBadGateway, "snapshot_error"
	case errors.As(err, &contractError):
		if contractError.Kind == governance.ContractErrorRejectedByUser {
			return http.StatusUnprocessableEntity, "rejected"
		}
		return http.StatusBadGateway, "contract_error"
	case errors.As(err, &balanceError), errors.Is(err, governance.ErrContractsUnavailable):
		return http.StatusBadGateway, "chain_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func authorized(ctx *gin.Context) bool {
	if getClaims(ctx) == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return false
	}
	return true
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
