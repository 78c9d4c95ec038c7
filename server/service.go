package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/0xPolygonHermez/zkevm-node/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	batchdepositservice "github.com/stakebatch/batch-deposit-service"
	"github.com/stakebatch/batch-deposit-service/batchdeposit"
	"github.com/stakebatch/batch-deposit-service/gerror"
	"github.com/stakebatch/batch-deposit-service/utils"
)

const (
	defaultErrorCode   = 1
	defaultSuccessCode = 0

	actionPause             = "pause"
	actionUnpause           = "unpause"
	actionChangeFee         = "changeFee"
	actionWithdraw          = "withdraw"
	actionTransferOwnership = "transferOwnership"
	actionRenounceOwnership = "renounceOwnership"
)

type depositService struct {
	contract     depositContract
	storage      batchHistoryStorage
	cfg          Config
	timeProvider utils.TimeProvider
	replays      *replayGuard
}

// NewDepositService creates the REST service in front of the contract
func NewDepositService(cfg Config, contract depositContract, storage batchHistoryStorage) *depositService {
	if cfg.DefaultPageLimit == 0 {
		cfg.DefaultPageLimit = 25 //nolint:gomnd
	}
	if cfg.MaxPageLimit == 0 {
		cfg.MaxPageLimit = 100 //nolint:gomnd
	}
	return &depositService{
		contract:     contract,
		storage:      storage,
		cfg:          cfg,
		timeProvider: utils.NewTimeProviderSystemLocalTime(),
		replays:      newReplayGuard(cfg.SignatureValidity.Duration),
	}
}

// WithTimeProvider replaces the clock used to check signed owner requests
func (s *depositService) WithTimeProvider(tp utils.TimeProvider) *depositService {
	s.timeProvider = tp
	return s
}

// Router builds the gin engine with every route of the API
func (s *depositService) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), traceMiddleware(), requestLogMiddleware(), corsMiddleware())
	router.GET("/healthz", s.health)

	v1 := router.Group("/api/v1")
	v1.GET("/version", s.version)
	v1.GET("/contract", s.getContract)
	v1.POST("/deposits", s.postDeposits)
	v1.GET("/batches", s.getBatches)
	v1.GET("/batches/:id", s.getBatch)

	owner := v1.Group("/owner")
	owner.POST("/pause", s.ownerAction(actionPause, s.pause))
	owner.POST("/unpause", s.ownerAction(actionUnpause, s.unpause))
	owner.POST("/fee", s.ownerAction(actionChangeFee, s.changeFee))
	owner.POST("/withdraw", s.ownerAction(actionWithdraw, s.withdraw))
	owner.POST("/ownership", s.ownerAction(actionTransferOwnership, s.transferOwnership))
	owner.POST("/renounce", s.ownerAction(actionRenounceOwnership, s.renounce))
	return router
}

func (s *depositService) health(c *gin.Context) {
	if _, err := s.storage.GetContractState(c.Request.Context()); err != nil {
		log.Warnf("health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, response{Code: defaultErrorCode, Msg: "storage unavailable"})
		return
	}
	c.JSON(http.StatusOK, response{Code: defaultSuccessCode, Msg: "SERVING"})
}

func (s *depositService) version(c *gin.Context) {
	c.JSON(http.StatusOK, response{Code: defaultSuccessCode, Data: batchdepositservice.Version})
}

func (s *depositService) getContract(c *gin.Context) {
	c.JSON(http.StatusOK, response{
		Code: defaultSuccessCode,
		Data: newContractStateResponse(s.contract.Mode(), s.contract.LedgerAddress(), s.contract.State()),
	})
}

func (s *depositService) postDeposits(c *gin.Context) {
	var body depositRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	req, err := body.toBatchRequest()
	if err != nil {
		badRequest(c, err)
		return
	}
	receipt, err := s.contract.BatchDeposit(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Code: defaultSuccessCode, Data: newBatchReceiptResponse(receipt)})
}

func (s *depositService) getBatches(c *gin.Context) {
	limit, offset, err := s.pagination(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	var depositor *common.Address
	if d := c.Query("depositor"); d != "" {
		if !common.IsHexAddress(d) {
			badRequest(c, errors.New("invalid depositor"))
			return
		}
		addr := common.HexToAddress(d)
		depositor = &addr
	}
	receipts, err := s.storage.GetBatchReceipts(c.Request.Context(), depositor, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	data := make([]batchReceiptResponse, 0, len(receipts))
	for _, r := range receipts {
		data = append(data, newBatchReceiptResponse(r))
	}
	c.JSON(http.StatusOK, response{Code: defaultSuccessCode, Data: data})
}

func (s *depositService) getBatch(c *gin.Context) {
	id, err := decodeHex(c.Param("id"))
	if err != nil || len(id) != common.HashLength {
		badRequest(c, errors.New("invalid batch id"))
		return
	}
	receipt, err := s.storage.GetBatchReceipt(c.Request.Context(), common.BytesToHash(id))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, response{Code: defaultSuccessCode, Data: newBatchReceiptResponse(receipt)})
}

func (s *depositService) pagination(c *gin.Context) (limit, offset uint, err error) {
	limit = uint(s.cfg.DefaultPageLimit)
	if l := c.Query("limit"); l != "" {
		v, err := strconv.ParseUint(l, 10, 32)
		if err != nil {
			return 0, 0, errors.New("invalid limit")
		}
		limit = uint(v)
	}
	if limit == 0 || limit > uint(s.cfg.MaxPageLimit) {
		limit = uint(s.cfg.MaxPageLimit)
	}
	if o := c.Query("offset"); o != "" {
		v, err := strconv.ParseUint(o, 10, 32)
		if err != nil {
			return 0, 0, errors.New("invalid offset")
		}
		offset = uint(v)
	}
	return limit, offset, nil
}

// ownerOperation runs an authenticated owner call and returns the data of the response
type ownerOperation func(ctx context.Context, caller common.Address, req *ownerRequest) (interface{}, error)

// ownerParam is the operation argument covered by the signature. The fee is signed as its
// wei amount whichever unit the request uses.
func ownerParam(action string, req *ownerRequest) (string, error) {
	switch action {
	case actionChangeFee:
		fee, err := parseAmount(req.Fee, req.FeeEth)
		if err != nil {
			return "", err
		}
		return fee.String(), nil
	case actionWithdraw:
		return req.To, nil
	case actionTransferOwnership:
		return req.NewOwner, nil
	}
	return "", nil
}

func (s *depositService) ownerAction(action string, op ownerOperation) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ownerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		param, err := ownerParam(action, &req)
		if err != nil {
			writeError(c, invalidArgument(err))
			return
		}
		caller, err := verifyOwnerRequest(&req, action, param, s.timeProvider.Now(), s.cfg.SignatureValidity.Duration)
		if err == nil && !s.replays.consume(caller.Hex()+"|"+OwnerMessage(action, param, req.Timestamp)) {
			err = errReplayedRequest
		}
		if err != nil {
			log.Warnf("rejected %s request from %s: %v", action, req.Caller, err)
			c.JSON(http.StatusUnauthorized, response{Code: defaultErrorCode, Msg: err.Error()})
			return
		}
		data, err := op(c.Request.Context(), caller, &req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, response{Code: defaultSuccessCode, Data: data})
	}
}

func (s *depositService) pause(ctx context.Context, caller common.Address, _ *ownerRequest) (interface{}, error) {
	return nil, s.contract.Pause(ctx, caller)
}

func (s *depositService) unpause(ctx context.Context, caller common.Address, _ *ownerRequest) (interface{}, error) {
	return nil, s.contract.Unpause(ctx, caller)
}

func (s *depositService) changeFee(ctx context.Context, caller common.Address, req *ownerRequest) (interface{}, error) {
	fee, err := parseAmount(req.Fee, req.FeeEth)
	if err != nil {
		return nil, invalidArgument(err)
	}
	if err := s.contract.ChangeFee(ctx, caller, fee); err != nil {
		return nil, err
	}
	return newContractStateResponse(s.contract.Mode(), s.contract.LedgerAddress(), s.contract.State()), nil
}

func (s *depositService) withdraw(ctx context.Context, caller common.Address, req *ownerRequest) (interface{}, error) {
	if !common.IsHexAddress(req.To) {
		return nil, invalidArgument(errors.New("invalid recipient"))
	}
	to := common.HexToAddress(req.To)
	amount, err := s.contract.Withdraw(ctx, caller, to)
	if err != nil {
		return nil, err
	}
	return withdrawResponse{To: to.Hex(), Amount: amount.String()}, nil
}

func (s *depositService) transferOwnership(ctx context.Context, caller common.Address, req *ownerRequest) (interface{}, error) {
	if !common.IsHexAddress(req.NewOwner) {
		return nil, invalidArgument(errors.New("invalid new owner"))
	}
	if err := s.contract.TransferOwnership(ctx, caller, common.HexToAddress(req.NewOwner)); err != nil {
		return nil, err
	}
	return newContractStateResponse(s.contract.Mode(), s.contract.LedgerAddress(), s.contract.State()), nil
}

func (s *depositService) renounce(ctx context.Context, caller common.Address, _ *ownerRequest) (interface{}, error) {
	return nil, s.contract.RenounceOwnership(ctx, caller)
}

func invalidArgument(err error) error {
	return &batchdeposit.Error{Kind: batchdeposit.KindInvalidArgument, Index: -1, Reason: err.Error()}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response{Code: defaultErrorCode, Msg: err.Error()})
}

// writeError maps contract and storage failures to a status code
func writeError(c *gin.Context, err error) {
	var e *batchdeposit.Error
	if errors.As(err, &e) {
		res := response{Code: int(e.Kind), Msg: e.Error(), Kind: e.Kind.String()}
		if e.Index >= 0 {
			idx := e.Index
			res.Index = &idx
		}
		c.JSON(statusForKind(e.Kind), res)
		return
	}
	if errors.Is(err, gerror.ErrStorageNotFound) {
		c.JSON(http.StatusNotFound, response{Code: defaultErrorCode, Msg: err.Error()})
		return
	}
	log.Errorf("internal error on %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, response{Code: defaultErrorCode, Msg: "internal error"})
}

func statusForKind(kind batchdeposit.ErrorKind) int {
	switch kind {
	case batchdeposit.KindMalformedBatch, batchdeposit.KindAmountOutOfRange, batchdeposit.KindInvalidArgument:
		return http.StatusBadRequest
	case batchdeposit.KindInsufficientFunding, batchdeposit.KindFundingMisalignment:
		return http.StatusUnprocessableEntity
	case batchdeposit.KindUnauthorized, batchdeposit.KindOperationDisabled:
		return http.StatusForbidden
	case batchdeposit.KindOperationSuspended, batchdeposit.KindAlreadyPaused, batchdeposit.KindNotPaused, batchdeposit.KindReentrantCall:
		return http.StatusConflict
	case batchdeposit.KindDepositLedgerRejected, batchdeposit.KindTransferFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
