package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cfgTypes "github.com/0xPolygonHermez/zkevm-tx-engine/config/types"
	"github.com/0xPolygonHermez/zkevm-tx-engine/executor"
	"github.com/0xPolygonHermez/zkevm-tx-engine/repository"
	"github.com/0xPolygonHermez/zkevm-tx-engine/retry"
	"github.com/0xPolygonHermez/zkevm-tx-engine/signer"
	"github.com/0xPolygonHermez/zkevm-tx-engine/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	mock "github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	from  = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	to    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	token = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

func NewMockConfig() Config {
	return Config{
		Host:                      "0.0.0.0",
		Port:                      8123,
		ReadTimeout:               cfgTypes.NewDuration(time.Second * 60),
		WriteTimeout:              cfgTypes.NewDuration(time.Second * 60),
		MaxRequestsPerIPAndSecond: 100,
		BatchRequestsEnabled:      true,
		BatchRequestsLimit:        2,
		BatchRequestsConcurrency:  2,
		WebSocketPath:             "/ws",
	}
}

func newHttpRequest() *http.Request {
	return httptest.NewRequest(http.MethodPost, "/", nil)
}

func TestExecuteTransaction(t *testing.T) {
	mockExecutor := &executorMock{}
	mockRepo := &repositoryMock{}
	cfg := NewMockConfig()

	endpoints := NewEndpoints(cfg, mockExecutor, mockRepo)
	result := &executor.ExecuteResult{ID: "a", TransactionHash: common.HexToHash("0x01")}

	type testCase struct {
		Name           string
		Args           ExecuteTransactionArgs
		SetupMocks     func()
		ExpectedResult interface{}
		ExpectedError  Error
	}

	testCases := []testCase{
		{
			Name: "Execute tx successfully",
			Args: ExecuteTransactionArgs{ChainID: 1, From: from, To: &to, Value: (*hexutil.Big)(big.NewInt(10)), Data: "0x0102"},
			SetupMocks: func() {
				mockExecutor.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(p executor.ExecuteParams) bool {
					return p.ChainID == 1 && p.From == from && *p.To == to && p.Value.Int64() == 10 &&
						bytes.Equal(p.Data, []byte{0x01, 0x02}) && p.TypeInfo.Type == types.TransactionTypeUnknown
				})).Return(result, nil).Once()
			},
			ExpectedResult: result,
		},
		{
			Name:          "Execute tx with invalid data",
			Args:          ExecuteTransactionArgs{ChainID: 1, From: from, Data: "0xzz"},
			SetupMocks:    func() {},
			ExpectedError: NewServerErrorWithData(InvalidParamsErrorCode, "invalid tx input", nil),
		},
		{
			Name:          "Execute tx with invalid type info",
			Args:          ExecuteTransactionArgs{ChainID: 1, From: from, TypeInfo: &types.TypeInfo{Type: types.TransactionTypeApprove}},
			SetupMocks:    func() {},
			ExpectedError: NewServerErrorWithData(InvalidParamsErrorCode, "invalid tx input", nil),
		},
		{
			Name: "Execute tx rejected by signer",
			Args: ExecuteTransactionArgs{ChainID: 2, From: from},
			SetupMocks: func() {
				mockExecutor.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(p executor.ExecuteParams) bool { return p.ChainID == 2 })).
					Return(nil, fmt.Errorf("%w: key locked", signer.ErrSigning)).Once()
			},
			ExpectedError: NewServerErrorWithData(SignerRejectedErrorCode, signerRejectedMessage, nil),
		},
		{
			Name: "Execute tx that would fail",
			Args: ExecuteTransactionArgs{ChainID: 3, From: from},
			SetupMocks: func() {
				mockExecutor.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(p executor.ExecuteParams) bool { return p.ChainID == 3 })).
					Return(nil, fmt.Errorf("%w: execution reverted", signer.ErrEstimation)).Once()
			},
			ExpectedError: NewServerErrorWithData(ExecutionRevertedErrorCode, executionRevertedMessage, nil),
		},
		{
			Name: "Execute tx with network issues",
			Args: ExecuteTransactionArgs{ChainID: 4, From: from},
			SetupMocks: func() {
				mockExecutor.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(p executor.ExecuteParams) bool { return p.ChainID == 4 })).
					Return(nil, retry.Retryable(errors.New("connection refused"))).Once()
			},
			ExpectedError: NewServerErrorWithData(NetworkErrorCode, networkErrorMessage, nil),
		},
		{
			Name: "Execute tx with unknown account",
			Args: ExecuteTransactionArgs{ChainID: 5, From: from},
			SetupMocks: func() {
				mockExecutor.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(p executor.ExecuteParams) bool { return p.ChainID == 5 })).
					Return(nil, signer.ErrUnknownAccount).Once()
			},
			ExpectedError: NewServerErrorWithData(InvalidParamsErrorCode, signer.ErrUnknownAccount.Error(), nil),
		},
		{
			Name: "Execute tx with internal error",
			Args: ExecuteTransactionArgs{ChainID: 6, From: from},
			SetupMocks: func() {
				mockExecutor.On("ExecuteTransaction", mock.Anything, mock.MatchedBy(func(p executor.ExecuteParams) bool { return p.ChainID == 6 })).
					Return(nil, &repository.StorageError{Op: "insert transaction", Err: errors.New("disk full")}).Once()
			},
			ExpectedError: NewServerErrorWithData(InternalErrorCode, internalErrorMessage, nil),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			tc.SetupMocks()

			res, err := endpoints.ExecuteTransaction(newHttpRequest(), tc.Args)
			if tc.ExpectedError != nil {
				assert.Equal(t, tc.ExpectedError, err)
				assert.Nil(t, res)
				return
			}
			assert.Nil(t, err)
			assert.Equal(t, tc.ExpectedResult, res)
		})
	}
	mockExecutor.AssertExpectations(t)
}

func TestApprove(t *testing.T) {
	mockExecutor := &executorMock{}
	endpoints := NewEndpoints(NewMockConfig(), mockExecutor, &repositoryMock{})

	args := ApproveArgs{ChainID: 1, From: from, Token: token, Spender: to, Amount: (*hexutil.Big)(big.NewInt(5)), GasLimit: "0"}
	mockExecutor.On("Approve", mock.Anything, mock.MatchedBy(func(p executor.ApproveParams) bool {
		return p.GasLimit == "0" && p.Token == token && p.Spender == to && p.Amount.Int64() == 5
	})).Return(false, nil).Once()

	res, err := endpoints.Approve(newHttpRequest(), args)
	assert.Nil(t, err)
	assert.Equal(t, false, res)
	mockExecutor.AssertExpectations(t)
}

func TestWrap(t *testing.T) {
	mockExecutor := &executorMock{}
	endpoints := NewEndpoints(NewMockConfig(), mockExecutor, &repositoryMock{})

	args := WrapArgs{
		From:   from,
		Input:  executor.Currency{ChainID: 1, Native: true},
		Output: executor.Currency{ChainID: 1, Address: common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")},
		Amount: (*hexutil.Big)(big.NewInt(7)),
	}
	mockExecutor.On("Wrap", mock.Anything, mock.MatchedBy(func(p executor.WrapParams) bool {
		return p.Input.Native && p.Amount.Int64() == 7
	})).Return(nil).Once()
	mockExecutor.On("ClassifyWrap", args.Input, args.Output).Return(executor.WrapWrap).Once()

	res, err := endpoints.Wrap(newHttpRequest(), args)
	assert.Nil(t, err)
	assert.Equal(t, true, res)

	res, err = endpoints.ClassifyWrap(args.Input, args.Output)
	assert.Nil(t, err)
	assert.Equal(t, "wrap", res)
	mockExecutor.AssertExpectations(t)
}

func TestSpeedUp(t *testing.T) {
	mockExecutor := &executorMock{}
	endpoints := NewEndpoints(NewMockConfig(), mockExecutor, &repositoryMock{})
	result := &executor.ExecuteResult{ID: "b", TransactionHash: common.HexToHash("0x02")}

	factor := 1.5
	mockExecutor.On("SpeedUp", mock.Anything, "a", 1.5).Return(result, nil).Once()
	mockExecutor.On("SpeedUp", mock.Anything, "a", float64(0)).Return(nil, executor.ErrAlreadyReplaced).Once()

	res, err := endpoints.SpeedUp(newHttpRequest(), "a", &factor)
	assert.Nil(t, err)
	assert.Equal(t, result, res)

	res, err = endpoints.SpeedUp(newHttpRequest(), "a", nil)
	assert.Nil(t, res)
	assert.Equal(t, NewServerErrorWithData(InvalidParamsErrorCode, executor.ErrAlreadyReplaced.Error(), nil), err)

	_, err = endpoints.SpeedUp(newHttpRequest(), "", nil)
	assert.Equal(t, InvalidParamsErrorCode, err.ErrorCode())
	mockExecutor.AssertExpectations(t)
}

func TestGetTransactionsByAddress(t *testing.T) {
	mockRepo := &repositoryMock{}
	endpoints := NewEndpoints(NewMockConfig(), &executorMock{}, mockRepo)

	other := common.HexToAddress("0x03")
	failing := common.HexToAddress("0x04")
	txs := []*types.TransactionRecord{{ID: "a", From: from}}
	mockRepo.On("GetTransactionsByAddress", mock.Anything, from).Return(txs, nil).Once()
	mockRepo.On("GetTransactionsByAddress", mock.Anything, other).Return(nil, nil).Once()
	mockRepo.On("GetTransactionsByAddress", mock.Anything, failing).Return(nil, errors.New("db down")).Once()

	res, err := endpoints.GetTransactionsByAddress(newHttpRequest(), from)
	assert.Nil(t, err)
	assert.Equal(t, txs, res)

	res, err = endpoints.GetTransactionsByAddress(newHttpRequest(), other)
	assert.Nil(t, err)
	assert.Equal(t, []*types.TransactionRecord{}, res)

	_, err = endpoints.GetTransactionsByAddress(newHttpRequest(), failing)
	assert.Equal(t, NewServerErrorWithData(InternalErrorCode, internalErrorMessage, nil), err)
	mockRepo.AssertExpectations(t)
}

func doRequest(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	s.handle(w, req)
	return w
}

func TestServerHandle(t *testing.T) {
	mockRepo := &repositoryMock{}
	s := NewServer(NewMockConfig(), &executorMock{}, mockRepo)
	mockRepo.On("GetPendingPrivateTransactionCount", mock.Anything, from, uint64(137)).Return(uint64(2), nil)

	type testCase struct {
		Name           string
		Body           string
		ExpectedStatus int
		ExpectedResult string
		ExpectedCode   int
	}

	testCases := []testCase{
		{
			Name:           "Call endpoint",
			Body:           fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"txengine_getPendingPrivateTransactionCount","params":["%s",137]}`, from.Hex()),
			ExpectedStatus: http.StatusOK,
			ExpectedResult: "2",
		},
		{
			Name:           "Call endpoint of another namespace",
			Body:           fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"eth_getPendingPrivateTransactionCount","params":["%s",137]}`, from.Hex()),
			ExpectedStatus: http.StatusOK,
			ExpectedCode:   NotFoundErrorCode,
		},
		{
			Name:           "Call with too many params",
			Body:           fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"txengine_getPendingPrivateTransactionCount","params":["%s",137,1]}`, from.Hex()),
			ExpectedStatus: http.StatusOK,
			ExpectedCode:   InvalidParamsErrorCode,
		},
		{
			Name:           "Call with missing params",
			Body:           fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"txengine_getPendingPrivateTransactionCount","params":["%s"]}`, from.Hex()),
			ExpectedStatus: http.StatusOK,
			ExpectedCode:   InvalidParamsErrorCode,
		},
		{
			Name:           "Call with params that are not an array",
			Body:           `{"jsonrpc":"2.0","id":1,"method":"txengine_getPendingPrivateTransactionCount","params":{"chainId":137}}`,
			ExpectedStatus: http.StatusOK,
			ExpectedCode:   InvalidParamsErrorCode,
		},
		{
			Name:           "Call with invalid json",
			Body:           `{"jsonrpc":`,
			ExpectedStatus: http.StatusBadRequest,
		},
		{
			Name: "Batch over the limit",
			Body: fmt.Sprintf(`[%[1]s,%[1]s,%[1]s]`,
				fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"txengine_getPendingPrivateTransactionCount","params":["%s",137]}`, from.Hex())),
			ExpectedStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			w := doRequest(t, s, tc.Body)
			require.Equal(t, tc.ExpectedStatus, w.Code)
			if tc.ExpectedStatus != http.StatusOK {
				return
			}

			var res Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			if tc.ExpectedCode != 0 {
				require.NotNil(t, res.Error)
				assert.Equal(t, tc.ExpectedCode, res.Error.Code)
				return
			}
			require.Nil(t, res.Error)
			assert.Equal(t, tc.ExpectedResult, string(res.Result))
		})
	}
}

func TestServerHandleBatch(t *testing.T) {
	mockRepo := &repositoryMock{}
	s := NewServer(NewMockConfig(), &executorMock{}, mockRepo)
	mockRepo.On("GetPendingPrivateTransactionCount", mock.Anything, from, uint64(1)).Return(uint64(0), nil)

	single := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"txengine_getPendingPrivateTransactionCount","params":["%s",1]}`, from.Hex())
	w := doRequest(t, s, "["+single+","+single+"]")
	require.Equal(t, http.StatusOK, w.Code)

	var res []Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Nil(t, r.Error)
		assert.Equal(t, "0", string(r.Result))
	}
}

func TestServerHandleOptionalParams(t *testing.T) {
	mockExecutor := &executorMock{}
	s := NewServer(NewMockConfig(), mockExecutor, &repositoryMock{})
	result := &executor.ExecuteResult{ID: "b", TransactionHash: common.HexToHash("0x02")}
	mockExecutor.On("SpeedUp", mock.Anything, "a", float64(0)).Return(result, nil).Once()
	mockExecutor.On("SpeedUp", mock.Anything, "a", 2.0).Return(result, nil).Once()

	for _, body := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"txengine_speedUp","params":["a"]}`,
		`{"jsonrpc":"2.0","id":2,"method":"txengine_speedUp","params":["a",2.0]}`,
	} {
		w := doRequest(t, s, body)
		require.Equal(t, http.StatusOK, w.Code)

		var res Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		require.Nil(t, res.Error)
		var got executor.ExecuteResult
		require.NoError(t, json.Unmarshal(res.Result, &got))
		assert.Equal(t, "b", got.ID)
	}

	w := doRequest(t, s, `{"jsonrpc":"2.0","id":3,"method":"txengine_speedUp","params":[]}`)
	var res Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotNil(t, res.Error)
	assert.Equal(t, InvalidParamsErrorCode, res.Error.Code)
	mockExecutor.AssertExpectations(t)
}

func TestServerHandleWithoutHttpRequest(t *testing.T) {
	mockExecutor := &executorMock{}
	s := NewServer(NewMockConfig(), mockExecutor, &repositoryMock{})
	input := executor.Currency{ChainID: 1, Native: true}
	output := executor.Currency{ChainID: 1, Address: token}
	mockExecutor.On("ClassifyWrap", input, output).Return(executor.WrapWrap).Once()

	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":"txengine_classifyWrap","params":[{"chainId":1,"native":true},{"chainId":1,"address":"%s"}]}`, token.Hex())
	w := doRequest(t, s, body)
	require.Equal(t, http.StatusOK, w.Code)

	var res Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Nil(t, res.Error)
	assert.Equal(t, `"wrap"`, string(res.Result))
	mockExecutor.AssertExpectations(t)
}
