package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ErrorsTestSuite 错误包测试套件
type ErrorsTestSuite struct {
	suite.Suite
}

func (suite *ErrorsTestSuite) TestNew() {
	err := New(ErrInvalidArgument)
	suite.Equal(ErrInvalidArgument, err.Code)
	suite.Equal("无效的参数", err.Message)
	suite.Empty(err.Details)

	err = New(ErrNotFound, "对局不存在")
	suite.Equal("资源未找到", err.Message)
	suite.Equal("对局不存在", err.Details)

	err = New(ErrRepositoryUnavailable, "连接失败", "主机: localhost", "端口: 5432")
	suite.Equal("连接失败; 主机: localhost; 端口: 5432", err.Details)
}

func (suite *ErrorsTestSuite) TestNewf() {
	err := Newf(ErrInvalidArgument, "参数 %s 不能为空", "game_id")
	suite.Equal("参数 game_id 不能为空", err.Details)
}

func (suite *ErrorsTestSuite) TestWrap() {
	originalErr := errors.New("连接被拒绝")
	wrappedErr := Wrap(originalErr, ErrBusUnavailable)
	suite.Equal(ErrBusUnavailable, wrappedErr.Code)
	suite.Equal("连接被拒绝", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)

	suite.Nil(Wrap(nil, ErrUnknown))

	// 已有AppError保留原始错误码
	appErr := New(ErrNotFound, "对局不存在")
	wrappedAppErr := Wrap(appErr, ErrInvalidArgument, "额外信息")
	suite.Equal(ErrNotFound, wrappedAppErr.Code)
	suite.Contains(wrappedAppErr.Details, "额外信息")
}

func (suite *ErrorsTestSuite) TestWrapf() {
	originalErr := errors.New("连接超时")
	wrappedErr := Wrapf(originalErr, ErrRepositoryUnavailable, "读取对局 %s 失败", "g1")
	suite.Equal(ErrRepositoryUnavailable, wrappedErr.Code)
	suite.Equal("读取对局 g1 失败", wrappedErr.Details)
	suite.Equal(originalErr, wrappedErr.Cause)
}

func (suite *ErrorsTestSuite) TestIsThroughWrapping() {
	err := New(ErrVersionConflict)
	suite.True(Is(err, ErrVersionConflict))
	suite.False(Is(err, ErrNotFound))
	suite.False(Is(nil, ErrVersionConflict))

	// fmt包装后仍能识别
	wrapped := fmt.Errorf("应用动作: %w", err)
	suite.True(Is(wrapped, ErrVersionConflict))
	suite.Equal(ErrVersionConflict, GetCode(wrapped))

	suite.False(Is(errors.New("标准错误"), ErrUnknown))
}

func (suite *ErrorsTestSuite) TestGetCode() {
	suite.Equal(ErrTokenExpired, GetCode(New(ErrTokenExpired)))
	suite.Equal(ErrUnknown, GetCode(errors.New("标准错误")))
	suite.Equal(ErrorCode(0), GetCode(nil))
}

func (suite *ErrorsTestSuite) TestError() {
	err := &AppError{Code: ErrNotFound, Message: "资源未找到"}
	suite.Equal("[1002] 资源未找到", err.Error())

	err.Details = "game_id: g1"
	suite.Equal("[1002] 资源未找到: game_id: g1", err.Error())
}

func (suite *ErrorsTestSuite) TestWithCause() {
	cause := errors.New("dial tcp: connection refused")
	err := New(ErrRepositoryUnavailable).WithCause(cause)
	suite.Equal(cause, err.Cause)
	suite.Equal(cause.Error(), err.Details)

	err2 := New(ErrRepositoryUnavailable, "写入失败").WithCause(cause)
	suite.Equal("写入失败", err2.Details)
}

func (suite *ErrorsTestSuite) TestHTTPStatus() {
	testCases := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrInvalidArgument, 400},
		{ErrNotFound, 404},
		{ErrValidationRejected, 422},
		{ErrVersionConflict, 409},
		{ErrUiSessionExpired, 410},
		{ErrSessionRequired, 401},
		{ErrRepositoryUnavailable, 503},
		{ErrBusUnavailable, 503},
		{ErrTimeout, 504},
		{ErrUnknown, 500},
	}

	for _, tc := range testCases {
		suite.Equal(tc.expected, New(tc.code).HTTPStatus(), "错误码 %d 应该返回HTTP状态码 %d", tc.code, tc.expected)
	}
}

// 基础设施故障可重试，规则拒绝不可重试
func (suite *ErrorsTestSuite) TestIsRetryable() {
	for _, code := range []ErrorCode{ErrTimeout, ErrVersionConflict, ErrBusUnavailable, ErrRepositoryUnavailable} {
		suite.True(IsRetryable(New(code)), "错误码 %d 应该是可重试的", code)
	}
	for _, code := range []ErrorCode{ErrValidationRejected, ErrNotFound, ErrInvalidArgument} {
		suite.False(IsRetryable(New(code)), "错误码 %d 不应该是可重试的", code)
	}
	suite.False(IsRetryable(nil))
}

func (suite *ErrorsTestSuite) TestIsCritical() {
	suite.True(IsCritical(New(ErrStartupConfiguration)))
	suite.True(IsCritical(New(ErrDatabaseConnect)))
	suite.False(IsCritical(New(ErrTimeout)))
	suite.False(IsCritical(nil))
}

func (suite *ErrorsTestSuite) TestStackCapture() {
	err := New(ErrUnknown)
	suite.NotEmpty(err.Stack)
	suite.NotEmpty(err.GetStack())
}

func (suite *ErrorsTestSuite) TestErrorResponse() {
	err := New(ErrNotFound, "对局不存在")
	response := NewErrorResponse(err, "req-123")

	suite.False(response.Success)
	suite.Equal(err, response.Error)
	suite.Equal("req-123", response.RequestID)
	suite.Greater(response.Timestamp, int64(0))
}

func (suite *ErrorsTestSuite) TestUnknownErrorCode() {
	err := New(ErrorCode(99999))
	suite.Equal(ErrorCode(99999), err.Code)
	suite.Equal("未知错误", err.Message)
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}
