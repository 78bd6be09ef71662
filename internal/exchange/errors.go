package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// ErrMaintenance 表示交易所处于维护状态，本次拉取应放弃。
var ErrMaintenance = errors.New("exchange on maintenance")

// outcome 为一次失败调用的处理方式。
type outcome int

const (
	giveUp outcome = iota
	retry
	maintenance
)

// IsRetryable 判断错误是否可重试。
func IsRetryable(err error) bool {
	_, o := classifyError(err)
	return o == retry
}

// classifyError 将 ccxt 与网络错误归类；维护错误被包装为 ErrMaintenance。
func classifyError(err error) (error, outcome) {
	switch {
	case err == nil:
		return nil, giveUp
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err, giveUp
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			reason := strings.TrimSpace(ccxtErr.Message)
			if reason == "" {
				reason = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, reason), maintenance
		}
		if transientCCXT(ccxtErr) {
			return err, retry
		}
		return err, giveUp
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, retry
	}
	return err, giveUp
}

// transientCCXT 覆盖网络抖动、限频与空响应这几类暂时性错误。
func transientCCXT(e *ccxt.Error) bool {
	switch e.Type {
	case ccxt.NetworkErrorErrType, ccxt.RequestTimeoutErrType, ccxt.ExchangeNotAvailableErrType:
		return true
	case ccxt.RateLimitExceededErrType, ccxt.DDoSProtectionErrType:
		return true
	case ccxt.BadResponseErrType, ccxt.NullResponseErrType:
		return true
	}
	return false
}
