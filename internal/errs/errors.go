package errs

import "errors"

var (
	// ErrInvalidParameter 表示指标窗口等参数非法。
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrInvalidOrder 表示订单数量或价格非法，或同一根K线出现相互冲突的指令。
	ErrInvalidOrder = errors.New("invalid order")
	// ErrNumeric 表示计算过程中出现 NaN/Inf 或账本校验不一致。
	ErrNumeric = errors.New("numeric error")
	// ErrEmptyRun 表示没有任何K线或权益曲线为空。
	ErrEmptyRun = errors.New("empty run")
	// ErrConfiguration 表示无法识别的模型选择或配置值。
	ErrConfiguration = errors.New("configuration error")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrInvalidParameter, "InvalidParameter"},
	{ErrInvalidOrder, "InvalidOrder"},
	{ErrNumeric, "NumericError"},
	{ErrEmptyRun, "EmptyRun"},
	{ErrConfiguration, "ConfigurationError"},
}

// KindOf 返回错误所属类别名称，无法识别时返回空字符串。
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return ""
}
