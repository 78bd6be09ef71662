package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

var csvColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// LoadCSV 读取 timestamp,open,high,low,close,volume 格式的K线文件。
func LoadCSV(path string) ([]market.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("feed: 打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("feed: %s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV 从 r 解析K线；首行必须为表头，列顺序不限。
func ReadCSV(r io.Reader) ([]market.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("缺少表头: %w", errs.ErrEmptyRun)
		}
		return nil, fmt.Errorf("读取表头失败: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	cols := make([]int, len(csvColumns))
	for i, name := range csvColumns {
		pos, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("缺少列 %q: %w", name, errs.ErrConfiguration)
		}
		cols[i] = pos
	}

	var bars []market.Bar
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("第 %d 行解析失败: %w", line, err)
		}

		ts, err := parseTimestamp(record[cols[0]])
		if err != nil {
			return nil, fmt.Errorf("第 %d 行时间戳无效: %w", line, err)
		}
		var values [5]float64
		for i := range values {
			raw := strings.TrimSpace(record[cols[i+1]])
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行 %s=%q 无效: %w", line, csvColumns[i+1], raw, errs.ErrInvalidParameter)
			}
			values[i] = v
		}

		bars = append(bars, market.Bar{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}
	return bars, nil
}

// parseTimestamp 支持 RFC3339 与 Unix 秒。
func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", raw, errs.ErrInvalidParameter)
	}
	return ts.UTC(), nil
}
