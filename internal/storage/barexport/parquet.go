// Package barexport writes classified bar windows to Parquet files and reads them back for replay.
package barexport

import (
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/pvsra/internal/domain"
)

// Row is the on-disk layout of one bar. Prices stay decimal strings so a
// replay classifies bit-identically.
type Row struct {
	Symbol      string `parquet:"symbol"`
	Timestamp   int64  `parquet:"t"`
	Open        string `parquet:"o"`
	High        string `parquet:"h"`
	Low         string `parquet:"l"`
	Close       string `parquet:"c"`
	Volume      string `parquet:"v"`
	VolumeRatio string `parquet:"vr,optional"`
	Condition   string `parquet:"condition,optional"`
	Direction   string `parquet:"direction,optional"`
	Alert       string `parquet:"alert,optional"`
}

// Rows converts classified bars of one symbol into rows.
func Rows(symbol string, bars []domain.ClassifiedBar) []Row {
	rows := make([]Row, 0, len(bars))
	for _, b := range bars {
		r := Row{
			Symbol:    symbol,
			Timestamp: b.OpenTime.UnixMilli(),
			Open:      b.Open.String(),
			High:      b.High.String(),
			Low:       b.Low.String(),
			Close:     b.Close.String(),
			Volume:    b.Volume.String(),
			Direction: string(b.Direction),
		}
		if b.Classifiable {
			r.VolumeRatio = b.VolumeRatio.String()
			r.Condition = string(b.Condition)
			r.Alert = b.Alert
		}
		rows = append(rows, r)
	}
	return rows
}

// Save writes rows to path, replacing any existing file.
func Save(path string, rows []Row) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return errors.Wrapf(err, "failed to write parquet file %s", path)
	}
	return nil
}

// Load reads bars for symbol back from path in file order. An empty symbol loads every row.
func Load(path, symbol string) ([]domain.Bar, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read parquet file %s", path)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for i, r := range rows {
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		bar, err := r.Bar()
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// Bar parses the row back into a validated bar.
func (r Row) Bar() (domain.Bar, error) {
	values := make([]decimal.Decimal, 5)
	for i, s := range []string{r.Open, r.High, r.Low, r.Close, r.Volume} {
		v, err := decimal.NewFromString(s)
		if err != nil {
			return domain.Bar{}, errors.Wrap(err, "failed to parse bar value")
		}
		values[i] = v
	}

	bar := domain.Bar{
		OpenTime: time.UnixMilli(r.Timestamp).UTC(),
		Open:     values[0],
		High:     values[1],
		Low:      values[2],
		Close:    values[3],
		Volume:   values[4],
	}
	return bar, bar.Validate()
}
