package correspondence

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/vo/utils"
)

// ErrBadShape is returned when a stored table does not have the record layout.
var ErrBadShape = errors.New("unexpected table shape")

// Writer serializes records as consecutive numpy .npy tables, one table per record, with no
// count prefix. Readers find record boundaries from each table's own header.
type Writer struct {
	w     io.Writer
	count int
}

// NewWriter returns a Writer appending tables to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write appends one record. Empty records are stored as a zero length 1-D table.
func (w *Writer) Write(rec Record) error {
	table, err := rec.Table()
	if err != nil {
		return errors.Wrapf(err, "record %d", w.count)
	}
	if table == nil {
		err = npyio.Write(w.w, []float64{})
	} else {
		err = npyio.Write(w.w, table)
	}
	if err != nil {
		return errors.Wrapf(err, "cannot write record %d", w.count)
	}
	w.count++
	return nil
}

// Count returns the number of records written so far.
func (w *Writer) Count() int {
	return w.count
}

// WriteAll writes every record in order.
func WriteAll(w io.Writer, records []Record) error {
	writer := NewWriter(w)
	for _, rec := range records {
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Reader reads records written by a Writer until the end of the stream.
type Reader struct {
	r     *bufio.Reader
	count int
}

// NewReader returns a Reader consuming r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next record, or io.EOF once the stream is exhausted on a table boundary.
func (r *Reader) Next() (Record, error) {
	if _, err := r.r.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, err
	}
	table, err := readTable(r.r)
	if err != nil {
		return Record{}, errors.Wrapf(err, "record %d", r.count)
	}
	r.count++
	if table == nil {
		return Record{Match0: []r2.Point{}, Match1: []r2.Point{}, Score: []float64{}}, nil
	}
	return FromTable(table)
}

// ReadAll reads records until the end of the stream.
func ReadAll(r io.Reader) ([]Record, error) {
	reader := NewReader(r)
	var records []Record
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// readTable reads a single float64 table, returning nil for a table with no rows.
func readTable(r io.Reader) (*mat.Dense, error) {
	npy, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}
	if npy.Header.Descr.Fortran {
		return nil, errors.Wrap(ErrBadShape, "fortran ordered tables are not supported")
	}
	var data []float64
	if err := npy.Read(&data); err != nil {
		return nil, err
	}
	shape := npy.Header.Descr.Shape
	switch {
	case len(shape) == 1 && shape[0] == 0:
		return nil, nil
	case len(shape) == 2 && shape[1] == NumColumns && shape[0] == 0:
		return nil, nil
	case len(shape) == 2 && shape[1] == NumColumns:
		return mat.NewDense(shape[0], shape[1], data), nil
	default:
		return nil, errors.Wrapf(ErrBadShape, "got %v, expected (n, %d)", shape, NumColumns)
	}
}

// SaveFile writes records to path, creating parent directories and truncating any
// existing file.
func SaveFile(path string, records []Record) (err error) {
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", path)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	buf := bufio.NewWriter(f)
	if err := WriteAll(buf, records); err != nil {
		return err
	}
	return buf.Flush()
}

// LoadFile reads every record stored at path.
func LoadFile(path string) ([]Record, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %q", path)
	}
	defer goutils.UncheckedErrorFunc(f.Close)
	return ReadAll(f)
}
