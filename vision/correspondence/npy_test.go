package correspondence

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/sbinet/npyio"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func makeRecords(t *testing.T, sizes ...int) []Record {
	t.Helper()
	records := make([]Record, 0, len(sizes))
	for i, n := range sizes {
		m0 := make([]r2.Point, n)
		m1 := make([]r2.Point, n)
		score := make([]float64, n)
		for k := 0; k < n; k++ {
			m0[k] = r2.Point{X: float64(i*100 + k), Y: float64(k) + 0.5}
			m1[k] = r2.Point{X: float64(i*100+k) + 1.25, Y: float64(k) - 0.5}
			score[k] = float64(k+1) / float64(n+1)
		}
		rec, err := NewRecord(m0, m1, score)
		test.That(t, err, test.ShouldBeNil)
		records = append(records, rec)
	}
	return records
}

func TestRoundTrip(t *testing.T) {
	records := makeRecords(t, 3, 1, 7, 2)

	var buf bytes.Buffer
	test.That(t, WriteAll(&buf, records), test.ShouldBeNil)

	got, err := ReadAll(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(got), test.ShouldEqual, len(records))
	for i := range records {
		test.That(t, got[i], test.ShouldResemble, records[i])
	}
}

func TestStreamIsBackToBackTables(t *testing.T) {
	records := makeRecords(t, 2, 4)
	var buf bytes.Buffer
	writer := NewWriter(&buf)
	for _, rec := range records {
		test.That(t, writer.Write(rec), test.ShouldBeNil)
	}
	test.That(t, writer.Count(), test.ShouldEqual, 2)

	// a plain npy reader sees each table with its own (n, 5) shape
	r := bytes.NewReader(buf.Bytes())
	for _, rec := range records {
		npy, err := npyio.NewReader(r)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, npy.Header.Descr.Shape, test.ShouldResemble, []int{rec.Len(), NumColumns})
		var data []float64
		test.That(t, npy.Read(&data), test.ShouldBeNil)
		test.That(t, data[0], test.ShouldEqual, rec.Match0[0].X)
		test.That(t, data[2], test.ShouldEqual, rec.Match1[0].X)
		test.That(t, data[4], test.ShouldEqual, rec.Score[0])
	}
	test.That(t, r.Len(), test.ShouldEqual, 0)
}

func TestEmptyRecord(t *testing.T) {
	records := append(makeRecords(t, 2), Record{}, makeRecords(t, 1)[0])
	var buf bytes.Buffer
	test.That(t, WriteAll(&buf, records), test.ShouldBeNil)

	got, err := ReadAll(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(got), test.ShouldEqual, 3)
	test.That(t, got[1].Len(), test.ShouldEqual, 0)
	test.That(t, got[2], test.ShouldResemble, records[2])
}

func TestReaderErrors(t *testing.T) {
	reader := NewReader(&bytes.Buffer{})
	_, err := reader.Next()
	test.That(t, err, test.ShouldEqual, io.EOF)

	var buf bytes.Buffer
	test.That(t, npyio.Write(&buf, mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})), test.ShouldBeNil)
	_, err = ReadAll(&buf)
	test.That(t, errors.Is(err, ErrBadShape), test.ShouldBeTrue)

	buf.Reset()
	buf.WriteString("garbage")
	_, err = ReadAll(&buf)
	test.That(t, err, test.ShouldNotBeNil)

	var out bytes.Buffer
	err = NewWriter(&out).Write(Record{Match0: []r2.Point{{X: 1, Y: 1}}})
	test.That(t, errors.Is(err, ErrLengthMismatch), test.ShouldBeTrue)
	test.That(t, out.Len(), test.ShouldEqual, 0)
}

func TestSaveLoadFile(t *testing.T) {
	records := makeRecords(t, 5, 3)
	path := filepath.Join(t.TempDir(), "seq", "correspondences.npy")
	test.That(t, SaveFile(path, records), test.ShouldBeNil)

	got, err := LoadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldResemble, records)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.npy"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestKeypointDump(t *testing.T) {
	points := []r2.Point{{X: 10, Y: 20}, {X: 30, Y: 40}}
	table, err := KeypointTable(points, []float64{3, -1}, []float64{0.7, 0.2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, mat.Row(nil, 1, table), test.ShouldResemble, []float64{30, 40, -1, 0.2})

	_, err = KeypointTable(points, []float64{1}, []float64{0.7, 0.2})
	test.That(t, errors.Is(err, ErrLengthMismatch), test.ShouldBeTrue)

	path := filepath.Join(t.TempDir(), "frame_keypoints_matches.npy")
	test.That(t, SaveKeypointDump(path, points, []float64{3, -1}, []float64{0.7, 0.2}), test.ShouldBeNil)
	npy, err := npyio.NewReader(mustOpen(t, path))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, npy.Header.Descr.Shape, test.ShouldResemble, []int{2, DumpColumns})
	var data []float64
	test.That(t, npy.Read(&data), test.ShouldBeNil)
	test.That(t, data, test.ShouldResemble, []float64{10, 20, 3, 0.7, 30, 40, -1, 0.2})
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	//nolint:gosec
	f, err := os.Open(path)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { f.Close() })
	return f
}
