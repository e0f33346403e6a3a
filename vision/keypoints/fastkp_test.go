package keypoints

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"
)

func createTestImage() *image.Gray {
	return createShiftedTestImage(image.Point{})
}

func createShiftedTestImage(shift image.Point) *image.Gray {
	rectImage := image.NewGray(image.Rect(0, 0, 300, 200))
	whiteRect := image.Rect(50, 30, 100, 150).Add(shift)
	white := color.Gray{255}
	black := color.Gray{0}
	draw.Draw(rectImage, rectImage.Bounds(), &image.Uniform{black}, image.Point{0, 0}, draw.Src)
	draw.Draw(rectImage, whiteRect, &image.Uniform{white}, image.Point{0, 0}, draw.Src)
	return rectImage
}

func testFASTConfig() *FASTConfig {
	return &FASTConfig{
		Threshold:      0.15,
		NMatchesCircle: 9,
		NMSWinSize:     7,
	}
}

func TestFASTConfigValidate(t *testing.T) {
	cfg := testFASTConfig()
	test.That(t, cfg.Validate("fast"), test.ShouldBeNil)

	cfg.Threshold = 1.5
	test.That(t, cfg.Validate("fast"), test.ShouldNotBeNil)
	cfg = testFASTConfig()
	cfg.NMatchesCircle = 17
	test.That(t, cfg.Validate("fast"), test.ShouldNotBeNil)
	cfg = testFASTConfig()
	cfg.NMSWinSize = 0
	test.That(t, cfg.Validate("fast"), test.ShouldNotBeNil)
	cfg = testFASTConfig()
	cfg.MaxKeypoints = -1
	err := cfg.Validate("fast")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_keypoints")
}

func TestGetPointValuesInNeighborhood(t *testing.T) {
	// create test image
	rectImage := createTestImage()
	// testing cross neighborhood
	vals := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CrossIdx)
	// test length
	test.That(t, len(vals), test.ShouldEqual, 4)
	// test values at a corner of the rectangle
	test.That(t, vals[0], test.ShouldEqual, 255)
	test.That(t, vals[1], test.ShouldEqual, 255)
	test.That(t, vals[2], test.ShouldEqual, 0)
	test.That(t, vals[3], test.ShouldEqual, 0)
	// testing circle neighborhood
	valsCircle := GetPointValuesInNeighborhood(rectImage, image.Point{50, 30}, CircleIdx)
	// test length
	test.That(t, len(valsCircle), test.ShouldEqual, 16)
	// test values at a corner of the rectangle
	for i := 0; i < 4; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
	for i := 4; i < 9; i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 255)
	}
	for i := 9; i < len(valsCircle); i++ {
		test.That(t, valsCircle[i], test.ShouldEqual, 0)
	}
}

func TestIsValidSlice(t *testing.T) {
	tests := []struct {
		s        []float64
		n        int
		expected bool
	}{
		{[]float64{0, 0, 0, 0, 0}, 9, false},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 3, true},
		{[]float64{1, 1, 1, 1, 1, 1, 1}, 8, false},
		{[]float64{0, 1, 1, 1, 0, 1, 1}, 3, true},
		{[]float64{0, 1, 1, 0, 0, 1, 0}, 3, false},
		// runs wrap around the end of the circle
		{[]float64{1, 1, 0, 0, 0, 1, 1}, 4, true},
		{[]float64{}, 1, false},
	}
	for _, tst := range tests {
		test.That(t, isValidSliceVals(tst.s, tst.n), test.ShouldEqual, tst.expected)
	}
}

func TestSumPositiveValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, 4},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, 0},
	}
	for _, tst := range tests {
		test.That(t, sumOfPositiveValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestSumNegativeValues(t *testing.T) {
	tests := []struct {
		s        []float64
		expected float64
	}{
		{[]float64{0, 0, 0, 0, 0}, 0},
		{[]float64{1, -1, -1, 0, 1, 1, 1}, -2},
		{[]float64{-1, -1, -1, 0, -1, -1, -1}, -6},
	}
	for _, tst := range tests {
		test.That(t, sumOfNegativeValuesSlice(tst.s), test.ShouldEqual, tst.expected)
	}
}

func TestGetBrighterValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{0, 0, 0, 0, 1, 1}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getBrighterValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestGetDarkerValues(t *testing.T) {
	tests := []struct {
		s        []float64
		t        float64
		expected []float64
	}{
		{[]float64{1, 10, 3, 1, 20, 11}, 10, []float64{1, 0, 1, 1, 0, 0}},
		{[]float64{1, 1, 1, 1}, 1, []float64{0, 0, 0, 0}},
	}
	for _, tst := range tests {
		test.That(t, getDarkerValues(tst.s, tst.t), test.ShouldResemble, tst.expected)
	}
}

func TestComputeFAST(t *testing.T) {
	cfg := testFASTConfig()
	rectImage := createTestImage()
	kps, scores := ComputeFAST(rectImage, cfg)
	test.That(t, kps, test.ShouldResemble, []image.Point{{50, 30}, {99, 30}, {50, 149}, {99, 149}})
	test.That(t, len(scores), test.ShouldEqual, 4)
	for _, s := range scores {
		// 11 of the 16 circle pixels are black around a white corner
		test.That(t, s, test.ShouldAlmostEqual, 11./16.)
	}

	cfg.MaxKeypoints = 2
	kps, scores = ComputeFAST(rectImage, cfg)
	test.That(t, kps, test.ShouldResemble, []image.Point{{50, 30}, {99, 30}})
	test.That(t, len(scores), test.ShouldEqual, 2)

	// a flat image has no corner
	flat := image.NewGray(image.Rect(0, 0, 40, 40))
	kps, scores = ComputeFAST(flat, testFASTConfig())
	test.That(t, kps, test.ShouldBeEmpty)
	test.That(t, scores, test.ShouldBeEmpty)
}

func TestComputeFASTOffsetBounds(t *testing.T) {
	rectImage := createTestImage()
	sub, ok := rectImage.SubImage(image.Rect(40, 20, 110, 160)).(*image.Gray)
	test.That(t, ok, test.ShouldBeTrue)
	kps, _ := ComputeFAST(sub, testFASTConfig())
	test.That(t, kps, test.ShouldResemble, []image.Point{{50, 30}, {99, 30}, {50, 149}, {99, 149}})
}
