// heuristics.go: gocv-backed pixel measurements for the validator. A
// phone held up in a classroom has two reliable pixel signatures: its
// dominant contour is close to a rotated rectangle, and a lit screen
// makes the region center brighter than its border band.
package phonefilter

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/adityasharma0903/CCTVattendance/internal/frame"
)

// gocvProbe is the production PixelProbe.
func gocvProbe(f frame.Frame, box image.Rectangle) (float64, float64, bool) {
	clipped := box.Intersect(image.Rect(0, 0, f.Width, f.Height))
	if clipped.Dx() < 8 || clipped.Dy() < 8 {
		return 0, 0, false
	}

	region := f.Mat.Region(clipped)
	defer func() { _ = region.Close() }()

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)

	return contourRectangularity(gray), emissiveRatio(gray), true
}

// contourRectangularity finds the largest edge contour in the region and
// measures how much of its minimum-area rotated rectangle it fills. A
// phone body scores close to 1, a hand or hair blob much lower.
func contourRectangularity(gray gocv.Mat) float64 {
	edges := gocv.NewMat()
	defer func() { _ = edges.Close() }()
	gocv.Canny(gray, &edges, 50, 150)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best float64
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		area := gocv.ContourArea(contour)
		if area < 1 {
			continue
		}
		rect := gocv.MinAreaRect(contour)
		rectArea := float64(rect.Width) * float64(rect.Height)
		if rectArea < 1 {
			continue
		}
		if r := area / rectArea; r > best {
			best = r
		}
	}
	if best > 1 {
		best = 1
	}
	return best
}

// emissiveRatio compares the mean brightness of the inner half of the
// region against its border band. Values above 1 mean the center glows.
func emissiveRatio(gray gocv.Mat) float64 {
	w, h := gray.Cols(), gray.Rows()
	inner := image.Rect(w/4, h/4, w-w/4, h-h/4)
	if inner.Empty() {
		return 0
	}

	center := gray.Region(inner)
	defer func() { _ = center.Close() }()

	fullMean := gray.Mean().Val1
	centerMean := center.Mean().Val1

	fullArea := float64(w * h)
	centerArea := float64(inner.Dx() * inner.Dy())
	borderArea := fullArea - centerArea
	if borderArea < 1 {
		return 0
	}
	borderMean := (fullMean*fullArea - centerMean*centerArea) / borderArea
	if borderMean < 1 {
		borderMean = 1
	}
	return centerMean / borderMean
}
