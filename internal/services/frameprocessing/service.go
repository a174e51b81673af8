package frameprocessing

import (
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"cattle-worker-go/internal/helpers"
	"cattle-worker-go/internal/models"
	"cattle-worker-go/internal/vision"
)

const (
	fontFace      = gocv.FontHersheySimplex
	fontScale     = 0.55
	boxThickness  = 2
	labelMinY     = 20
	labelOffset   = 10
	titleOriginX  = 10
	titleOriginY  = 22
	placeholderW  = 640
	placeholderH  = 360
	placeholderFS = 1.0
)

// Renderer draws identities onto frames and encodes them for publishing.
type Renderer struct {
	title   string
	quality int
	now     func() time.Time
}

func NewRenderer(title string, quality int) *Renderer {
	if quality <= 0 || quality > 100 {
		quality = helpers.MediumQuality
	}
	return &Renderer{title: title, quality: quality, now: time.Now}
}

// LabelBaseline returns the text baseline for a box label, kept inside the frame top.
func LabelBaseline(box models.BBox) image.Point {
	return image.Pt(box.X1, max(box.Y1-labelOffset, labelMinY))
}

// Annotate draws every item onto a copy of the frame and returns the JPEG.
// The source frame is never modified.
func (r *Renderer) Annotate(frame *models.RawFrame, items []models.Annotation) ([]byte, error) {
	src, err := helpers.MatFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	mat := src.Clone()
	defer mat.Close()

	for _, it := range items {
		drawIdentity(&mat, it)
	}
	drawTimestamp(&mat, vision.TimestampLabel(r.title, r.now()))

	return helpers.EncodeMatJPEG(mat, r.quality)
}

func drawIdentity(mat *gocv.Mat, it models.Annotation) {
	box := it.Detection.BBox
	c := vision.BoxColor(it.Detection.Category, it.Match.IsKnown)
	gocv.Rectangle(mat, box.Rect(), c, boxThickness)

	label := vision.Label(it.Match)
	size := gocv.GetTextSize(label, fontFace, fontScale, 1)
	base := LabelBaseline(box)
	gocv.Rectangle(mat, image.Rect(base.X, base.Y-size.Y-4, base.X+size.X+4, base.Y+2), c, -1)
	gocv.PutText(mat, label, image.Pt(base.X+2, base.Y-2), fontFace, fontScale, vision.ColorLabelText, 1)
}

// drawTimestamp writes the title twice, a thick shadow then the text, so it
// stays readable on bright frames.
func drawTimestamp(mat *gocv.Mat, text string) {
	org := image.Pt(titleOriginX, titleOriginY)
	gocv.PutText(mat, text, org, fontFace, fontScale, vision.ColorShadow, 3)
	gocv.PutText(mat, text, org, fontFace, fontScale, vision.ColorLabelText, 1)
}

// Placeholder renders a dark frame with centered text for cameras without
// a current frame.
func (r *Renderer) Placeholder(text string) ([]byte, error) {
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 30, 30, 0), placeholderH, placeholderW, gocv.MatTypeCV8UC3)
	defer mat.Close()

	size := gocv.GetTextSize(text, fontFace, placeholderFS, 2)
	org := image.Pt((placeholderW-size.X)/2, (placeholderH+size.Y)/2)
	gocv.PutText(&mat, text, org, fontFace, placeholderFS, color.RGBA{R: 180, G: 180, B: 180, A: 255}, 2)

	return helpers.EncodeMatJPEG(mat, r.quality)
}
