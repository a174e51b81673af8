package vision

import (
	"fmt"
	"image/color"
	"time"

	"cattle-worker-go/internal/models"
)

// Box colors. gocv maps RGBA to BGR scalars, so these render as
// BGR (0,200,0), (200,130,0) and (0,140,255).
var (
	ColorKnownAnimal = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	ColorKnownPerson = color.RGBA{R: 0, G: 130, B: 200, A: 255}
	ColorUnknown     = color.RGBA{R: 255, G: 140, B: 0, A: 255}
	ColorLabelText   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	ColorShadow      = color.RGBA{R: 0, G: 0, B: 0, A: 255}
)

func BoxColor(category models.Category, known bool) color.RGBA {
	if !known {
		return ColorUnknown
	}
	if category == models.CategoryPerson {
		return ColorKnownPerson
	}
	return ColorKnownAnimal
}

// Label renders "name [NN%]".
func Label(match models.IdentityMatch) string {
	return fmt.Sprintf("%s [%.0f%%]", match.Name, float64(match.Similarity)*100)
}

func TimestampLabel(title string, now time.Time) string {
	return fmt.Sprintf("%s | %s", title, now.Format("15:04:05"))
}
