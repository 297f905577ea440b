package results

import (
	"fmt"
	"math"
)

// FormatSimilarity renders a score in [0,1] as a whole percentage.
// Items without a score render as "".
func FormatSimilarity(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("%d%%", int(math.Round(*score*100)))
}

// Annotation is the similarity label for item i of the view. Browse views
// never carry one.
func (v View) Annotation(i int) string {
	if v.Mode == ModeBrowse || i < 0 || i >= len(v.Items) {
		return ""
	}
	return FormatSimilarity(v.Items[i].Similarity)
}
