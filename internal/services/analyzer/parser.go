package analyzer

import (
	"strconv"
	"strings"

	"cattle-worker-go/internal/models"
)

var knownBreeds = []string{
	"Nelore", "Angus", "Hereford", "Brahman", "Gir", "Guzerá",
	"Simmental", "Charolês", "Limousin", "Zebu", "Holstein", "Girolando",
}

// Parse reads the KEY: value lines returned by the description service.
// Without a DESCRIÇÃO line the whole text is the description.
func Parse(text string) models.Analysis {
	var (
		out     models.Analysis
		hasDesc bool
	)

	for _, line := range strings.Split(text, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "RAÇA":
			out.Breed = value
		case "PESO_ESTIMADO":
			out.Weight = parseWeight(value)
		case "DESCRIÇÃO":
			out.Description = value
			hasDesc = true
		}
	}

	if !hasDesc {
		out.Description = strings.TrimSpace(text)
	}
	if out.Breed == "" {
		out.Breed = ExtractBreed(out.Description)
	}
	return out
}

// ExtractBreed returns the first known breed mentioned in text.
func ExtractBreed(text string) string {
	lower := strings.ToLower(text)
	for _, b := range knownBreeds {
		if strings.Contains(lower, strings.ToLower(b)) {
			return b
		}
	}
	return ""
}

func parseWeight(value string) *float64 {
	v := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(value), "kg"))
	v = strings.ReplaceAll(v, ",", ".")
	w, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return nil
	}
	return &w
}
